package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eodprices/pkg/httpx"
	"eodprices/pkg/market"
	"eodprices/pkg/market/session"
)

const chartAAPL = `{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"USD","gmtoffset":-18000},
"timestamp":[1765809000,1765895400],
"indicators":{"quote":[{"close":[100.0,101.0]}]}}],"error":null}}`

const quoteAAPL = `{"quoteResponse":{"result":[{"symbol":"AAPL","currency":"USD","marketCap":3100000000000,
"regularMarketPrice":102.5,"regularMarketTime":1765918800,"gmtOffSetMilliseconds":-18000000}],"error":null}}`

type mockYahoo struct {
	*httptest.Server
	calls     atomic.Int32
	chartCode atomic.Int32
}

func newMockYahoo(t *testing.T) *mockYahoo {
	t.Helper()
	m := &mockYahoo{}
	m.chartCode.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "c"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		_, _ = w.Write([]byte("crumb123"))
	})
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		assert.Equal(t, "crumb123", r.URL.Query().Get("crumb"))
		if code := int(m.chartCode.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
			return
		}
		_, _ = w.Write([]byte(chartAAPL))
	})
	mux.HandleFunc("/v7/finance/quote", func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		_, _ = w.Write([]byte(quoteAAPL))
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func newTestProvider(m *mockYahoo, now func() time.Time) *Provider {
	client := httpx.NewClient(httpx.WithMaxAttempts(1))
	sessions := session.NewManager(client, session.Config{
		CookieURL: m.URL + "/cookie",
		CrumbURL:  m.URL + "/v1/test/getcrumb",
		Cooldown:  4 * time.Hour,
	}, session.WithClock(now))
	return NewProvider("yahoo", client, sessions, WithBaseURL(m.URL))
}

func TestProviderFetchMergesChartAndQuote(t *testing.T) {
	m := newMockYahoo(t)
	p := newTestProvider(m, time.Now)

	obs, err := p.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, "2025-12-16", obs.Date)
	require.InDelta(t, 102.5, obs.Close, 1e-9)
	require.Equal(t, "USD", obs.Currency)
	require.NotNil(t, obs.MarketCap)
	require.InDelta(t, 3.1e12, *obs.MarketCap, 1)
	require.Equal(t, []market.Point{
		{Date: "2025-12-15", Close: 100},
		{Date: "2025-12-16", Close: 102.5},
	}, obs.History)
}

func TestProviderFetchUnknownSymbol(t *testing.T) {
	m := newMockYahoo(t)
	p := newTestProvider(m, time.Now)

	_, err := p.Fetch(context.Background(), "NOPE")
	require.ErrorIs(t, err, market.ErrSymbolNotFound)
	require.False(t, p.Session().Blocked())
}

func TestProviderUnauthorizedDataRequestBlocks(t *testing.T) {
	m := newMockYahoo(t)
	m.chartCode.Store(http.StatusUnauthorized)
	now := time.Date(2025, 12, 17, 15, 0, 0, 0, time.UTC)
	p := newTestProvider(m, func() time.Time { return now })

	_, err := p.Fetch(context.Background(), "AAPL")
	require.ErrorIs(t, err, market.ErrUnavailable)
	require.True(t, p.Session().Blocked())

	calls := m.calls.Load()
	now = now.Add(time.Hour)
	_, err = p.Fetch(context.Background(), "AAPL")
	require.ErrorIs(t, err, session.ErrBlocked)
	require.Equal(t, calls, m.calls.Load())
}

func TestMerge(t *testing.T) {
	history := []market.Point{{Date: "2025-12-15", Close: 100}, {Date: "2025-12-16", Close: 101}}
	tests := []struct {
		name      string
		history   []market.Point
		snap      *snapshot
		wantDate  string
		wantClose float64
		wantLen   int
	}{
		{name: "chart only", history: history, wantDate: "2025-12-16", wantClose: 101, wantLen: 2},
		{name: "quote overrides same day", history: history, snap: &snapshot{Date: "2025-12-16", Close: 101.5}, wantDate: "2025-12-16", wantClose: 101.5, wantLen: 2},
		{name: "quote extends series", history: history, snap: &snapshot{Date: "2025-12-17", Close: 103}, wantDate: "2025-12-17", wantClose: 103, wantLen: 3},
		{name: "older quote ignored", history: history, snap: &snapshot{Date: "2025-12-12", Close: 90}, wantDate: "2025-12-16", wantClose: 101, wantLen: 2},
		{name: "quote without chart", snap: &snapshot{Date: "2025-12-17", Close: 55}, wantDate: "2025-12-17", wantClose: 55, wantLen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := merge(tt.history, tt.snap)
			require.NotNil(t, obs)
			require.Equal(t, tt.wantDate, obs.Date)
			require.InDelta(t, tt.wantClose, obs.Close, 1e-9)
			require.Len(t, obs.History, tt.wantLen)
		})
	}

	require.Nil(t, merge(nil, nil))
	require.Nil(t, merge(nil, &snapshot{Currency: "USD"}))
	require.Equal(t, 101.0, history[1].Close, "input history must not be mutated")
}

func TestChartPointsSkipsNullAndNonPositive(t *testing.T) {
	one, zero := 10.0, 0.0
	res := &chartResult{Timestamp: []int64{1765809000, 1765895400, 1766005200}}
	res.Indicators.Quote = append(res.Indicators.Quote, struct {
		Close []*float64 `json:"close"`
	}{Close: []*float64{&one, nil, &zero}})

	points := chartPoints(res)
	require.Equal(t, []market.Point{{Date: "2025-12-15", Close: 10}}, points)
}
