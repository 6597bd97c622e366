package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pricepersist "eodprices/internal/persistence/prices"
	"eodprices/pkg/market"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchLatestPrice(ctx context.Context, ticker string) (*market.Observation, error) {
	args := m.Called(ctx, ticker)
	obs, _ := args.Get(0).(*market.Observation)
	return obs, args.Error(1)
}

// fakeSleep records every pause and cancels the run after limit pauses.
type fakeSleep struct {
	mu     sync.Mutex
	calls  []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (f *fakeSleep) sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	n := len(f.calls)
	f.mu.Unlock()
	if f.limit > 0 && n >= f.limit && f.cancel != nil {
		f.cancel()
	}
	return ctx.Err()
}

func observation(ticker string, date string, closePrice float64, source string) *market.Observation {
	return &market.Observation{Ticker: ticker, Date: date, Close: closePrice, Source: source}
}

func TestWorkerStoresPlausibleResult(t *testing.T) {
	ctx := context.Background()
	store := pricepersist.NewMemoryStore()
	fetcher := new(mockFetcher)
	mcap := 3.0e12
	obs := observation("AAPL", "2024-01-03", 151, "yahoo")
	obs.MarketCap = &mcap
	obs.Currency = "USD"
	obs.History = []market.Point{{Date: "2024-01-02", Close: 150}, {Date: "2024-01-03", Close: 151}}
	fetcher.On("FetchLatestPrice", mock.Anything, "AAPL").Return(obs, nil).Once()

	q := New()
	w := NewWorker(q, fetcher, store)
	q.Enqueue("AAPL")

	status, ok := w.Step(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusDone, status)

	job, _ := q.Status("AAPL")
	assert.Equal(t, StatusDone, job.Status)

	recent, err := store.GetRecent(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 151.0, recent[0].Close)
	assert.Equal(t, "USD", recent[0].Currency)
	fetcher.AssertExpectations(t)
}

func TestWorkerRejectsImplausibleWithoutWriting(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	store := pricepersist.NewMemoryStore(pricepersist.WithClock(func() time.Time { return created }))
	require.NoError(t, store.Upsert(ctx, "AAPL", "2024-01-02", 100, "yahoo", pricepersist.Snapshot{}))
	before, err := store.GetLatest(ctx, "AAPL")
	require.NoError(t, err)

	tests := []struct {
		name  string
		close float64
		want  Status
	}{
		{name: "collapse", close: 5, want: StatusError},
		{name: "spike", close: 1300, want: StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(mockFetcher)
			fetcher.On("FetchLatestPrice", mock.Anything, "AAPL").
				Return(observation("AAPL", "2024-01-03", tt.close, "stooq"), nil).Once()
			q := New()
			w := NewWorker(q, fetcher, store)
			q.Enqueue("AAPL")

			status, ok := w.Step(ctx)
			require.True(t, ok)
			assert.Equal(t, tt.want, status)
			job, _ := q.Status("AAPL")
			assert.Equal(t, ReasonImplausible, job.Reason)

			after, err := store.GetLatest(ctx, "AAPL")
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestWorkerAcceptsWithinBounds(t *testing.T) {
	ctx := context.Background()
	store := pricepersist.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, "AAPL", "2024-01-02", 100, "yahoo", pricepersist.Snapshot{}))

	fetcher := new(mockFetcher)
	fetcher.On("FetchLatestPrice", mock.Anything, "AAPL").
		Return(observation("AAPL", "2024-01-03", 50, "yahoo"), nil).Once()
	q := New()
	q.Enqueue("AAPL")

	status, _ := NewWorker(q, fetcher, store).Step(ctx)
	assert.Equal(t, StatusDone, status)
	latest, err := store.GetLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 50.0, latest.Close)
}

func TestWorkerFetchFailureMarksError(t *testing.T) {
	ctx := context.Background()
	store := pricepersist.NewMemoryStore()
	fetcher := new(mockFetcher)
	fetcher.On("FetchLatestPrice", mock.Anything, "ZZZZ").
		Return(nil, errors.Join(market.ErrNoPrice, errors.New("upstream said no"))).Once()
	q := New()
	q.Enqueue("ZZZZ")

	status, ok := NewWorker(q, fetcher, store).Step(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusError, status)

	job, _ := q.Status("ZZZZ")
	assert.Equal(t, ReasonNoPrice, job.Reason)
	assert.NotContains(t, job.Reason, "upstream")

	latest, err := store.GetLatest(ctx, "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestWorkerHistoryDays(t *testing.T) {
	ctx := context.Background()
	store := pricepersist.NewMemoryStore()
	obs := observation("META", "2025-12-17", 659.58, "stooq")
	obs.History = []market.Point{
		{Date: "2025-12-15", Close: 640},
		{Date: "2025-12-16", Close: 645.12},
		{Date: "2025-12-17", Close: 659.58},
	}
	fetcher := new(mockFetcher)
	fetcher.On("FetchLatestPrice", mock.Anything, "META").Return(obs, nil).Once()
	q := New()
	q.Enqueue("META")

	_, _ = NewWorker(q, fetcher, store, WithHistoryDays(2)).Step(ctx)
	recent, err := store.GetRecent(ctx, "META", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-12-16", recent[1].Date)
}

func TestWorkerStepIdle(t *testing.T) {
	fetcher := new(mockFetcher)
	_, ok := NewWorker(New(), fetcher, pricepersist.NewMemoryStore()).Step(context.Background())
	assert.False(t, ok)
	fetcher.AssertNotCalled(t, "FetchLatestPrice", mock.Anything, mock.Anything)
}

func TestWorkerRunSpacesEveryIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := &fakeSleep{limit: 3, cancel: cancel}

	fetcher := new(mockFetcher)
	fetcher.On("FetchLatestPrice", mock.Anything, "AAPL").
		Return(observation("AAPL", "2024-01-02", 150, "yahoo"), nil).Once()
	q := New()
	q.Enqueue("AAPL")

	w := NewWorker(q, fetcher, pricepersist.NewMemoryStore(), WithInterval(5*time.Second), WithSleep(fs.sleep))
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// One busy iteration followed by idle ones, each paced the same.
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, fs.calls)
	fetcher.AssertNumberOfCalls(t, "FetchLatestPrice", 1)
	job, _ := q.Status("AAPL")
	assert.Equal(t, StatusDone, job.Status)
}

func TestWorkerDrain(t *testing.T) {
	fs := &fakeSleep{}
	fetcher := new(mockFetcher)
	fetcher.On("FetchLatestPrice", mock.Anything, "AAPL").
		Return(observation("AAPL", "2024-01-02", 150, "yahoo"), nil).Once()
	fetcher.On("FetchLatestPrice", mock.Anything, "MSFT").
		Return(nil, market.ErrNoPrice).Once()
	q := New()
	q.Enqueue("AAPL")
	q.Enqueue("MSFT")

	w := NewWorker(q, fetcher, pricepersist.NewMemoryStore(), WithInterval(time.Second), WithSleep(fs.sleep))
	handled, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []time.Duration{time.Second}, fs.calls)

	counts := q.Counts()
	assert.Equal(t, 1, counts[StatusDone])
	assert.Equal(t, 1, counts[StatusError])
}
