package pricepersist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eodprices/pkg/market"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, "aapl", "2024-01-02", 150, "yahoo", Snapshot{}))

	latest, err := store.GetLatest(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "AAPL", latest.Ticker)
	assert.Equal(t, "2024-01-02", latest.Date)
	assert.Equal(t, 150.0, latest.Close)
	assert.Equal(t, "yahoo", latest.Source)
}

func TestMemoryStoreMissingTicker(t *testing.T) {
	store := NewMemoryStore()
	latest, err := store.GetLatest(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Nil(t, latest)

	recent, err := store.GetRecent(context.Background(), "MSFT", 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	now := created
	store := NewMemoryStore(WithClock(func() time.Time { return now }))

	require.NoError(t, store.Upsert(ctx, "AAPL", "2024-01-02", 150, "yahoo", Snapshot{}))
	now = created.Add(time.Hour)
	require.NoError(t, store.Upsert(ctx, "AAPL", "2024-01-02", 151, "stooq", Snapshot{}))

	recent, err := store.GetRecent(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 151.0, recent[0].Close)
	assert.Equal(t, "stooq", recent[0].Source)
	assert.Equal(t, created, recent[0].CreatedAt)
	assert.Equal(t, created.Add(time.Hour), recent[0].UpdatedAt)
}

func TestMemoryStoreRejectsInvalidWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tests := []struct {
		name   string
		ticker string
		points []market.Point
	}{
		{name: "empty ticker", ticker: "", points: []market.Point{{Date: "2024-01-02", Close: 1}}},
		{name: "no points", ticker: "AAPL"},
		{name: "bad date", ticker: "AAPL", points: []market.Point{{Date: "02/01/2024", Close: 1}}},
		{name: "zero close", ticker: "AAPL", points: []market.Point{{Date: "2024-01-02", Close: 0}}},
		{name: "negative close", ticker: "AAPL", points: []market.Point{{Date: "2024-01-02", Close: -3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpsertSeries(ctx, tt.ticker, tt.points, "yahoo", Snapshot{})
			require.ErrorIs(t, err, ErrInvalidRecord)
		})
	}

	latest, err := store.GetLatest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemoryStoreSeriesMetadataOnNewestOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	mcap := 1.6e12

	points := []market.Point{
		{Date: "2025-12-17", Close: 659.58},
		{Date: "2025-12-16", Close: 645.12},
	}
	require.NoError(t, store.UpsertSeries(ctx, "META", points, "stooq", Snapshot{MarketCap: &mcap, Currency: "USD"}))

	recent, err := store.GetRecent(ctx, "META", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-12-17", recent[0].Date)
	require.NotNil(t, recent[0].MarketCap)
	assert.Equal(t, mcap, *recent[0].MarketCap)
	assert.Equal(t, "USD", recent[0].Currency)
	assert.Nil(t, recent[1].MarketCap)
	assert.Empty(t, recent[1].Currency)

	// A later write without metadata keeps what is known.
	require.NoError(t, store.Upsert(ctx, "META", "2025-12-17", 660, "yahoo", Snapshot{}))
	latest, err := store.GetLatest(ctx, "META")
	require.NoError(t, err)
	require.NotNil(t, latest.MarketCap)
	assert.Equal(t, "USD", latest.Currency)
	assert.Equal(t, 660.0, latest.Close)
}

func TestMemoryStoreCopiesMarketCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	marketCap := 3.1e12
	require.NoError(t, store.Upsert(ctx, "AAPL", "2024-01-02", 150, "yahoo", Snapshot{MarketCap: &marketCap}))

	marketCap = 1
	latest, err := store.GetLatest(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest.MarketCap)
	assert.Equal(t, 3.1e12, *latest.MarketCap)
	assert.NotSame(t, &marketCap, latest.MarketCap)
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithRetention(3))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]market.Point, 0, 5)
	for i := 0; i < 5; i++ {
		points = append(points, market.Point{Date: market.FormatDate(start.AddDate(0, 0, i)), Close: float64(100 + i)})
	}
	require.NoError(t, store.UpsertSeries(ctx, "AAPL", points, "yahoo", Snapshot{}))

	recent, err := store.GetRecent(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "2024-01-05", recent[0].Date)
	assert.Equal(t, "2024-01-03", recent[2].Date)

	require.NoError(t, store.Prune(ctx, "AAPL", 1))
	recent, err = store.GetRecent(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2024-01-05", recent[0].Date)
}

func TestMemoryStoreGetRecentOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithRetention(0))
	for i := 1; i <= 4; i++ {
		date := fmt.Sprintf("2024-02-%02d", i)
		require.NoError(t, store.Upsert(ctx, "MSFT", date, float64(400+i), "yahoo", Snapshot{}))
	}

	recent, err := store.GetRecent(ctx, "MSFT", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2024-02-04", recent[0].Date)
	assert.Equal(t, "2024-02-03", recent[1].Date)
}

func TestMemoryStoreExportsAfterWrite(t *testing.T) {
	ctx := context.Background()
	exporter := NewExporter(t.TempDir())
	store := NewMemoryStore(WithExporter(exporter), WithClock(fixedClock(time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC))))

	points := []market.Point{
		{Date: "2025-12-17", Close: 659.58},
		{Date: "2025-12-16", Close: 645.12},
	}
	require.NoError(t, store.UpsertSeries(ctx, "meta", points, "stooq", Snapshot{Currency: "USD"}))

	doc, err := exporter.Read("META")
	require.NoError(t, err)
	assert.Equal(t, "META", doc.Ticker)
	assert.Equal(t, "USD", doc.Currency)
	require.Len(t, doc.Points, 2)
	assert.Equal(t, "2025-12-16", doc.Points[0].Date)
	assert.Equal(t, "2025-12-17", doc.Points[1].Date)
	assert.Equal(t, 659.58, doc.Points[1].Close)
}
