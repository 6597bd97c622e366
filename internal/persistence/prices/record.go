// Package pricepersist stores end-of-day closes keyed by (ticker, date), prunes
// them to a rolling window and mirrors each ticker into a flat export file.
package pricepersist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eodprices/pkg/market"
)

// DefaultRetention is the number of trading days kept per ticker, roughly one year.
const DefaultRetention = 260

// ErrInvalidRecord is returned for writes with a bad ticker, date or close.
var ErrInvalidRecord = errors.New("pricepersist: invalid record")

// Record is the durable form of an observation.
type Record struct {
	Ticker    string    `json:"ticker"`
	Date      string    `json:"date"`
	Close     float64   `json:"close"`
	Source    string    `json:"source"`
	MarketCap *float64  `json:"marketCap,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot carries the "as of now" metadata attached to the newest point of a write.
type Snapshot struct {
	MarketCap *float64
	Currency  string
}

// Store is implemented by the Postgres service and the in-memory store.
type Store interface {
	Upsert(ctx context.Context, ticker, date string, price float64, source string, snap Snapshot) error
	UpsertSeries(ctx context.Context, ticker string, points []market.Point, source string, snap Snapshot) error
	GetLatest(ctx context.Context, ticker string) (*Record, error)
	GetRecent(ctx context.Context, ticker string, n int) ([]Record, error)
	Prune(ctx context.Context, ticker string, keep int) error
}

// normalizeSeries validates a write and returns the points in ascending date
// order with the newest date last.
func normalizeSeries(ticker string, points []market.Point) (string, []market.Point, error) {
	ticker = market.NormalizeTicker(ticker)
	if !market.ValidTicker(ticker) {
		return "", nil, fmt.Errorf("%w: ticker %q", ErrInvalidRecord, ticker)
	}
	if len(points) == 0 {
		return "", nil, fmt.Errorf("%w: no points for %s", ErrInvalidRecord, ticker)
	}
	for _, p := range points {
		if _, err := market.ParseDate(p.Date); err != nil {
			return "", nil, fmt.Errorf("%w: date %q for %s", ErrInvalidRecord, p.Date, ticker)
		}
		if _, ok := market.PositiveFloat(p.Close); !ok {
			return "", nil, fmt.Errorf("%w: close %v for %s on %s", ErrInvalidRecord, p.Close, ticker, p.Date)
		}
	}
	return ticker, market.SortPoints(points), nil
}

func normalizeSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "unknown"
	}
	return source
}

func reverse(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}
