package market

import (
	"context"
	"errors"
)

var (
	// ErrSymbolNotFound indicates the provider has no data for the symbol.
	ErrSymbolNotFound = errors.New("market: symbol not found")
	// ErrUnavailable indicates the provider cannot be used right now (no session, blocked).
	ErrUnavailable = errors.New("market: provider unavailable")
	// ErrNoPrice is returned when every source and symbol variant failed.
	ErrNoPrice = errors.New("market: no usable price")
)

// Provider fetches the latest end-of-day close for a single provider symbol.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (*Observation, error)
}

// Point is one trading day close.
type Point struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Observation is a freshly fetched end-of-day price, not yet validated or stored.
type Observation struct {
	Ticker    string   `json:"ticker"`
	Date      string   `json:"date"`
	Close     float64  `json:"close"`
	Source    string   `json:"source"`
	MarketCap *float64 `json:"marketCap,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	// History holds the provider's close series in ascending date order; its last
	// point matches Date/Close.
	History []Point `json:"history,omitempty"`
}

// Points returns the observation's series, or a single point when no history was supplied.
func (o *Observation) Points() []Point {
	if o == nil {
		return nil
	}
	if len(o.History) > 0 {
		return o.History
	}
	return []Point{{Date: o.Date, Close: o.Close}}
}

// Valid reports whether the observation carries a usable close.
func (o *Observation) Valid() bool {
	if o == nil || o.Date == "" {
		return false
	}
	_, ok := PositiveFloat(o.Close)
	return ok
}
