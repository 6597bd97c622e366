// Package stooq implements the CSV daily-history fallback provider.
package stooq

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"eodprices/pkg/httpx"
	"eodprices/pkg/market"
)

const defaultBaseURL = "https://stooq.com"

// marketSuffixes are exchange suffixes stooq understands; bare symbols default to .us.
var marketSuffixes = []string{".us", ".uk", ".de", ".jp", ".hk", ".pl", ".f"}

func init() {
	market.RegisterProvider("stooq", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		client := httpx.NewClient(cfg.ClientOptions()...)
		return NewProvider(name, client, WithBaseURL(cfg.BaseURL), WithHistoryDays(cfg.HistoryDays)), nil
	})
}

// Getter is the subset of the HTTP client used by the provider.
type Getter interface {
	GetText(ctx context.Context, url string, opts ...httpx.RequestOption) (string, error)
}

// Provider reads daily OHLCV CSV files. It returns close, date and history only.
type Provider struct {
	name        string
	client      Getter
	baseURL     string
	historyDays int
}

// Option customises the provider.
type Option func(*Provider)

// WithBaseURL overrides the stooq host.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if strings.TrimSpace(u) != "" {
			p.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
		}
	}
}

// WithHistoryDays caps the number of history points returned.
func WithHistoryDays(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.historyDays = n
		}
	}
}

// NewProvider constructs a stooq provider.
func NewProvider(name string, client Getter, opts ...Option) *Provider {
	if name == "" {
		name = "stooq"
	}
	p := &Provider{name: name, client: client, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Fetch downloads the daily CSV for symbol and returns its latest valid row.
func (p *Provider) Fetch(ctx context.Context, symbol string) (*market.Observation, error) {
	q := url.Values{}
	q.Set("s", stooqSymbol(symbol))
	q.Set("i", "d")
	body, err := p.client.GetText(ctx, p.baseURL+"/q/d/l/?"+q.Encode())
	if err != nil {
		if httpx.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("stooq: %s: %w", symbol, market.ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("stooq: %s: %w", symbol, err)
	}

	points, err := ParseCSV(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stooq: %s: %w", symbol, err)
	}
	points = market.TrimHistory(points, p.historyDays)
	last := points[len(points)-1]
	return &market.Observation{Date: last.Date, Close: last.Close, History: points}, nil
}

func stooqSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	for _, suffix := range marketSuffixes {
		if strings.HasSuffix(s, suffix) {
			return s
		}
	}
	return s + ".us"
}

// ParseCSV reads a Date,Open,High,Low,Close,Volume file in any row order and
// returns the valid closes in ascending date order. Rows whose date or close do
// not parse are skipped.
func ParseCSV(r io.Reader) ([]market.Point, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, market.ErrSymbolNotFound
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	dateIdx, closeIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "date":
			dateIdx = i
		case "close":
			closeIdx = i
		}
	}
	if dateIdx < 0 || closeIdx < 0 {
		// stooq answers "No data" as a plain body for unknown symbols.
		return nil, market.ErrSymbolNotFound
	}

	var points []market.Point
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if dateIdx >= len(row) || closeIdx >= len(row) {
			continue
		}
		if _, err := market.ParseDate(row[dateIdx]); err != nil {
			continue
		}
		c, ok := market.ParsePositive(row[closeIdx])
		if !ok {
			continue
		}
		points = append(points, market.Point{Date: strings.TrimSpace(row[dateIdx]), Close: c})
	}
	if len(points) == 0 {
		return nil, market.ErrSymbolNotFound
	}
	return market.SortPoints(points), nil
}
