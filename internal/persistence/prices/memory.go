package pricepersist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/pkg/market"
)

// MemoryStore is a process-local Store used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[string]map[string]Record
	opts     options
	exporter *Exporter
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{rows: make(map[string]map[string]Record), opts: o, exporter: o.exporter}
}

// Upsert writes a single close.
func (m *MemoryStore) Upsert(ctx context.Context, ticker, date string, price float64, source string, snap Snapshot) error {
	return m.UpsertSeries(ctx, ticker, []market.Point{{Date: date, Close: price}}, source, snap)
}

// UpsertSeries writes every point as one unit, then prunes and exports.
func (m *MemoryStore) UpsertSeries(ctx context.Context, ticker string, points []market.Point, source string, snap Snapshot) error {
	ticker, points, err := normalizeSeries(ticker, points)
	if err != nil {
		return err
	}
	source = normalizeSource(source)
	now := m.opts.now()
	newest := points[len(points)-1].Date

	m.mu.Lock()
	byDate := m.rows[ticker]
	if byDate == nil {
		byDate = make(map[string]Record)
		m.rows[ticker] = byDate
	}
	for _, p := range points {
		rec, exists := byDate[p.Date]
		if !exists {
			rec = Record{Ticker: ticker, Date: p.Date, CreatedAt: now}
		}
		rec.Close = p.Close
		rec.Source = source
		rec.UpdatedAt = now
		if p.Date == newest {
			if snap.MarketCap != nil {
				v := *snap.MarketCap
				rec.MarketCap = &v
			}
			if snap.Currency != "" {
				rec.Currency = snap.Currency
			}
		}
		byDate[p.Date] = rec
	}
	m.pruneLocked(ticker, m.opts.retention)
	m.mu.Unlock()

	m.export(ctx, ticker)
	return nil
}

// GetLatest returns the newest record of ticker, or nil when none exists.
func (m *MemoryStore) GetLatest(ctx context.Context, ticker string) (*Record, error) {
	recs, err := m.GetRecent(ctx, ticker, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// GetRecent returns up to n records of ticker, newest first.
func (m *MemoryStore) GetRecent(_ context.Context, ticker string, n int) ([]Record, error) {
	ticker = market.NormalizeTicker(ticker)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(ticker, n), nil
}

// Prune keeps the newest keep trading days of ticker.
func (m *MemoryStore) Prune(ctx context.Context, ticker string, keep int) error {
	ticker = market.NormalizeTicker(ticker)
	m.mu.Lock()
	m.pruneLocked(ticker, keep)
	m.mu.Unlock()
	m.export(ctx, ticker)
	return nil
}

func (m *MemoryStore) recentLocked(ticker string, n int) []Record {
	byDate := m.rows[ticker]
	out := make([]Record, 0, len(byDate))
	for _, rec := range byDate {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (m *MemoryStore) pruneLocked(ticker string, keep int) {
	if keep <= 0 {
		return
	}
	byDate := m.rows[ticker]
	if len(byDate) <= keep {
		return
	}
	kept := m.recentLocked(ticker, keep)
	cutoff := kept[len(kept)-1].Date
	for date := range byDate {
		if date < cutoff {
			delete(byDate, date)
		}
	}
}

func (m *MemoryStore) export(ctx context.Context, ticker string) {
	if m.exporter == nil {
		return
	}
	m.mu.RLock()
	recs := reverse(m.recentLocked(ticker, 0))
	m.mu.RUnlock()
	if _, err := m.exporter.Write(ticker, recs); err != nil {
		logx.WithContext(ctx).Errorf("pricepersist: export %s: %v", ticker, err)
	}
}

type options struct {
	retention int
	exporter  *Exporter
	now       func() time.Time
}

func defaultOptions() options {
	return options{retention: DefaultRetention, now: time.Now}
}

// Option configures a store.
type Option func(*options)

// WithRetention sets how many trading days are kept per ticker; 0 disables pruning.
func WithRetention(days int) Option {
	return func(o *options) {
		if days >= 0 {
			o.retention = days
		}
	}
}

// WithExporter enables the flat-file export after every write.
func WithExporter(e *Exporter) Option {
	return func(o *options) { o.exporter = e }
}

// WithClock injects the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
