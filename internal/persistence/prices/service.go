package pricepersist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "eodprices/internal/cache"
	"eodprices/pkg/market"
)

const (
	upsertSQL = `INSERT INTO prices_eod (ticker, date, close, source, market_cap, currency, created_at, updated_at)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, $7)
ON CONFLICT (ticker, date) DO UPDATE SET
	close = EXCLUDED.close,
	source = EXCLUDED.source,
	market_cap = COALESCE(EXCLUDED.market_cap, prices_eod.market_cap),
	currency = COALESCE(EXCLUDED.currency, prices_eod.currency),
	updated_at = EXCLUDED.updated_at`

	recentSQL = `SELECT ticker, to_char(date, 'YYYY-MM-DD') AS date, close, source, market_cap, currency, created_at, updated_at
FROM prices_eod WHERE ticker = $1 ORDER BY date DESC LIMIT $2`

	allSQL = `SELECT ticker, to_char(date, 'YYYY-MM-DD') AS date, close, source, market_cap, currency, created_at, updated_at
FROM prices_eod WHERE ticker = $1 ORDER BY date ASC`

	pruneSQL = `DELETE FROM prices_eod WHERE ticker = $1 AND date < (
	SELECT MIN(date) FROM (SELECT date FROM prices_eod WHERE ticker = $1 ORDER BY date DESC LIMIT $2) AS kept
)`
)

type recordRow struct {
	Ticker    string          `db:"ticker"`
	Date      string          `db:"date"`
	Close     float64         `db:"close"`
	Source    string          `db:"source"`
	MarketCap sql.NullFloat64 `db:"market_cap"`
	Currency  sql.NullString  `db:"currency"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r recordRow) record() Record {
	rec := Record{
		Ticker:    r.Ticker,
		Date:      r.Date,
		Close:     r.Close,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.MarketCap.Valid {
		v := r.MarketCap.Float64
		rec.MarketCap = &v
	}
	if r.Currency.Valid {
		rec.Currency = r.Currency.String
	}
	return rec
}

// Service is the PostgreSQL-backed Store with an optional Redis read-through
// cache for latest records.
type Service struct {
	sqlConn  sqlx.SqlConn
	cache    gocache.Cache
	ttl      cachekeys.TTLSet
	opts     options
	exporter *Exporter
}

// Config enumerates dependencies of the Postgres store.
type Config struct {
	SQLConn sqlx.SqlConn
	Cache   gocache.Cache
	TTL     cachekeys.TTLSet
}

// NewService wires the Postgres store. Returns nil when no connection is configured.
func NewService(cfg Config, opts ...Option) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{sqlConn: cfg.SQLConn, cache: cfg.Cache, ttl: cfg.TTL, opts: o, exporter: o.exporter}
}

// Upsert writes a single close.
func (s *Service) Upsert(ctx context.Context, ticker, date string, price float64, source string, snap Snapshot) error {
	return s.UpsertSeries(ctx, ticker, []market.Point{{Date: date, Close: price}}, source, snap)
}

// UpsertSeries writes all points and prunes in one transaction, then refreshes
// the export file. Only the newest point receives the snapshot metadata.
func (s *Service) UpsertSeries(ctx context.Context, ticker string, points []market.Point, source string, snap Snapshot) error {
	ticker, points, err := normalizeSeries(ticker, points)
	if err != nil {
		return err
	}
	source = normalizeSource(source)
	now := s.opts.now().UTC()
	newest := points[len(points)-1].Date

	err = s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, p := range points {
			var marketCap sql.NullFloat64
			var currency sql.NullString
			if p.Date == newest {
				if snap.MarketCap != nil {
					marketCap = sql.NullFloat64{Float64: *snap.MarketCap, Valid: true}
				}
				if snap.Currency != "" {
					currency = sql.NullString{String: snap.Currency, Valid: true}
				}
			}
			if _, err := session.ExecCtx(ctx, upsertSQL, ticker, p.Date, p.Close, source, marketCap, currency, now); err != nil {
				return fmt.Errorf("upsert %s %s: %w", ticker, p.Date, err)
			}
		}
		if s.opts.retention > 0 {
			if _, err := session.ExecCtx(ctx, pruneSQL, ticker, s.opts.retention); err != nil {
				return fmt.Errorf("prune %s: %w", ticker, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pricepersist: %w", err)
	}

	s.invalidate(ctx, ticker)
	s.export(ctx, ticker)
	return nil
}

// GetLatest returns the newest record of ticker, or nil when none exists.
func (s *Service) GetLatest(ctx context.Context, ticker string) (*Record, error) {
	ticker = market.NormalizeTicker(ticker)
	key := cachekeys.LatestPriceKey(ticker)
	if s.cache != nil {
		var cached Record
		err := s.cache.GetCtx(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("pricepersist: cache get key=%s err=%v", key, err)
		}
	}

	recs, err := s.GetRecent(ctx, ticker, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	latest := recs[0]
	if s.cache != nil {
		if ttl := s.ttl.LatestPriceTTL(); ttl > 0 {
			if err := s.cache.SetWithExpireCtx(ctx, key, latest, ttl); err != nil {
				logx.WithContext(ctx).Errorf("pricepersist: cache set key=%s err=%v", key, err)
			}
		}
	}
	return &latest, nil
}

// GetRecent returns up to n records of ticker, newest first.
func (s *Service) GetRecent(ctx context.Context, ticker string, n int) ([]Record, error) {
	ticker = market.NormalizeTicker(ticker)
	if n <= 0 {
		n = math.MaxInt32
	}
	var rows []recordRow
	if err := s.sqlConn.QueryRowsCtx(ctx, &rows, recentSQL, ticker, n); err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("pricepersist: recent %s: %w", ticker, err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// Prune keeps the newest keep trading days of ticker.
func (s *Service) Prune(ctx context.Context, ticker string, keep int) error {
	ticker = market.NormalizeTicker(ticker)
	if keep <= 0 {
		return nil
	}
	if _, err := s.sqlConn.ExecCtx(ctx, pruneSQL, ticker, keep); err != nil {
		return fmt.Errorf("pricepersist: prune %s: %w", ticker, err)
	}
	s.invalidate(ctx, ticker)
	s.export(ctx, ticker)
	return nil
}

func (s *Service) invalidate(ctx context.Context, ticker string) {
	if s.cache == nil {
		return
	}
	key := cachekeys.LatestPriceKey(ticker)
	if err := s.cache.DelCtx(ctx, key); err != nil {
		logx.WithContext(ctx).Errorf("pricepersist: cache del key=%s err=%v", key, err)
	}
}

func (s *Service) export(ctx context.Context, ticker string) {
	if s.exporter == nil {
		return
	}
	var rows []recordRow
	if err := s.sqlConn.QueryRowsCtx(ctx, &rows, allSQL, ticker); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		logx.WithContext(ctx).Errorf("pricepersist: export query %s: %v", ticker, err)
		return
	}
	recs := make([]Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	if _, err := s.exporter.Write(ticker, recs); err != nil {
		logx.WithContext(ctx).Errorf("pricepersist: export %s: %v", ticker, err)
	}
}
