// Package pricecache serves cached end-of-day prices and schedules refreshes
// for tickers whose newest record has gone stale.
package pricecache

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	pricepersist "eodprices/internal/persistence/prices"
	"eodprices/internal/queue"
	"eodprices/pkg/market"
)

const (
	// DefaultFreshness is how long a stored close is served without a refresh.
	DefaultFreshness = 24 * time.Hour
	// DefaultErrorBackoff is how long a failed refresh is reported before retrying.
	DefaultErrorBackoff = 15 * time.Minute
)

// State is the coarse outcome reported to callers.
type State string

const (
	StateReady   State = "ready"
	StatePending State = "pending"
	StateError   State = "error"
)

// Result is what GetOrFetch hands back. Series is ascending and may hold stale
// data when State is not ready.
type Result struct {
	State     State          `json:"state"`
	Ticker    string         `json:"ticker"`
	Series    []market.Point `json:"series"`
	Close     float64        `json:"close,omitempty"`
	Date      string         `json:"date,omitempty"`
	Source    string         `json:"source,omitempty"`
	MarketCap *float64       `json:"marketCap,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Reader is the part of the store the service reads from.
type Reader interface {
	GetRecent(ctx context.Context, ticker string, n int) ([]pricepersist.Record, error)
}

// Scheduler is the job-control side of the fetch queue.
type Scheduler interface {
	Enqueue(ticker string) queue.Status
	Status(ticker string) (queue.Job, bool)
}

// Service is the freshness-gated read path.
type Service struct {
	store        Reader
	jobs         Scheduler
	freshness    time.Duration
	errorBackoff time.Duration
	seriesDays   int
	now          func() time.Time
	flight       syncx.SingleFlight
}

// Option configures a Service.
type Option func(*Service)

// WithFreshness sets the window within which stored data is served as ready.
func WithFreshness(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.freshness = d
		}
	}
}

// WithErrorBackoff sets how long a failed job suppresses new enqueues; 0 retries on every call.
func WithErrorBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.errorBackoff = d
		}
	}
}

// WithSeriesDays caps the number of points returned; 0 returns all retained.
func WithSeriesDays(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.seriesDays = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the read path over store and jobs.
func NewService(store Reader, jobs Scheduler, opts ...Option) *Service {
	s := &Service{
		store:        store,
		jobs:         jobs,
		freshness:    DefaultFreshness,
		errorBackoff: DefaultErrorBackoff,
		now:          time.Now,
		flight:       syncx.NewSingleFlight(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrFetch returns ready data when the newest record is fresh; otherwise it
// schedules a refresh and returns pending without waiting. Concurrent calls for
// the same ticker share one evaluation.
//
// When the ticker's last job failed less than the error backoff ago, stale data
// is returned with state error and nothing is enqueued; once the backoff has
// passed the usual enqueue and pending apply. WithErrorBackoff(0) disables this
// and always enqueues.
func (s *Service) GetOrFetch(ctx context.Context, ticker string) Result {
	ticker = market.NormalizeTicker(ticker)
	if !market.ValidTicker(ticker) {
		return Result{State: StateError, Ticker: ticker}
	}
	v, err := s.flight.Do(ticker, func() (any, error) {
		return s.evaluate(ctx, ticker), nil
	})
	if err != nil {
		return Result{State: StateError, Ticker: ticker}
	}
	return v.(Result)
}

func (s *Service) evaluate(ctx context.Context, ticker string) Result {
	res := Result{Ticker: ticker}
	recs, err := s.store.GetRecent(ctx, ticker, s.seriesDays)
	if err != nil {
		logx.WithContext(ctx).Errorf("pricecache: read ticker=%s err=%v", ticker, err)
		res.State = StateError
		return res
	}
	fill(&res, recs)

	now := s.now()
	if len(recs) > 0 && now.Sub(recs[0].UpdatedAt) < s.freshness {
		res.State = StateReady
		return res
	}

	if job, ok := s.jobs.Status(ticker); ok && job.Status == queue.StatusError &&
		s.errorBackoff > 0 && now.Sub(job.UpdatedAt) < s.errorBackoff {
		res.State = StateError
		return res
	}

	switch s.jobs.Enqueue(ticker) {
	case queue.StatusError:
		res.State = StateError
	default:
		res.State = StatePending
	}
	return res
}

// Enqueue schedules a refresh regardless of freshness.
func (s *Service) Enqueue(ticker string) queue.Status {
	return s.jobs.Enqueue(ticker)
}

// Status reports the last known job of ticker.
func (s *Service) Status(ticker string) (queue.Job, bool) {
	return s.jobs.Status(ticker)
}

// fill copies newest-first records into res as an ascending series.
func fill(res *Result, recs []pricepersist.Record) {
	if len(recs) == 0 {
		res.Series = []market.Point{}
		return
	}
	latest := recs[0]
	res.Close = latest.Close
	res.Date = latest.Date
	res.Source = latest.Source
	res.MarketCap = latest.MarketCap
	res.Currency = latest.Currency
	res.UpdatedAt = latest.UpdatedAt

	res.Series = make([]market.Point, len(recs))
	for i, r := range recs {
		res.Series[len(recs)-1-i] = market.Point{Date: r.Date, Close: r.Close}
	}
}
