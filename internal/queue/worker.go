package queue

import (
	"context"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	pricepersist "eodprices/internal/persistence/prices"
	"eodprices/pkg/httpx"
	"eodprices/pkg/market"
)

// DefaultInterval is the pause between worker iterations.
const DefaultInterval = 2 * time.Second

// Coarse job failure reasons exposed to callers.
const (
	ReasonNoPrice      = "no price available"
	ReasonImplausible  = "implausible price"
	ReasonStoreFailure = "storage failure"
)

// PriceFetcher resolves the latest close for a ticker.
type PriceFetcher interface {
	FetchLatestPrice(ctx context.Context, ticker string) (*market.Observation, error)
}

// Worker is the only consumer of a Queue. Each iteration handles at most one
// ticker and is followed by a fixed pause, whether or not work was found.
type Worker struct {
	queue       *Queue
	fetcher     PriceFetcher
	store       pricepersist.Store
	interval    time.Duration
	historyDays int
	sleep       httpx.SleepFunc
	now         func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithInterval sets the pause between iterations.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithHistoryDays caps how many points of a fetched series are written.
func WithHistoryDays(n int) WorkerOption {
	return func(w *Worker) {
		if n >= 0 {
			w.historyDays = n
		}
	}
}

// WithSleep replaces the pause primitive, mainly for tests.
func WithSleep(fn httpx.SleepFunc) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.sleep = fn
		}
	}
}

// WithWorkerClock injects the clock used for timing logs.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker wires a worker over q.
func NewWorker(q *Queue, fetcher PriceFetcher, store pricepersist.Store, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:    q,
		fetcher:  fetcher,
		store:    store,
		interval: DefaultInterval,
		sleep:    httpx.SleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Interval returns the pause between iterations.
func (w *Worker) Interval() time.Duration { return w.interval }

// Run processes jobs until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	logx.WithContext(ctx).Infof("price worker: started interval=%s", w.interval)
	for {
		w.Step(ctx)
		if err := w.sleep(ctx, w.interval); err != nil {
			logx.WithContext(ctx).Infof("price worker: stopped")
			return err
		}
	}
}

// Drain processes jobs until the queue is empty or ctx ends, pausing between
// jobs. It returns the number of jobs handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	handled := 0
	for w.queue.Len() > 0 {
		if _, ok := w.Step(ctx); ok {
			handled++
		}
		if w.queue.Len() == 0 {
			break
		}
		if err := w.sleep(ctx, w.interval); err != nil {
			return handled, err
		}
	}
	return handled, nil
}

// Step handles the head of the queue, if any, and returns its final status.
func (w *Worker) Step(ctx context.Context) (Status, bool) {
	ticker, ok := w.queue.claim()
	if !ok {
		return "", false
	}
	start := w.now()
	status, reason := w.process(ctx, ticker)
	w.queue.finish(ticker, status, reason)
	logx.WithContext(ctx).Infof("price worker: ticker=%s status=%s took=%s", ticker, status, w.now().Sub(start))
	return status, true
}

func (w *Worker) process(ctx context.Context, ticker string) (Status, string) {
	obs, err := w.fetcher.FetchLatestPrice(ctx, ticker)
	if err != nil || !obs.Valid() {
		if err == nil {
			err = market.ErrNoPrice
		}
		logx.WithContext(ctx).Errorf("price worker: fetch ticker=%s err=%v", ticker, err)
		return StatusError, ReasonNoPrice
	}

	latest, err := w.store.GetLatest(ctx, ticker)
	if err != nil {
		logx.WithContext(ctx).Errorf("price worker: read baseline ticker=%s err=%v", ticker, err)
		return StatusError, ReasonStoreFailure
	}
	var lastKnown float64
	if latest != nil {
		lastKnown = latest.Close
	}
	if !market.IsPlausible(obs.Close, lastKnown) {
		logx.WithContext(ctx).Errorf("price worker: rejected ticker=%s close=%.4f last=%.4f source=%s",
			ticker, obs.Close, lastKnown, obs.Source)
		return StatusError, ReasonImplausible
	}

	points := market.TrimHistory(obs.Points(), w.historyDays)
	snap := pricepersist.Snapshot{MarketCap: obs.MarketCap, Currency: obs.Currency}
	if err := w.store.UpsertSeries(ctx, ticker, points, obs.Source, snap); err != nil {
		if errors.Is(err, pricepersist.ErrInvalidRecord) {
			logx.WithContext(ctx).Errorf("price worker: invalid series ticker=%s err=%v", ticker, err)
			return StatusError, ReasonNoPrice
		}
		logx.WithContext(ctx).Errorf("price worker: store ticker=%s err=%v", ticker, err)
		return StatusError, ReasonStoreFailure
	}
	return StatusDone, ""
}
