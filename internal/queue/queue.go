// Package queue holds the per-ticker deduplicating fetch queue and the single
// worker that drains it at a fixed pace.
package queue

import (
	"sort"
	"sync"
	"time"

	"eodprices/pkg/market"
)

// Status is the lifecycle state of a fetch job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Active reports whether a job in this state is still waiting or in progress.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// Job is the latest known state of a ticker's fetch.
type Job struct {
	Ticker    string    `json:"ticker"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Reason is a coarse, caller-safe explanation for StatusError.
	Reason string `json:"reason,omitempty"`
}

// Queue is a FIFO of distinct tickers. A ticker appears at most once while
// queued or running; terminal states stay visible until the next Enqueue.
type Queue struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueClock injects the time source used for job timestamps.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New constructs an empty queue.
func New(opts ...QueueOption) *Queue {
	q := &Queue{jobs: make(map[string]*Job), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules ticker unless it is already queued or running, in which
// case the existing status is returned and nothing changes. Tickers that can
// never be fetched are reported as StatusError without being queued.
func (q *Queue) Enqueue(ticker string) Status {
	ticker = market.NormalizeTicker(ticker)
	if !market.ValidTicker(ticker) {
		return StatusError
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[ticker]; ok && job.Status.Active() {
		return job.Status
	}
	q.jobs[ticker] = &Job{Ticker: ticker, Status: StatusQueued, UpdatedAt: q.now()}
	q.order = append(q.order, ticker)
	return StatusQueued
}

// Status returns the job of ticker.
func (q *Queue) Status(ticker string) (Job, bool) {
	ticker = market.NormalizeTicker(ticker)
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[ticker]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Snapshot returns every known job sorted by ticker.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Counts tallies jobs per status.
func (q *Queue) Counts() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[Status]int, 4)
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	return counts
}

// claim pops the head of the queue and marks it running.
func (q *Queue) claim() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	ticker := q.order[0]
	q.order[0] = ""
	q.order = q.order[1:]
	job := q.jobs[ticker]
	job.Status = StatusRunning
	job.Reason = ""
	job.UpdatedAt = q.now()
	return ticker, true
}

func (q *Queue) finish(ticker string, status Status, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[ticker]
	if !ok {
		return
	}
	job.Status = status
	job.Reason = reason
	job.UpdatedAt = q.now()
}
