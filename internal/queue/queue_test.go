package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueIsIdempotentWhileActive(t *testing.T) {
	q := New()

	require.Equal(t, StatusQueued, q.Enqueue("AAPL"))
	require.Equal(t, StatusQueued, q.Enqueue("aapl"))
	assert.Equal(t, 1, q.Len())

	ticker, ok := q.claim()
	require.True(t, ok)
	require.Equal(t, "AAPL", ticker)

	assert.Equal(t, StatusRunning, q.Enqueue("AAPL"))
	assert.Equal(t, 0, q.Len())

	job, ok := q.Status("AAPL")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, job.Status)
}

func TestEnqueueAfterTerminalRequeues(t *testing.T) {
	for _, terminal := range []Status{StatusDone, StatusError} {
		t.Run(string(terminal), func(t *testing.T) {
			q := New()
			q.Enqueue("MSFT")
			ticker, _ := q.claim()
			q.finish(ticker, terminal, "")

			job, ok := q.Status("MSFT")
			require.True(t, ok)
			assert.Equal(t, terminal, job.Status)

			assert.Equal(t, StatusQueued, q.Enqueue("MSFT"))
			assert.Equal(t, 1, q.Len())
		})
	}
}

func TestQueueIsFIFO(t *testing.T) {
	q := New()
	for _, ticker := range []string{"MSFT", "AAPL", "BRK-B", "AAPL"} {
		q.Enqueue(ticker)
	}
	require.Equal(t, 3, q.Len())

	var got []string
	for {
		ticker, ok := q.claim()
		if !ok {
			break
		}
		got = append(got, ticker)
	}
	assert.Equal(t, []string{"MSFT", "AAPL", "BRK-B"}, got)
}

func TestEnqueueRejectsInvalidTicker(t *testing.T) {
	q := New()
	assert.Equal(t, StatusError, q.Enqueue(""))
	assert.Equal(t, StatusError, q.Enqueue("not a ticker"))
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Snapshot())
}

func TestStatusUnknownTicker(t *testing.T) {
	_, ok := New().Status("NVDA")
	assert.False(t, ok)
}

func TestJobTimestampsFollowClock(t *testing.T) {
	base := time.Date(2025, 12, 17, 21, 0, 0, 0, time.UTC)
	now := base
	q := New(WithQueueClock(func() time.Time { return now }))

	q.Enqueue("AAPL")
	job, _ := q.Status("AAPL")
	assert.Equal(t, base, job.UpdatedAt)

	now = base.Add(time.Minute)
	q.claim()
	job, _ = q.Status("AAPL")
	assert.Equal(t, base.Add(time.Minute), job.UpdatedAt)

	now = base.Add(2 * time.Minute)
	q.finish("AAPL", StatusError, ReasonNoPrice)
	job, _ = q.Status("AAPL")
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, ReasonNoPrice, job.Reason)
	assert.Equal(t, base.Add(2*time.Minute), job.UpdatedAt)
}

func TestConcurrentEnqueueProducesOneJob(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	statuses := make([]Status, 50)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = q.Enqueue("TSLA")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, q.Len())
	for _, s := range statuses {
		assert.Equal(t, StatusQueued, s)
	}
}

func TestSnapshotAndCounts(t *testing.T) {
	q := New()
	q.Enqueue("MSFT")
	q.Enqueue("AAPL")
	ticker, _ := q.claim()
	q.finish(ticker, StatusDone, "")

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "AAPL", snap[0].Ticker)
	assert.Equal(t, StatusQueued, snap[0].Status)
	assert.Equal(t, "MSFT", snap[1].Ticker)
	assert.Equal(t, StatusDone, snap[1].Status)

	counts := q.Counts()
	assert.Equal(t, 1, counts[StatusQueued])
	assert.Equal(t, 1, counts[StatusDone])
}
