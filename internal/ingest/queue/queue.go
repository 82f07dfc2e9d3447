// Package queue implements the bounded FIFO queues that couple the three
// pipeline stages. Producers block on full, consumers block on empty; the
// only non-blocking affordance is a timed dequeue so a stage can notice a
// stop signal without hanging indefinitely on an empty queue.
package queue

import (
	"context"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// Queue is a bounded FIFO of frame.Record. The zero value is not usable;
// construct with New.
type Queue struct {
	ch chan frame.Record
}

// New creates a queue with the given capacity. Capacity must be >= 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan frame.Record, capacity)}
}

// Cap is the configured capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Len is the number of records currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Enqueue blocks until there is room (returning true) or ctx is cancelled
// (returning false). Enqueue on a queue that Close has closed panics,
// including an Enqueue already blocked when Close runs.
func (q *Queue) Enqueue(ctx context.Context, rec frame.Record) bool {
	select {
	case q.ch <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

// Dequeue blocks until a record is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (frame.Record, bool) {
	select {
	case rec, ok := <-q.ch:
		return rec, ok
	case <-ctx.Done():
		return frame.Record{}, false
	}
}

// DequeueTimeout performs one blocking-with-timeout dequeue, per the
// concurrency model's "interruptible dequeue (reasonable timeout ≤100ms)"
// cancellation contract. It returns ok=false on timeout as well as on
// channel closure; the two cases are not distinguished.
func (q *Queue) DequeueTimeout(timeout time.Duration) (frame.Record, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rec, ok := <-q.ch:
		return rec, ok
	case <-timer.C:
		return frame.Record{}, false
	}
}

// Close closes the underlying channel. Any blocked Dequeue returns
// ok=false. Enqueue must not be called again after Close.
func (q *Queue) Close() {
	close(q.ch)
}
