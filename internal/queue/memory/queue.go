// Package memory holds scrape runs waiting for the single scrape worker.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue buffers up to its capacity of runs. Enqueue never blocks; a full
// queue rejects the run with minutes.ErrConflict.
type Queue struct {
	mu     sync.Mutex
	ch     chan minutes.QueueItem
	closed bool
}

// NewQueue returns a queue holding at most capacity waiting runs. A
// capacity below 1 is raised to 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan minutes.QueueItem, capacity)}
}

// Enqueue adds a run behind those already waiting.
func (q *Queue) Enqueue(ctx context.Context, item minutes.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return fmt.Errorf("scrape queue is full (%d waiting): %w", len(q.ch), minutes.ErrConflict)
	}
}

// Dequeue waits for the next run until ctx ends or the queue is closed and
// drained.
func (q *Queue) Dequeue(ctx context.Context) (minutes.QueueItem, error) {
	select {
	case <-ctx.Done():
		return minutes.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return minutes.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Close stops new runs from being accepted. Runs already waiting can still
// be dequeued. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Len reports how many runs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

var _ minutes.Queue = (*Queue)(nil)
