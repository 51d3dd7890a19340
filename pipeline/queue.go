package pipeline

import (
	"context"

	"github.com/pilosa/wdhistory"
)

// WorkQueue is the bounded hand-off between the reader and the workers. A
// nil page is the stop sentinel; each worker exits after taking one.
type WorkQueue struct {
	ch chan *wdhistory.Page
}

// NewWorkQueue returns a WorkQueue holding at most size pages.
func NewWorkQueue(size int) *WorkQueue {
	return &WorkQueue{ch: make(chan *wdhistory.Page, size)}
}

// Put enqueues p, blocking while the queue is full. It fails only if ctx
// is done.
func (q *WorkQueue) Put(ctx context.Context, p *wdhistory.Page) error {
	select {
	case q.ch <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop enqueues n stop sentinels.
func (q *WorkQueue) Stop(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := q.Put(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

// Get dequeues the next page, which is nil for a stop sentinel.
func (q *WorkQueue) Get(ctx context.Context) (*wdhistory.Page, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued pages.
func (q *WorkQueue) Len() int { return len(q.ch) }

// Cap returns the capacity of the queue.
func (q *WorkQueue) Cap() int { return cap(q.ch) }
