package engine

import (
	"sync"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/ir"
)

// submission is a transaction waiting for the Run loop.
type submission struct {
	tx     auth.SignedTx
	result chan submitResult // buffered, size 1
}

type submitResult struct {
	receipt ir.Receipt
	err     error
}

// submitQueue is a thread-safe FIFO of submissions.
//
// The signal channel enables context-aware waiting in the Run loop.
type submitQueue struct {
	mu     sync.Mutex
	items  []submission
	closed bool
	signal chan struct{} // buffered, size 1
}

func newSubmitQueue() *submitQueue {
	return &submitQueue{
		items:  make([]submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds s to the back of the queue.
// Returns false if the queue is closed.
func (q *submitQueue) Enqueue(s submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, s)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front submission without blocking.
func (q *submitQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}
	s := q.items[0]
	q.items[0] = submission{} // release for GC
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return s, true
}

// Wait returns a channel that signals when submissions may be available.
// It is closed when the queue closes.
func (q *submitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting submissions.
func (q *submitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *submitQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes waiters.
// Returns the submissions that were still waiting.
func (q *submitQueue) Close() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	pending := q.items
	q.items = nil
	return pending
}
