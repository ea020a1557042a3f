// Package ingest hands externally supplied mod references (dropped files,
// deep links) from arbitrary goroutines to the single goroutine that
// processes them.
package ingest

import (
	"iter"
	"sync"
)

// Queue is a FIFO with an arm-on-demand readiness signal. Producers call
// Enqueue from any goroutine. The consumer registers a signal with
// SetSignal and calls Drain from its own goroutine whenever the signal
// fires.
type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	signal  func()
	waiting bool
}

// NewQueue returns an empty queue with no consumer registered.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item and makes sure exactly one waiter is armed to tell
// the consumer about it. The waiter blocks until a signal is registered, so
// items enqueued before the consumer is ready are not lost.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.armLocked()
}

// armLocked starts a waiter unless one is already pending. q.mu must be held.
func (q *Queue[T]) armLocked() {
	if q.waiting {
		return
	}
	q.waiting = true
	go q.wait()
}

func (q *Queue[T]) wait() {
	q.mu.Lock()
	for q.signal == nil {
		q.cond.Wait()
	}
	signal := q.signal
	// Cleared before firing: an Enqueue racing with the consumer's drain
	// arms a fresh waiter instead of relying on this one.
	q.waiting = false
	q.mu.Unlock()

	signal()
}

// SetSignal registers the consumer's readiness callback and releases any
// waiter blocked on it. fn runs on the waiter's goroutine.
func (q *Queue[T]) SetSignal(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.signal = fn
	q.cond.Broadcast()
}

// Drain yields queued items in FIFO order until the queue is empty. Items
// enqueued while the sequence is being consumed are yielded by the same
// range loop. Breaking out early leaves the rest for the next call.
func (q *Queue[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, ok := q.pop()
			if !ok {
				return
			}
			if !yield(item) {
				q.mu.Lock()
				if len(q.items) > 0 {
					q.armLocked()
				}
				q.mu.Unlock()
				return
			}
		}
	}
}

func (q *Queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len reports how many items are waiting.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
