// Package queue provides the bounded FIFO that hands batches from tokenizers to the writer.
// A full queue blocks producers; this is the only back-pressure between fast
// tokenizers and slower store transactions.
package queue

import "context"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 64

// Queue is a bounded, blocking FIFO safe for many producers and consumers.
type Queue[T any] struct {
	ch chan T
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Put enqueues v, blocking while the queue is full.
// It returns ctx.Err() if ctx is done before space frees up.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the receive side. Consumers select on it alongside their own events.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue bound.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
