// Package buffer provides bounded in-memory queues for audio pipelines.
//
// The main type is Queue, a thread-safe ring that drops the oldest entry
// when full instead of blocking the producer. The device's inbound audio
// path prefers freshness to completeness: a stalled consumer must never
// back-pressure the network reader, and the newest audio is the most
// relevant to play.
package buffer

import (
	"context"
	"io"
	"sync"
)

// Queue is a bounded FIFO of T with drop-oldest overflow.
//
// Push never blocks: when the queue is full the oldest entry is discarded
// to make room. Pop blocks until an entry is available, the context is
// cancelled, or the queue is closed and drained.
type Queue[T any] struct {
	notify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    int64
	closed     bool
}

// NewQueue creates a Queue with the given capacity. Capacity must be > 0.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("buffer: queue capacity must be positive")
	}
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		buf:    make([]T, capacity),
	}
}

// Push appends v, discarding the oldest entry if the queue is full.
// It reports whether an entry was dropped to make room.
// Push on a closed queue is a no-op returning false.
func (q *Queue[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if int(q.tail-q.head) == len(q.buf) {
		q.head++
		q.dropped++
		dropped = true
	}
	q.buf[int(q.tail%int64(len(q.buf)))] = v
	q.tail++
	// Wake a blocked Pop. Sent under the lock so Close cannot close the
	// channel between the closed check above and this send.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return dropped
}

// Pop removes and returns the oldest entry. It blocks until an entry is
// available. Returns io.EOF once the queue is closed and empty, or the
// context error if ctx is cancelled first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.head != q.tail {
			i := int(q.head % int64(len(q.buf)))
			v := q.buf[i]
			q.buf[i] = zero
			q.head++
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, io.EOF
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPop removes and returns the oldest entry without blocking.
// The second return is false when the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return zero, false
	}
	i := int(q.head % int64(len(q.buf)))
	v := q.buf[i]
	q.buf[i] = zero
	q.head++
	return v, true
}

// Drain discards all queued entries and returns how many were removed.
// Used at interaction boundaries so stale audio from a previous turn
// cannot bleed into the next playback.
func (q *Queue[T]) Drain() int {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int(q.tail - q.head)
	for i := q.head; i < q.tail; i++ {
		q.buf[int(i%int64(len(q.buf)))] = zero
	}
	q.head = q.tail
	return n
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Dropped returns the total number of entries discarded by overflow.
func (q *Queue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close marks the queue closed. Queued entries remain poppable; once
// drained, Pop returns io.EOF. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.notify)
}
