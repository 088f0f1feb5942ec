package util

import (
	"runtime"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Event Queue
// --------------------------------------------------------------------------

type qnode[T any] struct {
	value T
	next  atomic.Pointer[qnode[T]]
}

// Queue is an unbounded lock-free multi-producer single-consumer queue.
//
// Any number of goroutines may Push concurrently. A single internal goroutine
// moves the values to the channel returned by Recv, so the consumer sees them one
// after another. Values pushed by the same goroutine keep their order, values
// pushed by different goroutines are ordered by whichever append wins the CAS.
type Queue[T any] struct {
	head   atomic.Pointer[qnode[T]]
	tail   atomic.Pointer[qnode[T]]
	out    chan T
	wake   chan struct{}
	closed atomic.Bool
	size   atomic.Int64
}

// NewQueue creates a queue and starts its forwarding goroutine.
func NewQueue[T any]() *Queue[T] {
	sentinel := &qnode[T]{}
	q := &Queue[T]{
		out:  make(chan T),
		wake: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()
	return q
}

// Push appends a value. It returns false if the queue is closed.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &qnode[T]{value: value}
	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.size.Add(1)
				q.signal()
				return true
			}
		} else {
			// another producer appended but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain moves every linked value to the output channel and reports whether
// anything was moved.
func (q *Queue[T]) drain() bool {
	moved := false
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return moved
		}
		moved = true
		value := next.value
		q.head.Store(next)
		q.size.Add(-1)
		q.out <- value

		var zero T
		next.value = zero
	}
}

func (q *Queue[T]) forward() {
	defer close(q.out)
	for {
		q.drain()
		if q.closed.Load() {
			// values linked between the last drain and Close
			q.drain()
			return
		}
		<-q.wake
	}
}

// Recv returns the channel the consumer reads from. It is closed once the queue
// is closed and every pushed value has been delivered.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting values. Values already pushed are still delivered.
func (q *Queue[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.signal()
	}
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	return q.closed.Load()
}

// Len returns the number of values waiting to be delivered.
func (q *Queue[T]) Len() int {
	return int(q.size.Load())
}
