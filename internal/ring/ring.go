// Package ring provides a wait-free single-producer/single-consumer queue.
//
// One goroutine may call the producer methods (Push, PushSlice) while another
// goroutine calls the consumer methods (Pop, PopSlice, Drain). Neither side
// ever blocks or allocates, which makes the queue usable from an audio
// callback. Len and Cap may be called from either side.
package ring

import "sync/atomic"

// cacheLine separates the producer and consumer cursors.
const cacheLine = 64

// SPSC is a bounded FIFO with power-of-two capacity. Overflow is reported
// to the producer instead of overwriting unread elements.
type SPSC[T any] struct {
	buf  []T
	mask uint64

	_    [cacheLine]byte
	head atomic.Uint64 // next index to read, written by the consumer

	_    [cacheLine]byte
	tail atomic.Uint64 // next index to write, written by the producer
}

// New creates a queue that holds at least capacity elements. The capacity is
// rounded up to the next power of two; values below 1 become 1.
func New[T any](capacity int) *SPSC[T] {
	n := nextPow2(capacity)

	return &SPSC[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Cap returns the number of elements the queue can hold.
func (q *SPSC[T]) Cap() int {
	return len(q.buf)
}

// Len returns the number of unread elements.
func (q *SPSC[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Push appends v and reports whether there was room for it.
func (q *SPSC[T]) Push(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == uint64(len(q.buf)) {
		return false
	}

	q.buf[tail&q.mask] = v
	q.tail.Store(tail + 1)

	return true
}

// PushSlice appends as many elements of p as fit and returns the count.
func (q *SPSC[T]) PushSlice(p []T) int {
	tail := q.tail.Load()
	free := uint64(len(q.buf)) - (tail - q.head.Load())

	n := uint64(len(p))
	if n > free {
		n = free
	}

	for i := uint64(0); i < n; i++ {
		q.buf[(tail+i)&q.mask] = p[i]
	}

	q.tail.Store(tail + n)

	return int(n)
}

// Pop removes the oldest element. ok is false when the queue is empty.
func (q *SPSC[T]) Pop() (v T, ok bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return v, false
	}

	idx := head & q.mask
	v = q.buf[idx]

	var zero T
	q.buf[idx] = zero
	q.head.Store(head + 1)

	return v, true
}

// PopSlice moves up to len(p) of the oldest elements into p and returns the
// count.
func (q *SPSC[T]) PopSlice(p []T) int {
	head := q.head.Load()
	avail := q.tail.Load() - head

	n := uint64(len(p))
	if n > avail {
		n = avail
	}

	for i := uint64(0); i < n; i++ {
		p[i] = q.buf[(head+i)&q.mask]
	}

	q.head.Store(head + n)

	return int(n)
}

// Drain pops every element currently queued and passes it to fn in FIFO
// order. Elements pushed while Drain runs may or may not be included.
func (q *SPSC[T]) Drain(fn func(T)) int {
	count := 0

	for {
		v, ok := q.Pop()
		if !ok {
			return count
		}

		fn(v)
		count++
	}
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}

	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
