// Package ringbuf provides a lock-free, single-producer single-consumer (SPSC)
// ring buffer. The streaming runner uses it to hand decoded candles from the
// Redis reader goroutine to the goroutine that owns the dataset.
package ringbuf

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// idleSleep bounds how long a waiting side sleeps between polls.
const idleSleep = 200 * time.Microsecond

// Ring is a lock-free SPSC ring buffer.
// Size must be a power of two for fast bitwise modulo.
type Ring[T any] struct {
	buf  []T
	mask uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	// Overflow counter (atomic, for metrics)
	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New[T any](capacity int) *Ring[T] {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Push appends v. Returns false if the buffer is full (v is NOT written in
// that case). Non-blocking.
func (r *Ring[T]) Push(v T) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		r.overflow.Add(1)
		return false
	}

	r.buf[head&r.mask] = v
	r.head.Store(head + 1)
	return true
}

// Pop retrieves the oldest value. Returns false if the buffer is empty.
// Non-blocking.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return zero, false
	}

	v := r.buf[tail&r.mask]
	r.buf[tail&r.mask] = zero
	r.tail.Store(tail + 1)
	return v, true
}

// PushWait pushes v, waiting while the buffer is full. Each full attempt
// counts as an overflow.
func (r *Ring[T]) PushWait(ctx context.Context, v T) error {
	for spins := 0; !r.Push(v); spins++ {
		if err := backoff(ctx, spins); err != nil {
			return err
		}
	}
	return nil
}

// PopWait pops the oldest value, waiting while the buffer is empty.
func (r *Ring[T]) PopWait(ctx context.Context) (T, error) {
	for spins := 0; ; spins++ {
		if v, ok := r.Pop(); ok {
			return v, nil
		}
		if err := backoff(ctx, spins); err != nil {
			var zero T
			return zero, err
		}
	}
}

func backoff(ctx context.Context, spins int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if spins < 64 {
		runtime.Gosched()
		return nil
	}
	time.Sleep(idleSleep)
	return nil
}

// Len returns the current number of items in the buffer.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of rejected pushes due to full buffer.
func (r *Ring[T]) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
