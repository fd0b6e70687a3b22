package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tradelab/internal/backtest"
)

// BufferedPublisher wraps a Publisher with a circuit breaker.
// During circuit-open state, writes are buffered locally and flushed
// when the circuit closes again. Writes reach Redis in publish order: a new
// write waits behind anything still buffered.
type BufferedPublisher struct {
	w    writer
	keys Keys
	cb   *CircuitBreaker
	ctx  context.Context

	sendMu sync.Mutex // serializes send, flush and Close

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedPublisher creates a BufferedPublisher wrapping p.
func NewBufferedPublisher(ctx context.Context, p *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	return newBuffered(ctx, p, p.keys, cb, maxBufferSize)
}

func newBuffered(ctx context.Context, w writer, keys Keys, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		w:      w,
		keys:   keys,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bp.Flush()
		}
	}

	return bp
}

// PublishTransition publishes ev through the circuit breaker.
// If the circuit is open, the write is buffered locally.
func (bp *BufferedPublisher) PublishTransition(ev Transition) error {
	w, err := bp.keys.transition(ev)
	if err != nil {
		return err
	}
	return bp.send(w)
}

// PublishTrade appends a closed trade through the circuit breaker.
func (bp *BufferedPublisher) PublishTrade(strategy string, t backtest.Trade) error {
	w, err := bp.keys.trade(strategy, t)
	if err != nil {
		return err
	}
	return bp.send(w)
}

// PublishReport stores a summary through the circuit breaker.
func (bp *BufferedPublisher) PublishReport(s backtest.Summary) error {
	w, err := bp.keys.report(s)
	if err != nil {
		return err
	}
	return bp.send(w)
}

func (bp *BufferedPublisher) send(w pendingWrite) error {
	bp.sendMu.Lock()
	defer bp.sendMu.Unlock()

	if bp.PendingCount() > 0 {
		bp.drain()
		if bp.PendingCount() > 0 {
			bp.bufferWrite(w)
			return nil
		}
	}
	err := bp.cb.Execute(func() error {
		return bp.w.write(bp.ctx, w)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bp.bufferWrite(w)
		return nil // buffered, not lost
	}
	return err
}

func (bp *BufferedPublisher) bufferWrite(w pendingWrite) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full, drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, w)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays buffered writes in order through the circuit breaker. It
// stops at the first write that fails or is rejected and keeps the rest.
func (bp *BufferedPublisher) Flush() {
	bp.sendMu.Lock()
	defer bp.sendMu.Unlock()
	bp.drain()
}

// drain requires sendMu.
func (bp *BufferedPublisher) drain() {
	flushed := 0
	for {
		bp.mu.Lock()
		if len(bp.buffer) == 0 {
			bp.mu.Unlock()
			break
		}
		w := bp.buffer[0]
		bp.mu.Unlock()

		err := bp.cb.Execute(func() error {
			return bp.w.write(bp.ctx, w)
		})
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) {
				slog.Warn("buffered write failed on flush", "key", w.key, "error", err)
			}
			break
		}
		bp.mu.Lock()
		bp.buffer = bp.buffer[1:]
		bp.mu.Unlock()
		flushed++
	}

	if flushed == 0 {
		return
	}
	slog.Info("buffered writes flushed", "count", flushed, "pending", bp.PendingCount())
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// Close writes whatever is still buffered directly, bypassing the breaker,
// and reports the writes that could not be delivered.
func (bp *BufferedPublisher) Close(ctx context.Context) error {
	bp.sendMu.Lock()
	defer bp.sendMu.Unlock()

	bp.mu.Lock()
	pending := bp.buffer
	bp.buffer = nil
	bp.mu.Unlock()

	var errs []error
	for _, w := range pending {
		if err := bp.w.write(ctx, w); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d buffered writes lost: %w", len(errs), len(pending), errors.Join(errs...))
	}
	return nil
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
