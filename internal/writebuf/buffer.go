// Package writebuf coalesces many small, frequent store writes into
// infrequent batched transactions, so a fast-moving subscription does not
// saturate the store with per-event transactions.
//
// Pending writes are plain (SQL, args) statements in FIFO order. A flush is
// scheduled on a short debounce timer after the first buffered write, takes
// at most MaxBatchSize statements per transaction, and never overlaps with
// another flush. Transaction failures are retried with exponential backoff;
// an error signature indicating the store connection is gone trips a circuit
// breaker that preserves the batch and re-schedules flushing instead of
// burning retry budget.
package writebuf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfit/liftsync/internal/store"
)

// Sink applies a batch of statements in one transaction.
// Implemented by *store.Store (wrapped in the transaction serializer).
type Sink interface {
	ExecBatch(ctx context.Context, stmts []store.Statement) (skipped int, err error)
}

// Config tunes buffering behavior. Zero fields take defaults.
type Config struct {
	Capacity     int           // max queued statements; oldest dropped on overflow (default 1000)
	MaxBatchSize int           // statements per transaction attempt (default 100)
	Debounce     time.Duration // delay after first buffered write (default 50ms)
	BaseDelay    time.Duration // first retry delay (default 100ms)
	MaxBackoff   time.Duration // retry delay cap (default 30s)
	MaxRetries   int           // consecutive failures before a batch is dropped (default 5)

	// Unavailable classifies an error as "store gone" rather than a
	// query-level failure. Defaults to store.IsUnavailable.
	Unavailable func(error) bool
}

func (c *Config) withDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 1000
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.Debounce <= 0 {
		c.Debounce = 50 * time.Millisecond
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Unavailable == nil {
		c.Unavailable = store.IsUnavailable
	}
}

// Buffer accumulates pending writes and flushes them in batches.
type Buffer struct {
	cfg  Config
	sink Sink

	mu             sync.Mutex
	cond           *sync.Cond // signaled when a flush finishes
	pending        []store.Statement
	timer          *time.Timer
	flushing       bool // guard: the buffer never runs two flushes concurrently
	retries        int  // consecutive failures for the current batch
	breakerOpen    bool
	breakerRetries int
	dropped        uint64
	closed         bool

	wg sync.WaitGroup // in-flight timer flushes
}

// New creates a Buffer that flushes into sink.
func New(sink Sink, cfg Config) *Buffer {
	cfg.withDefaults()
	b := &Buffer{cfg: cfg, sink: sink}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends a statement to the buffer and schedules a debounced flush.
//
// On overflow the oldest queued statement is dropped and counted; overflow is
// a soft-degradation signal (sustained producer/consumer imbalance), not an
// error surfaced to the caller.
func (b *Buffer) Write(stmt store.Statement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.pending = append(b.pending, stmt)
	if len(b.pending) > b.cfg.Capacity {
		b.pending = b.pending[1:]
		b.dropped++
		slog.Warn("write buffer overflow, dropped oldest statement",
			"capacity", b.cfg.Capacity, "dropped_total", b.dropped)
	}

	// While the breaker is open its own rescheduling owns the timer.
	if !b.breakerOpen {
		b.scheduleLocked(b.cfg.Debounce)
	}
}

// Len returns the number of statements waiting to be flushed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped returns the total statements discarded by overflow or retry
// exhaustion.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Flush synchronously drains the buffer, batch by batch, until it is empty
// or a batch fails. A flush already in flight on the timer path is waited
// for, not treated as an empty buffer — after Flush returns nil, every
// statement written before the call is durably applied.
func (b *Buffer) Flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		for b.flushing {
			b.cond.Wait()
		}
		empty := len(b.pending) == 0
		b.mu.Unlock()
		if empty {
			return nil
		}

		n, err := b.flushOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			// Lost the race to a timer flush; wait for it and re-check.
			continue
		}
	}
}

// Close stops the flush timer, drains pending writes, and rejects further
// Write calls. Buffered writes queued before Close are still flushed.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.timer != nil {
		// A successful Stop means the armed callback never runs, so its
		// wg.Add(1) from scheduleLocked must be released here.
		if b.timer.Stop() {
			b.wg.Done()
		}
		b.timer = nil
	}
	b.mu.Unlock()

	b.wg.Wait()
	return b.Flush(context.Background())
}

// scheduleLocked arms the debounce timer if no flush is pending or running.
// Callers must hold b.mu.
func (b *Buffer) scheduleLocked(d time.Duration) {
	if b.timer != nil || b.flushing || b.closed || len(b.pending) == 0 {
		return
	}
	b.wg.Add(1)
	b.timer = time.AfterFunc(d, b.timedFlush)
}

func (b *Buffer) timedFlush() {
	defer b.wg.Done()
	b.mu.Lock()
	b.timer = nil
	b.mu.Unlock()

	// Flush has no hard timeout: the store is trusted to eventually return.
	_, _ = b.flushOnce(context.Background())
}

// flushOnce attempts one batched transaction. Returns the number of
// statements durably applied (0 when there was nothing to do or the batch
// was requeued for retry).
func (b *Buffer) flushOnce(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.flushing || len(b.pending) == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	b.flushing = true
	n := len(b.pending)
	if n > b.cfg.MaxBatchSize {
		n = b.cfg.MaxBatchSize
	}
	batch := make([]store.Statement, n)
	copy(batch, b.pending[:n])
	b.pending = b.pending[n:]
	b.mu.Unlock()

	skipped, err := b.sink.ExecBatch(ctx, batch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushing = false
	b.cond.Broadcast()

	if err == nil {
		if skipped > 0 {
			slog.Warn("flush skipped failed statements", "skipped", skipped, "batch", len(batch))
		}
		b.retries = 0
		if b.breakerOpen {
			slog.Info("store available again, circuit breaker closed")
			b.breakerOpen = false
			b.breakerRetries = 0
		}
		b.scheduleLocked(b.cfg.Debounce)
		return len(batch), nil
	}

	if b.cfg.Unavailable(err) {
		// Store gone: preserve the batch, stop burning retry budget, and
		// re-schedule flushing with backoff until a flush succeeds.
		b.pending = append(batch, b.pending...)
		if !b.breakerOpen {
			slog.Error("store unavailable, circuit breaker open", "error", err)
			b.breakerOpen = true
		}
		delay := Delay(b.cfg.BaseDelay, b.cfg.MaxBackoff, b.breakerRetries)
		b.breakerRetries++
		b.scheduleLocked(delay)
		return 0, err
	}

	b.retries++
	if b.retries >= b.cfg.MaxRetries {
		// An unrecoverable batch must not block all subsequent writes.
		slog.Error("flush retries exhausted, dropping batch",
			"batch", len(batch), "retries", b.retries, "error", err)
		b.dropped += uint64(len(batch))
		b.retries = 0
		b.scheduleLocked(b.cfg.Debounce)
		return 0, err
	}

	// Return the failed batch to the front, preserving order.
	b.pending = append(batch, b.pending...)
	delay := Delay(b.cfg.BaseDelay, b.cfg.MaxBackoff, b.retries)
	slog.Warn("flush failed, will retry", "retries", b.retries, "delay", delay, "error", err)
	b.scheduleLocked(delay)
	return 0, err
}
