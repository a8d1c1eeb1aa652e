// Package txserial serializes logical transactions against the shared
// single-writer store.
//
// Several independent caching components each open "their own" transaction
// against one SQLite connection; concurrent transactions against a
// single-writer embedded store fail or corrupt. The Serializer enqueues
// critical sections into one shared FIFO queue and a background drain loop
// runs them one at a time, so concurrent callers observe serialized
// execution with FIFO fairness.
//
// The serializer is an explicit object constructed once at startup and passed
// to every component that mutates the store - no hidden global state.
package txserial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("txserial: serializer closed")

// job is one queued critical section. done is closed after fn runs, with the
// result in err.
type job struct {
	name string
	fn   func() error
	err  error
	done chan struct{}
}

// Serializer runs critical sections one at a time in submission order.
type Serializer struct {
	mu     sync.Mutex
	jobs   []*job
	closed bool
	signal chan struct{} // signals job availability (buffered, size 1)
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Serializer and starts its drain loop.
func New() *Serializer {
	s := &Serializer{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Do enqueues fn and blocks until it has run or ctx is cancelled.
// name identifies the section in logs.
//
// A cancelled ctx abandons the wait but does not unqueue fn: the section
// still runs in order (the caller just stops waiting for its result).
func (s *Serializer) Do(ctx context.Context, name string, fn func() error) error {
	j := &job{name: name, fn: fn, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	// Coalescing signal, buffer of 1.
	select {
	case s.signal <- struct{}{}:
	default:
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued sections not yet started.
func (s *Serializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close stops accepting new sections, runs everything already queued, and
// waits for the drain loop to exit.
func (s *Serializer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

// drain pops queued sections and runs them to completion one at a time.
// Success and failure both release the slot; a failure is logged and never
// stops the loop.
func (s *Serializer) drain() {
	defer s.wg.Done()
	for {
		j := s.next()
		if j != nil {
			s.run(j)
			continue
		}

		select {
		case <-s.signal:
		case <-s.stop:
			// Run whatever was queued before Close, then exit.
			for {
				j := s.next()
				if j == nil {
					return
				}
				s.run(j)
			}
		}
	}
}

func (s *Serializer) next() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil
	}
	j := s.jobs[0]
	s.jobs[0] = nil // allow GC of the popped job's closure
	s.jobs = s.jobs[1:]
	return j
}

func (s *Serializer) run(j *job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("txserial: panic in %q: %v", j.name, r)
			slog.Error("critical section panicked", "name", j.name, "panic", r)
		}
	}()

	if err := j.fn(); err != nil {
		j.err = err
		slog.Warn("critical section failed", "name", j.name, "error", err)
	}
}
