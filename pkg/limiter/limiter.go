// Package limiter bounds the number of tasks running at once. Tasks beyond
// the limit wait in FIFO order and always run eventually; queued tasks cannot
// be cancelled.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps a panic recovered from a submitted task.
var ErrPanic = errors.New("task panicked")

// Stats is a point-in-time snapshot of limiter occupancy.
type Stats struct {
	Limit  int `json:"limit"`
	Active int `json:"active"`
	Queued int `json:"queued"`
}

// Limiter runs at most Limit tasks concurrently.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiting []func()
}

// New creates a Limiter with n slots. Values below 1 are treated as 1.
func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{limit: n}
}

// Stats returns the current limit, running count, and queue depth.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Limit:  l.limit,
		Active: l.active,
		Queued: len(l.waiting),
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends. A ctx error does not stop
// the task; it only stops waiting for it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules task on l and returns its Future. The task starts
// immediately when a slot is free, otherwise after every earlier waiter.
func Submit[T any](l *Limiter, task func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	run := func() {
		go func() {
			defer l.release()
			defer close(f.done)
			defer func() {
				if r := recover(); r != nil {
					f.err = fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			f.value, f.err = task()
		}()
	}

	l.mu.Lock()
	if l.active < l.limit {
		l.active++
		l.mu.Unlock()
		run()
		return f
	}
	l.waiting = append(l.waiting, run)
	l.mu.Unlock()

	return f
}

// Go submits a task with no result value.
func Go(l *Limiter, task func() error) *Future[struct{}] {
	return Submit(l, func() (struct{}, error) {
		return struct{}{}, task()
	})
}

// release hands the finished slot directly to the oldest waiter, keeping the
// active count unchanged, or frees it when nobody is waiting.
func (l *Limiter) release() {
	l.mu.Lock()
	if len(l.waiting) == 0 {
		l.active--
		l.mu.Unlock()
		return
	}

	next := l.waiting[0]
	l.waiting[0] = nil
	l.waiting = l.waiting[1:]
	l.mu.Unlock()

	next()
}
