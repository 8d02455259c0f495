// Package workpool runs CPU-heavy work off the node event loops.
//
// Node bodies hand synchronous computations to a Pool and wait for the result.
// The pool bounds how many of them run at once so that a burst of expensive
// chunks from many nodes cannot starve the goroutines driving the graph.
package workpool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// PanicError is returned when submitted work panics.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("workpool: task panicked: %v", e.Value)
}

// Pool bounds concurrent execution of submitted work.
type Pool struct {
	sem     *semaphore.Weighted
	size    int64
	running atomic.Int64
}

// New creates a pool running at most size tasks at once. A size below one
// uses GOMAXPROCS.
func New(size int) *Pool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return int(p.size)
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Do runs fn on the pool and waits for it. It returns ctx.Err() if ctx ends
// before a slot is free or before fn finishes; fn keeps running in the
// background in the latter case and its result is discarded.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	_, err := Submit(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Submit runs fn on the pool and returns its result.
// See Pool.Do for cancellation behavior.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	p.running.Add(1)
	go func() {
		defer p.sem.Release(1)
		defer p.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Value: r, Stack: string(debug.Stack())}}
			}
		}()
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
