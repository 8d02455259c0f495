// Package watch provides a single-value broadcast cell.
//
// A Sender holds the latest value. Any number of Receivers observe it and can
// wait until the value changes. Intermediate values are not queued: a slow
// receiver only ever sees the most recent one. This is the primitive behind
// response slots, parameter sync and progress reporting in livegraph.
//
// Receivers track the version they last saw, so Changed reports whether a
// value was published since the receiver last looked, even if that happened
// before the call.
package watch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receiver.Changed once the sender was closed and
// every published value has been seen.
var ErrClosed = errors.New("watch: sender closed")

// closedCh is a permanently closed channel handed out when a receiver is
// already ready.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type shared[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	closed  bool
	changed chan struct{}
}

// notifyLocked wakes all current waiters. Caller must hold the write lock.
func (s *shared[T]) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Sender publishes values to all receivers of the cell.
// Sender is safe for concurrent use; copies share the same cell.
type Sender[T any] struct {
	s *shared[T]
}

// Receiver observes the cell. A Receiver must not be used from more than one
// goroutine at a time; use Clone to hand a copy to another goroutine.
type Receiver[T any] struct {
	s    *shared[T]
	seen uint64
}

// New creates a cell holding initial. The returned receiver has already seen
// the initial value.
func New[T any](initial T) (*Sender[T], *Receiver[T]) {
	s := &shared[T]{
		value:   initial,
		changed: make(chan struct{}),
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Send replaces the value and wakes all receivers.
// Sending on a closed cell is a no-op.
func (tx *Sender[T]) Send(v T) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return
	}
	tx.s.value = v
	tx.s.version++
	tx.s.notifyLocked()
}

// SendIfModified calls modify with a pointer to the current value. Receivers
// are only woken when modify returns true. Reports whether a change was
// published.
func (tx *Sender[T]) SendIfModified(modify func(*T) bool) bool {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return false
	}
	if !modify(&tx.s.value) {
		return false
	}
	tx.s.version++
	tx.s.notifyLocked()
	return true
}

// Borrow returns the current value.
func (tx *Sender[T]) Borrow() T {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.value
}

// Version returns the number of published changes.
func (tx *Sender[T]) Version() uint64 {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.version
}

// Subscribe creates a receiver that has seen the current value.
func (tx *Sender[T]) Subscribe() *Receiver[T] {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return &Receiver[T]{s: tx.s, seen: tx.s.version}
}

// Close marks the cell closed. Receivers that have seen the latest value get
// ErrClosed from Changed. Close is idempotent.
func (tx *Sender[T]) Close() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return
	}
	tx.s.closed = true
	tx.s.notifyLocked()
}

// CloseWith applies modify to the value and closes the cell in one step, so
// no Send can slip in between. The change is published only if modify
// reports true. CloseWith on a closed cell is a no-op.
func (tx *Sender[T]) CloseWith(modify func(*T) bool) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return
	}
	if modify(&tx.s.value) {
		tx.s.version++
	}
	tx.s.closed = true
	tx.s.notifyLocked()
}

// IsClosed reports whether Close was called.
func (tx *Sender[T]) IsClosed() bool {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.closed
}

// Borrow returns the current value without marking it seen.
func (rx *Receiver[T]) Borrow() T {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	return rx.s.value
}

// BorrowAndUpdate returns the current value and marks it seen.
func (rx *Receiver[T]) BorrowAndUpdate() T {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	rx.seen = rx.s.version
	return rx.s.value
}

// HasChanged reports whether a value was published that this receiver has
// not seen yet.
func (rx *Receiver[T]) HasChanged() bool {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	return rx.seen != rx.s.version
}

// IsClosed reports whether the sender was closed.
func (rx *Receiver[T]) IsClosed() bool {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	return rx.s.closed
}

// Ready returns a channel that is closed once there is an unseen value or the
// cell is closed. It does not mark anything seen, so it can be used in a
// select and followed by HasChanged or BorrowAndUpdate.
func (rx *Receiver[T]) Ready() <-chan struct{} {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	if rx.seen != rx.s.version || rx.s.closed {
		return closedCh
	}
	return rx.s.changed
}

// Changed waits until a value is published that this receiver has not seen
// and marks it seen. Unseen values are reported even after the sender closed;
// only then ErrClosed is returned. Returns ctx.Err() if ctx ends first.
func (rx *Receiver[T]) Changed(ctx context.Context) error {
	for {
		rx.s.mu.RLock()
		if rx.seen != rx.s.version {
			rx.seen = rx.s.version
			rx.s.mu.RUnlock()
			return nil
		}
		if rx.s.closed {
			rx.s.mu.RUnlock()
			return ErrClosed
		}
		wait := rx.s.changed
		rx.s.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clone returns a receiver on the same cell with the same seen version.
func (rx *Receiver[T]) Clone() *Receiver[T] {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()
	return &Receiver[T]{s: rx.s, seen: rx.seen}
}
