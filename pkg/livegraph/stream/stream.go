// Package stream provides a bounded broadcast channel for chunked results.
//
// The channel keeps the last C items in a ring buffer. Every receiver owns an
// independent cursor. New subscriptions start at position 0, so they replay
// from the oldest item still retained instead of the live edge: a consumer
// that attaches late still sees the whole stream as long as it was not
// overwritten. A receiver whose cursor fell out of the retained window gets
// ErrLagged once and continues from the oldest retained item.
//
// Senders never block. Slow receivers lag instead of stalling the producer.
package stream

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrLagged indicates the receiver fell behind the retained window. The
	// cursor has been moved to the oldest retained item; the next Recv
	// continues from there.
	ErrLagged = errors.New("stream: receiver lagged behind")

	// ErrClosed indicates the sender closed the stream and every retained
	// item past the cursor has been received.
	ErrClosed = errors.New("stream: closed")
)

type ring[T any] struct {
	mu      sync.RWMutex
	buf     []T
	head    uint64 // index of the next item to write
	tail    uint64 // index of the oldest retained item
	closed  bool
	changed chan struct{}
}

// position classifies idx against the retained window [tail, head).
type position int

const (
	inWindow position = iota
	tooOld
	tooNew
)

func (r *ring[T]) classify(idx uint64) position {
	switch {
	case idx >= r.head:
		return tooNew
	case idx < r.tail:
		return tooOld
	default:
		return inWindow
	}
}

func (r *ring[T]) push(item T) {
	c := uint64(len(r.buf))
	r.buf[r.head%c] = item
	r.head++
	if r.head > c && r.head-c > r.tail {
		r.tail = r.head - c
	}
}

// Sender writes items into the stream. Copies share the same stream.
type Sender[T any] struct {
	r *ring[T]
}

// Receiver reads items from the stream. A Receiver is not safe for
// concurrent use; Clone it for another goroutine.
type Receiver[T any] struct {
	r   *ring[T]
	pos uint64
}

// New creates a stream retaining up to capacity items.
// Panics if capacity is not positive.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity <= 0 {
		panic("stream: capacity must be positive")
	}
	r := &ring[T]{
		buf:     make([]T, capacity),
		changed: make(chan struct{}),
	}
	return &Sender[T]{r: r}, &Receiver[T]{r: r}
}

// Send appends an item, overwriting the oldest one when the buffer is full.
// Sending after Close is a no-op.
func (tx *Sender[T]) Send(item T) {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	if tx.r.closed {
		return
	}
	tx.r.push(item)
	close(tx.r.changed)
	tx.r.changed = make(chan struct{})
}

// Subscribe returns a receiver starting at position 0.
func (tx *Sender[T]) Subscribe() *Receiver[T] {
	return &Receiver[T]{r: tx.r}
}

// Close ends the stream. Receivers drain what is retained, then get
// ErrClosed. Close is idempotent.
func (tx *Sender[T]) Close() {
	tx.r.mu.Lock()
	defer tx.r.mu.Unlock()

	if tx.r.closed {
		return
	}
	tx.r.closed = true
	close(tx.r.changed)
	tx.r.changed = make(chan struct{})
}

// IsLagged reports whether any item has been overwritten.
func (tx *Sender[T]) IsLagged() bool {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()
	return tx.r.tail > 0
}

// Len returns the number of items sent so far.
func (tx *Sender[T]) Len() uint64 {
	tx.r.mu.RLock()
	defer tx.r.mu.RUnlock()
	return tx.r.head
}

// Recv returns the next item.
//
// If the cursor is older than the retained window it is moved to the oldest
// retained item and ErrLagged is returned. If no new item is available Recv
// waits for one, for Close (ErrClosed) or for ctx.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		rx.r.mu.RLock()
		switch rx.r.classify(rx.pos) {
		case inWindow:
			item := rx.r.buf[rx.pos%uint64(len(rx.r.buf))]
			rx.r.mu.RUnlock()
			rx.pos++
			return item, nil
		case tooOld:
			rx.pos = rx.r.tail
			rx.r.mu.RUnlock()
			return zero, ErrLagged
		}

		if rx.r.closed {
			rx.r.mu.RUnlock()
			return zero, ErrClosed
		}
		wait := rx.r.changed
		rx.r.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. It reports false when no item is
// available yet and the stream is still open.
func (rx *Receiver[T]) TryRecv() (T, bool, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	item, err := rx.Recv(ctx)
	if errors.Is(err, context.Canceled) {
		return item, false, nil
	}
	return item, err == nil, err
}

// IsLagged reports whether the cursor is behind the retained window.
func (rx *Receiver[T]) IsLagged() bool {
	rx.r.mu.RLock()
	defer rx.r.mu.RUnlock()
	return rx.r.tail > rx.pos
}

// Position returns the index of the next item this receiver will read.
func (rx *Receiver[T]) Position() uint64 {
	return rx.pos
}

// Clone returns a receiver with an independent copy of the cursor.
func (rx *Receiver[T]) Clone() *Receiver[T] {
	return &Receiver[T]{r: rx.r, pos: rx.pos}
}
