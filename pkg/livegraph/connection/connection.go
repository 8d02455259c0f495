// Package connection implements the typed request/response protocol between
// node tasks.
//
// A producer declares an Output. Every Output comes with a Handle that can be
// cloned and handed to any number of consumers. A consumer binds a Handle to
// its Input and then asks for data with Input.Request. The producer pulls
// pending demand with Output.Receive and answers with Output.Respond.
//
// Responses are published into a single shared slot. Consumers whose request
// is already satisfied by the published response get it without a round trip,
// and the producer skips queued requests the published response already
// satisfies. Invalidating the slot tells every consumer that cached data is
// stale without carrying the data itself.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// DefaultQueueCapacity is the number of requests that can be queued on one
// connection before Request blocks.
const DefaultQueueCapacity = 3

// Request describes the data a consumer wants. Accepts reports whether an
// already published response satisfies the request.
type Request[R any] interface {
	Accepts(resp R) bool
}

// slot is the published response. ok is false when nothing is published or
// the response was invalidated.
type slot[R any] struct {
	value R
	ok    bool
}

func unset[R any](s *slot[R]) bool {
	if !s.ok {
		return false
	}
	*s = slot[R]{}
	return true
}

// link is the shared part of one connection. It is owned by the Output and
// referenced by every Handle and connected Input.
type link[Q Request[R], R any] struct {
	requests  chan Q
	responses *watch.Sender[slot[R]]
	done      chan struct{}
	closeOnce sync.Once
}

func (l *link[Q, R]) close() {
	l.closeOnce.Do(func() {
		l.responses.CloseWith(unset[R])
		close(l.done)
	})
}

func (l *link[Q, R]) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *link[Q, R]) notifier() *InvalidationNotifier {
	rx := l.responses.Subscribe()
	return &InvalidationNotifier{
		wait: func(ctx context.Context) (bool, error) {
			for {
				if err := rx.Changed(ctx); err != nil {
					if errors.Is(err, watch.ErrClosed) {
						return false, nil
					}
					return false, err
				}
				if !rx.Borrow().ok {
					return true, nil
				}
			}
		},
	}
}

func (l *link[Q, R]) String() string {
	var q Q
	var r R
	return fmt.Sprintf("connection[%T -> %T]", q, r)
}

// conn is the type-erased view of a link held by a Handle.
type conn interface {
	notifier() *InvalidationNotifier
	isClosed() bool
	String() string
}

// Handle is a type-erased reference to an Output's connection. Handles are
// cheap to clone and safe to share; the connection stops working once the
// producing Output is closed.
//
// Each Handle also carries a connected flag. An Input sets it when it binds
// to the handle, so the code passing the handle can tell whether the
// consumer accepted it.
type Handle struct {
	c         conn
	connected bool
}

// Clone returns a new handle to the same connection with the connected flag
// cleared.
func (h *Handle) Clone() *Handle {
	return &Handle{c: h.c}
}

// Connected reports whether an Input bound to this handle.
func (h *Handle) Connected() bool {
	return h.connected
}

// Closed reports whether the producing Output was closed.
func (h *Handle) Closed() bool {
	return h.c.isClosed()
}

// Notifier returns a new waiter for invalidations of this connection. It
// only reports invalidations that happen after it was created.
func (h *Handle) Notifier() *InvalidationNotifier {
	return h.c.notifier()
}

// String describes the request and response types of the connection.
func (h *Handle) String() string {
	return h.c.String()
}

// InvalidationNotifier waits for the producer to invalidate its published
// response. A notifier must not be used from more than one goroutine at a
// time.
type InvalidationNotifier struct {
	wait func(ctx context.Context) (bool, error)
}

// Wait blocks until the published response is invalidated and returns true.
// It returns false once the producer is closed, and ctx.Err() if ctx ends
// first.
func (n *InvalidationNotifier) Wait(ctx context.Context) (bool, error) {
	return n.wait(ctx)
}

// Invalidator clears the published response of one Output if it is set. It
// is safe to call from any goroutine.
type Invalidator func()

// Invalidate clears the published response.
func (f Invalidator) Invalidate() {
	f()
}
