package connection

import (
	"context"
	"errors"

	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

// Input is the consumer side of a connection. The zero value is a
// disconnected input without a default.
//
// An Input is owned by a single task and must not be used from more than one
// goroutine at a time.
type Input[Q Request[R], R any] struct {
	link      *link[Q, R]
	responses *watch.Receiver[slot[R]]
	def       slot[R]
}

// NewInput returns a disconnected input holding def as its default value.
func NewInput[Q Request[R], R any](def R) Input[Q, R] {
	return Input[Q, R]{def: slot[R]{value: def, ok: true}}
}

// SetDefault replaces the default value. The default is returned while
// disconnected and survives connect and disconnect.
func (in *Input[Q, R]) SetDefault(def R) {
	in.def = slot[R]{value: def, ok: true}
}

// Default returns the default value, if any.
func (in *Input[Q, R]) Default() (R, bool) {
	return in.def.value, in.def.ok
}

// IsConnected reports whether the input is bound to a connection.
func (in *Input[Q, R]) IsConnected() bool {
	return in.link != nil
}

// Connect binds the input to the connection behind h, replacing any previous
// connection. It fails if the connection carries other request or response
// types. On success h is marked connected.
func (in *Input[Q, R]) Connect(h *Handle) bool {
	if h == nil {
		return false
	}
	l, ok := h.c.(*link[Q, R])
	if !ok {
		return false
	}
	in.link = l
	in.responses = l.responses.Subscribe()
	h.connected = true
	return true
}

// Disconnect returns the input to the disconnected state. The default value
// is kept.
func (in *Input[Q, R]) Disconnect() {
	in.link = nil
	in.responses = nil
}

// Request asks for data satisfying req.
//
// While disconnected the default is returned if req accepts it. While
// connected a published response that satisfies req is returned without
// contacting the producer. Otherwise req is queued, blocking while the queue
// is full, and Request waits for a satisfying response. If the producer
// closes, the input disconnects and Request reports false. Request also
// reports false when ctx ends; the input stays connected in that case.
func (in *Input[Q, R]) Request(ctx context.Context, req Q) (R, bool) {
	var zero R

	if in.link == nil {
		if in.def.ok && req.Accepts(in.def.value) {
			return in.def.value, true
		}
		return zero, false
	}

	if cur := in.responses.BorrowAndUpdate(); cur.ok && req.Accepts(cur.value) {
		return cur.value, true
	}

	if in.link.isClosed() {
		in.Disconnect()
		return zero, false
	}
	select {
	case in.link.requests <- req:
	case <-in.link.done:
		in.Disconnect()
		return zero, false
	case <-ctx.Done():
		return zero, false
	}

	for {
		if err := in.responses.Changed(ctx); err != nil {
			if errors.Is(err, watch.ErrClosed) {
				in.Disconnect()
			}
			return zero, false
		}
		if cur := in.responses.Borrow(); cur.ok && req.Accepts(cur.value) {
			return cur.value, true
		}
	}
}
