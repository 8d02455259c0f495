package connection

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/livegraph/pkg/livegraph/watch"
)

type outputConfig struct {
	capacity int
	logger   *slog.Logger
}

// OutputOption configures an Output.
type OutputOption func(*outputConfig)

// WithQueueCapacity sets how many requests can be queued before consumers
// block. Default: DefaultQueueCapacity.
func WithQueueCapacity(n int) OutputOption {
	return func(c *outputConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger sets the logger used to report protocol misuse.
// Default: slog.Default().
func WithLogger(l *slog.Logger) OutputOption {
	return func(c *outputConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Output is the producer side of a connection. It is owned by a single task
// and must not be used from more than one goroutine at a time, except for
// the Invalidator, Handle and Close.
type Output[Q Request[R], R any] struct {
	link    *link[Q, R]
	pending *Q
	logger  *slog.Logger
}

// NewOutput creates an output with nothing published.
func NewOutput[Q Request[R], R any](opts ...OutputOption) *Output[Q, R] {
	cfg := outputConfig{
		capacity: DefaultQueueCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	responses, _ := watch.New(slot[R]{})
	return &Output[Q, R]{
		link: &link[Q, R]{
			requests:  make(chan Q, cfg.capacity),
			responses: responses,
			done:      make(chan struct{}),
		},
		logger: cfg.logger,
	}
}

// Handle returns a new handle to this output's connection.
func (o *Output[Q, R]) Handle() *Handle {
	return &Handle{c: o.link}
}

// Receive returns the request to work on.
//
// If a request is outstanding it is returned again, so a task can re-check
// pending demand without losing it. Otherwise Receive waits for a queued
// request, skipping any that the published response already satisfies, and
// marks it outstanding. It returns ctx.Err() if ctx ends first.
func (o *Output[Q, R]) Receive(ctx context.Context) (Q, error) {
	if o.pending != nil {
		return *o.pending, nil
	}
	for {
		select {
		case req := <-o.link.requests:
			if o.satisfied(req) {
				continue
			}
			o.pending = &req
			return req, nil
		case <-ctx.Done():
			var zero Q
			return zero, ctx.Err()
		}
	}
}

// TryReceive is the non-blocking form of Receive. It reports false when no
// request is outstanding and no unsatisfied request is queued.
func (o *Output[Q, R]) TryReceive() (Q, bool) {
	if o.pending != nil {
		return *o.pending, true
	}
	for {
		select {
		case req := <-o.link.requests:
			if o.satisfied(req) {
				continue
			}
			o.pending = &req
			return req, true
		default:
			var zero Q
			return zero, false
		}
	}
}

func (o *Output[Q, R]) satisfied(req Q) bool {
	cur := o.link.responses.Borrow()
	return cur.ok && req.Accepts(cur.value)
}

// Respond publishes resp and clears the outstanding request. Without an
// outstanding request Respond does nothing.
func (o *Output[Q, R]) Respond(resp R) {
	if o.pending == nil {
		o.logger.Warn("respond without outstanding request",
			slog.String("connection", o.link.String()),
		)
		return
	}
	o.link.responses.Send(slot[R]{value: resp, ok: true})
	o.pending = nil
}

// Pending reports whether a request is outstanding.
func (o *Output[Q, R]) Pending() bool {
	return o.pending != nil
}

// Published returns the currently published response.
func (o *Output[Q, R]) Published() (R, bool) {
	cur := o.link.responses.Borrow()
	return cur.value, cur.ok
}

// Invalidate clears the published response if one is set.
func (o *Output[Q, R]) Invalidate() {
	o.link.responses.SendIfModified(unset[R])
}

// Invalidator returns a function clearing this output's published response.
func (o *Output[Q, R]) Invalidator() Invalidator {
	responses := o.link.responses
	return func() {
		responses.SendIfModified(unset[R])
	}
}

// Close clears the published response and makes the connection permanently
// non-functional. Connected inputs see it as a disconnect on their next
// request. Close is idempotent.
func (o *Output[Q, R]) Close() {
	o.link.close()
}
