// Package event distributes node lifecycle events from livegraph executors.
//
// Executors publish an event whenever a runner is spawned or retired, an
// input is connected or disconnected, and whenever a node body fails or
// panics. User interfaces subscribe to these to show node status without
// polling the executor.
package event

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Lifecycle event types.
const (
	TypeRunnerSpawned    = "runner.spawned"
	TypeRunnerRetired    = "runner.retired"
	TypeInputConnected   = "input.connected"
	TypeInputDropped     = "input.dropped"
	TypeInputRemoved     = "input.disconnected"
	TypeTaskFailed       = "task.failed"
	TypeTaskPanicked     = "task.panicked"
	TypeTaskRecovered    = "task.recovered"
	TypeParametersSynced = "node.synced"
)

// Event is an immutable notification published on a Bus.
type Event interface {
	ID() string
	Type() string
	// Source names the executor that published the event.
	Source() string
	Timestamp() time.Time
	Data() any
}

// Metadata contains common event metadata fields.
type Metadata struct {
	EventID     string    `json:"id"`
	EventType   string    `json:"type"`
	EventSource string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// BaseEvent is the generic Event implementation. T is the payload type.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// Source returns the publishing executor.
func (e *BaseEvent[T]) Source() string { return e.Meta.EventSource }

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Timestamp }

// Data returns the event payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the strongly-typed payload.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// NodeStatus is the payload of every lifecycle event.
type NodeStatus struct {
	NodeID uint32 `json:"node_id"`
	Kind   string `json:"kind,omitempty"`
	// InputID is set for input events.
	InputID *uint32 `json:"input_id,omitempty"`
	// Error is set for failures and dropped inputs.
	Error string `json:"error,omitempty"`
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id        string
	timestamp time.Time
}

// WithEventID sets a specific event ID. The default is a ULID derived from
// the event timestamp, so IDs sort in publish order.
func WithEventID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// New creates an event with the given type, source and payload.
func New[T any](eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	cfg := &eventConfig{timestamp: time.Now()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.id == "" {
		cfg.id = ulid.MustNew(ulid.Timestamp(cfg.timestamp), ulid.DefaultEntropy()).String()
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:     cfg.id,
			EventType:   eventType,
			EventSource: source,
			Timestamp:   cfg.timestamp,
		},
		Payload: payload,
	}
}

// Handler processes events delivered by a Bus.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
