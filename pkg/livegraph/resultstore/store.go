// Package resultstore keeps versioned results written by sink nodes so they
// can be inspected after the graph that produced them has been edited away.
package resultstore

import (
	"context"
	"errors"
	"time"
)

// Store appends result versions under a key, typically a sink's name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put appends data as the next version of key and returns the stored record.
	Put(ctx context.Context, key string, data []byte) (Record, error)

	// Latest returns the newest version of key, or ErrNotFound.
	Latest(ctx context.Context, key string) (Record, error)

	// History returns up to limit versions of key, newest first.
	// A limit below 1 returns every retained version.
	History(ctx context.Context, key string, limit int) ([]Record, error)

	// Keys lists every key holding at least one version, sorted.
	Keys(ctx context.Context) ([]string, error)

	// Delete drops every version of key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Record is one stored version.
type Record struct {
	Key       string
	Sequence  int
	Timestamp time.Time
	Data      []byte
}

var (
	// ErrNotFound reports a key with no stored versions.
	ErrNotFound = errors.New("result not found")

	// ErrStoreClosed reports use after Close.
	ErrStoreClosed = errors.New("result store closed")
)

// Option configures a store.
type Option func(*options)

type options struct {
	retain int
}

// WithRetention keeps only the newest n versions per key. n below 1 keeps all.
func WithRetention(n int) Option {
	return func(o *options) {
		o.retain = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryTarget is the Open target for an in-process store.
const MemoryTarget = "memory"

// Open picks a backend from target: MemoryTarget gives a MemoryStore, a
// redis:// or rediss:// URL a RedisStore, and anything else is a sqlite path.
func Open(target string, opts ...Option) (Store, error) {
	switch {
	case target == MemoryTarget:
		return NewMemoryStore(opts...), nil
	case isRedisURL(target):
		return OpenRedis(target, opts...)
	default:
		return NewSQLiteStore(target, opts...)
	}
}
