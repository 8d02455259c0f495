package resultstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how PutRetry retries failed writes.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// BackoffFactor multiplies the wait after each attempt.
	BackoffFactor float64
	// Jitter in [0, 1] randomizes each wait by up to that fraction.
	Jitter float64
}

// DefaultRetry suits a local sqlite file that is briefly locked by another
// writer.
var DefaultRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     250 * time.Millisecond,
	BackoffFactor:  2,
	Jitter:         0.1,
}

// NoRetry makes a single attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// RetryError is returned when every attempt failed.
type RetryError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("store %s: gave up after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// PutRetry calls s.Put at most p.MaxAttempts times, stopping early on success
// or on a permanent error. Closed stores and context errors are permanent.
func PutRetry(ctx context.Context, s Store, key string, data []byte, p RetryPolicy) (Record, error) {
	attempts := max(p.MaxAttempts, 1)
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rec, err := s.Put(ctx, key, data)
		if err == nil {
			return rec, nil
		}
		if !retryable(err) {
			return Record{}, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-time.After(jitter(backoff, p.Jitter)):
		}
		if p.BackoffFactor > 1 {
			backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		}
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return Record{}, &RetryError{Key: key, Attempts: attempts, Err: lastErr}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrStoreClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func jitter(d time.Duration, f float64) time.Duration {
	if f <= 0 || d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + f*(rand.Float64()*2-1)))
}

