package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy defines how to retry an operation
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default for store and boundary calls
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc reports whether an error should be retried
type IsTransientFunc func(error) bool

// Transient builds an IsTransientFunc matching any of the target errors
func Transient(targets ...error) IsTransientFunc {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Always retries every error up to the attempt budget
func Always(error) bool { return true }

// Do executes fn with bounded exponential backoff and jitter. Non-transient
// errors return immediately; the last error is returned when attempts
// exhaust.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		// backoff + random(0, 50% of backoff)
		sleep := backoff
		if backoff > 1 {
			sleep += time.Duration(rand.Int63n(int64(backoff / 2)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
			backoff = min(backoff*2, policy.MaxBackoff)
		}
	}

	return err
}
