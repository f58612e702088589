// Package retry wraps cenkalti/backoff/v4 the way the teacher's
// internal/storage/dolt store wraps it for server-mode transient
// errors: exponential backoff, a bounded elapsed-time ceiling, and a
// hard distinction between retryable and permanent failures. Here the
// retryability question is delegated to internal/eerr.Kind.Retryable
// instead of string-matching the error message, since every Embranch
// component already narrows to a Kind before returning.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/embranch/embranch/internal/eerr"
)

// Default policy per the sync engine's retry contract: three attempts
// (one initial call plus two retries), 1s base interval, 8s cap.
const (
	DefaultMaxElapsed   = 30 * time.Second
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 8 * time.Second
	DefaultMaxRetries   = 2
)

// Policy configures a retry loop. A zero Policy uses the defaults.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	} else {
		bo.InitialInterval = DefaultInitialDelay
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	} else {
		bo.MaxInterval = DefaultMaxDelay
	}
	if p.MaxElapsedTime > 0 {
		bo.MaxElapsedTime = p.MaxElapsedTime
	} else {
		bo.MaxElapsedTime = DefaultMaxElapsed
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return backoff.WithMaxRetries(backoff.WithContext(bo, ctx), maxRetries)
}

// Do runs op, retrying only while the returned error's eerr.Kind is
// Retryable. A non-retryable error stops the loop immediately
// (backoff.Permanent), matching the teacher's withRetry split between
// transient and permanent failures.
func Do(ctx context.Context, policy Policy, op func() error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if eerr.KindOf(err).Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))
	return err
}

// Attempts runs op like Do but also returns how many attempts were made,
// for callers that want to log or record retry counts (the teacher
// records attempts-1 as a retryCount metric).
func Attempts(ctx context.Context, policy Policy, op func() error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if eerr.KindOf(err).Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx))
	return attempts, err
}
