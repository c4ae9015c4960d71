package llm

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxRetries = 3

// RetryingProvider wraps a Provider with bounded exponential backoff.
// Transient failures (rate limit, connection, timeout) are retried up to
// MaxRetries times; ErrAuthInvalid and unknown errors are surfaced at once.
type RetryingProvider struct {
	inner Provider
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries uint64
	// InitialInterval seeds the exponential backoff schedule.
	InitialInterval time.Duration
}

// NewRetryingProvider wraps the given provider with the default retry policy.
func NewRetryingProvider(inner Provider) *RetryingProvider {
	return &RetryingProvider{
		inner:           inner,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: 500 * time.Millisecond,
	}
}

// Complete calls the wrapped provider, retrying transient failures.
func (r *RetryingProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval

	var result *Completion
	attempt := 0

	operation := func() error {
		attempt++
		completion, err := r.inner.Complete(ctx, req)
		if err == nil {
			result = completion
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		log.Printf("[llm] attempt %d failed (%v), will retry", attempt, err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, r.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}
