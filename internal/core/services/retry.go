package services

import (
	"context"
	"time"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/logger"
)

const (
	// providerRetryAttempts bounds node-level retries of transient
	// provider failures (not-running, timeout).
	providerRetryAttempts = 3

	// providerRetryBaseDelay is the first backoff interval; it doubles
	// per attempt.
	providerRetryBaseDelay = 500 * time.Millisecond
)

// retryProvider runs fn, retrying transient provider failures with
// exponential backoff. Non-provider errors and non-retryable kinds
// (model-not-found, malformed-response) surface immediately.
func retryProvider(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < providerRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := providerRetryBaseDelay << (attempt - 1)
			logger.Warn("Provider call failed, retrying in %s: %v", delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !domain.IsRetryableProviderError(err) {
			return err
		}
	}
	return err
}
