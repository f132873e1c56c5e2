// internal/services/retry.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/metrics"
	"github.com/javajoker/partner-engine/internal/repository"
)

// RetryPolicy bounds retries of optimistic-lock conflicts.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << attempt
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	// full jitter
	return time.Duration(rand.Int64N(int64(delay) + 1))
}

func isRetryable(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrUsageCapReached)
}

// retryOnConflict runs fn until it succeeds, fails with a non-retryable
// error, or the attempts run out. Exhaustion surfaces as
// ErrConcurrentModification.
func retryOnConflict(ctx context.Context, policy RetryPolicy, op string, fn func(attempt int) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil || !isRetryable(err) {
			return err
		}

		logrus.WithFields(logrus.Fields{"op": op, "attempt": attempt + 1}).WithError(err).Debug("Retrying after conflict")
		if attempt == attempts-1 {
			break
		}
		metrics.ConflictRetries.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.backoff(attempt)):
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrConcurrentModification, op, err)
}
