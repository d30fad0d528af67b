package postgresrepo

import (
	"context"
	"time"
)

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// the attempts run out. Backoff doubles from MinBackoff up to MaxBackoff.
// Conflicts are never retryable, so a rejection is reported as such.
func (s *Store) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := s.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := s.retry.MinBackoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !IsRetryable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff *= 2
		if s.retry.MaxBackoff > 0 && backoff > s.retry.MaxBackoff {
			backoff = s.retry.MaxBackoff
		}
	}

	return err
}
