// Package retry implements jittered-backoff retry for transient storage
// failures, generalizing the bounded wait-with-timeout pattern of the
// teacher repository's worker manager (not part of this module) into a
// reusable helper.
package retry

import (
	"context"
	"math/rand"
	"time"

	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// Do runs fn, retrying while it returns a TransientStorageError, up to
// maxAttempts total tries. Delay grows exponentially from base, capped at
// max, with up to 50% jitter added. Any other error kind is returned
// immediately without retrying.
func Do(ctx context.Context, maxAttempts int, base, max time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if apperrors.Classify(err) != apperrors.KindTransientStorage {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := base * time.Duration(1<<uint(attempt))
		if delay > max {
			delay = max
		}
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
