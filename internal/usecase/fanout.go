package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool runs fn over items with bounded concurrency, generalizing the
// teacher repository's WorkerManager register/start/wait-with-timeout
// shape (not part of this module) into a request/response helper for a single pipeline phase's fan-out
// (spec.md §4.4/§5). The first error from any item is returned after all
// in-flight items finish; it does not cancel items already running.
func Pool[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, item := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, it); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(item)
	}

	wg.Wait()
	return firstErr
}

// Sequential runs fn over items one at a time, in order. Used by pipeline
// phases 3, 4 and 6; spec.md §4.4/§5 explicitly forbids phases 4 and 6
// from running concurrently (their "not already assigned" check on
// nearby objects would race across ski areas processed at once).
func Sequential[T any](ctx context.Context, items []T, fn func(context.Context, T) error) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func logPhase(logger *zap.Logger, phase string, count int) {
	logger.Info("running pipeline phase", zap.String("phase", phase), zap.Int("items", count))
}
