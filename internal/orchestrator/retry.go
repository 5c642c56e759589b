package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/snapdog/snapdog/internal/config"
)

// retryWithBackoff runs fn up to policy.MaxRetries times, sleeping
// between attempts with the teacher's connwatch-style exponential
// backoff (delay *= Factor, capped at MaxDelay) plus an additive
// 0-1s jitter term so many simultaneously starting validation steps
// don't all wake on the same tick. Distinct from the multiplicative
// jitter internal/snapcast.Client uses for its reconnect loop — the
// two were grounded on the same shape but built for different
// call sites and never need to match exactly.
func retryWithBackoff(ctx context.Context, policy config.RetryPolicy, logger *slog.Logger, step string, fn func(ctx context.Context) error) error {
	maxRetries := policy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	factor := policy.Factor
	if factor <= 0 {
		factor = 2.0
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(time.Second)))
		wait := delay + jitter
		logger.Warn("orchestrator: startup step failed, retrying",
			"step", step,
			"attempt", attempt,
			"max_retries", maxRetries,
			"next_delay", wait.String(),
			"error", err,
		)
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * factor)
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", step, maxRetries, lastErr)
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes
// first. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
