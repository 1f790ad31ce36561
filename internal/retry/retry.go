// Package retry provides the single bounded retry/backoff primitive
// shared by everything in BeerPi that talks to an external service.
// One parameterization (attempts, delay, growth, ceiling) replaces the
// per-caller ad-hoc loops.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config controls the retry schedule.
type Config struct {
	// MaxAttempts is the total number of tries, including the first
	// (default: 5).
	MaxAttempts int

	// Delay is the wait before the second attempt (default: 5s).
	Delay time.Duration

	// Multiplier scales the delay after each attempt. 1.0 keeps it
	// fixed (default: 1.0).
	Multiplier float64

	// MaxDelay caps delay growth. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultConfig returns the schedule used for broker and store
// connects: 5 attempts with a fixed 5-second delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		Multiplier:  1.0,
	}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is
// cancelled. name identifies the operation in log output. The returned
// error is the last failure, wrapped with the attempt count.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, name string, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig().Delay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}
	if logger == nil {
		logger = slog.Default()
	}

	delay := cfg.Delay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					"operation", name,
					"attempts", attempt,
				)
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Debug("operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"next_delay", delay.String(),
			"error", lastErr,
		)

		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
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
