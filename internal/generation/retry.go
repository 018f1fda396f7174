package generation

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/evalscribe/evalscribe/internal/config"
)

// withRetry runs fn up to cfg.MaxAttempts times. fn signals a retryable
// failure by returning retry.RetryableError(err); any other error stops
// immediately. The delay between attempts is constant by default,
// exponential when configured. On exhaustion the last error is returned
// unwrapped; cancellation during a delay returns ctx.Err().
func withRetry(ctx context.Context, cfg config.GenerationConfig, fn func(ctx context.Context) error) error {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var backoff retry.Backoff
	if cfg.ExponentialBackoff {
		backoff = retry.NewExponential(delay)
	} else {
		backoff = retry.NewConstant(delay)
	}
	backoff = retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, fn)
}

// retryableError marks err as worth another attempt.
func retryableError(err error) error {
	return retry.RetryableError(err)
}
