package infra

import (
	"context"
	"log/slog"
	"time"

	"broker_go/internal/domain"
)

// RetryOptions configures the exponential scheduler used between
// attempts. The defaults match exchange-facing calls; tests inject
// smaller bounds.
type RetryOptions struct {
	Factor float64       // delay growth per scheduled retry
	Min    time.Duration // first delay
	Max    time.Duration // delay cap
}

// DefaultRetryOptions returns the scheduler used for live exchange calls:
// 1.2x growth bounded between one and four seconds.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Factor: 1.2,
		Min:    1 * time.Second,
		Max:    4 * time.Second,
	}
}

func (o RetryOptions) normalize() RetryOptions {
	if o.Factor < 1 {
		o.Factor = 1.2
	}
	if o.Min <= 0 {
		o.Min = 1 * time.Second
	}
	if o.Max < o.Min {
		o.Max = o.Min
	}
	return o
}

// Retry decorates one fallible exchange call with classified retry.
//
// op performs a single attempt. Errors are classified through the flags
// the exchange adapter attached:
//   - transient errors (rate limits and the like) are retried
//     indefinitely, optionally delayed by the error's backoff hint,
//     without consuming the attempt budget;
//   - errors carrying a retry budget are retried on the exponential
//     scheduler until the budget is spent;
//   - anything unclassified propagates immediately.
//
// Context cancellation aborts the wait between attempts.
func Retry[T any](ctx context.Context, log *slog.Logger, name string, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	var zero T
	opts = opts.normalize()

	delay := opts.Min
	retries := 0

	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var wait time.Duration
		switch {
		case domain.IsTransient(err):
			wait = domain.BackoffDelay(err)
			if wait <= 0 {
				wait = delay
			}
			if log != nil {
				log.Warn("transient exchange error, retrying",
					slog.String("call", name),
					slog.Duration("wait", wait),
					slog.Any("error", err))
			}

		case domain.RetryBudget(err) > 0:
			retries++
			if retries > domain.RetryBudget(err) {
				return zero, err
			}
			wait = delay
			delay = time.Duration(float64(delay) * opts.Factor)
			if delay > opts.Max {
				delay = opts.Max
			}
			if log != nil {
				log.Warn("exchange error, retrying",
					slog.String("call", name),
					slog.Int("retry", retries),
					slog.Int("budget", domain.RetryBudget(err)),
					slog.Duration("wait", wait),
					slog.Any("error", err))
			}

		default:
			return zero, err
		}

		GlobalMetrics.RecordRetry()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
