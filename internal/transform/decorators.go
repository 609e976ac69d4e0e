package transform

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/retry"
)

// WithTimeout bounds every invocation by d. Expiry cancels only the
// invocation it belongs to. A zero d returns inv unchanged.
func WithTimeout(inv Invoker, d time.Duration) Invoker {
	if d <= 0 {
		return inv
	}
	return InvokerFunc(func(ctx context.Context, req Request) (*Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return inv.Apply(ctx, req)
	})
}

// WithRetry re-runs invocations that failed because their deadline expired,
// following the policy's backoff. The parent context is never retried past.
func WithRetry(inv Invoker, policy retry.Policy, logger *slog.Logger, rec metrics.Recorder) Invoker {
	if policy.MaxRetries <= 0 {
		return inv
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return InvokerFunc(func(ctx context.Context, req Request) (*Result, error) {
		var res *Result
		err := policy.Do(ctx,
			func(err error) bool { return IsTimeout(err) && ctx.Err() == nil },
			func(attempt int, err error) {
				rec.IncTransformRetry(ProgramName(req.Program))
				logger.Warn("Retrying transform after timeout",
					logfields.Program(ProgramName(req.Program)),
					logfields.File(req.Input),
					slog.Int("attempt", attempt),
					logfields.Error(err))
			},
			func(ctx context.Context) error {
				var err error
				res, err = inv.Apply(ctx, req)
				return err
			})
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}
