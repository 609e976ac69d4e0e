package retry

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
)

// Policy encapsulates retry/backoff settings for transient invocation failures.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // maximum retry attempts after the first failure
}

// DefaultPolicy returns the policy used when nothing is configured: linear,
// 1s initial, 10s cap and no retries. Transform failures are usually
// deterministic, so retrying is opt-in.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 10 * time.Second, MaxRetries: 0}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from the transform.retry section.
func FromConfig(rc config.RetryConfig) (Policy, error) {
	var initial, maxDuration time.Duration
	var err error
	if rc.Initial != "" {
		if initial, err = time.ParseDuration(rc.Initial); err != nil {
			return Policy{}, fmt.Errorf("invalid retry initial %q: %w", rc.Initial, err)
		}
	}
	if rc.Max != "" {
		if maxDuration, err = time.ParseDuration(rc.Max); err != nil {
			return Policy{}, fmt.Errorf("invalid retry max %q: %w", rc.Max, err)
		}
	}
	p := NewPolicy(rc.Backoff, initial, maxDuration, rc.MaxRetries)
	return p, p.Validate()
}

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Do runs fn until it succeeds, returns a non-retryable error, the retry
// budget is spent, or ctx is done. onRetry (optional) observes each retry.
func (p Policy) Do(ctx context.Context, isRetryable func(error) bool, onRetry func(attempt int, err error), fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || isRetryable == nil || !isRetryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		timer := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
