package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 10*time.Second, p.Max)
	assert.Equal(t, 0, p.MaxRetries)
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial, "initial > max is clamped")
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	assert.Equal(t, 100*time.Millisecond, linear.Delay(1))
	assert.Equal(t, 200*time.Millisecond, linear.Delay(2))
	assert.Equal(t, 250*time.Millisecond, linear.Delay(3))

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	assert.Equal(t, 50*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 100*time.Millisecond, exp.Delay(2))
	assert.Equal(t, 160*time.Millisecond, exp.Delay(3))
	assert.Equal(t, time.Duration(0), exp.Delay(0))
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(config.RetryConfig{Backoff: "Exponential", Initial: "10ms", Max: "40ms", MaxRetries: 2})
	require.NoError(t, err)
	assert.Equal(t, config.RetryBackoffExponential, p.Mode)
	assert.Equal(t, 10*time.Millisecond, p.Initial)
	assert.Equal(t, 2, p.MaxRetries)

	_, err = FromConfig(config.RetryConfig{Initial: "later"})
	assert.Error(t, err)
}

var errTransient = errors.New("transient")

func TestDo_RetriesOnlyRetryable(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	calls := 0
	retries := 0
	err := p.Do(context.Background(),
		func(err error) bool { return errors.Is(err, errTransient) },
		func(int, error) { retries++ },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)

	calls = 0
	err = p.Do(context.Background(), func(error) bool { return false }, nil, func(context.Context) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_BudgetExhausted(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, nil, func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls, "first attempt plus two retries")
}

func TestDo_StopsOnCancel(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(error) bool { return true }, func(int, error) { cancel() }, func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
