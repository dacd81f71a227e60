package research

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Sleeper waits between retry attempts. Tests replace it to avoid delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultSleeper is the production sleeper.
var DefaultSleeper Sleeper = realSleeper{}

// BackoffConfig controls the delay between attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DelayForAttempt calculates the delay after a given attempt (1-indexed).
func (bc BackoffConfig) DelayForAttempt(attempt int) time.Duration {
	if bc.InitialDelay <= 0 {
		return 0
	}
	factor := bc.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(bc.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if bc.MaxDelay > 0 && delay > float64(bc.MaxDelay) {
		delay = float64(bc.MaxDelay)
	}
	if bc.Jitter {
		// delay * uniform(0.5, 1.5)
		delay *= 0.5 + rand.Float64() //nolint:gosec
	}
	return time.Duration(delay)
}

// RetryPolicy bounds how often the search stage is attempted.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffConfig
}

// DefaultRetryPolicy makes three attempts with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Factor:       2,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
