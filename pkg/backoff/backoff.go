// Package backoff implements bounded exponential backoff with jitter for
// retrying exchange calls.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

type Config struct {
	// MaxAttempts caps the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// JitterFactor randomizes each delay by up to this fraction so many
	// clients retrying at once do not hit the exchange in lockstep.
	JitterFactor float64

	// RetryIf decides whether an error is worth another attempt.
	// Nil retries every error.
	RetryIf func(error) bool

	// OnRetry, if set, is called before each wait. Useful for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default suits most REST calls: 4 attempts at 100ms, 200ms, 400ms.
func Default() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Aggressive suits protective orders: more attempts, shorter waits.
func Aggressive() Config {
	return Config{
		MaxAttempts:  6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) sanitize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = 0.1
	}
}

// Delay returns the wait before attempt n (0-based), jitter included.
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		// Symmetric jitter: d * (1 ± JitterFactor)
		d *= 1 + c.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, the attempt budget is spent, or ctx is done.
// The last error is returned when the budget is exhausted.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg.sanitize()

	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.Delay(attempt - 1)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, err, delay)
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
	}
	return err
}
