// Package retry wraps an operation with bounded retry attempts and
// exponential backoff with jitter. A classifier separates transient provider
// failures (retried) from fatal ones (aborted immediately).
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Policy controls the retry schedule.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int `mapstructure:"max_retries"`
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// Multiplier grows the delay per attempt (exponential backoff).
	Multiplier float64 `mapstructure:"multiplier"`
	// Jitter randomizes each delay by a uniform factor in [0.75, 1.25].
	Jitter bool `mapstructure:"jitter"`
}

// DefaultPolicy returns the retry schedule used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Attempt describes one failed attempt, handed to the OnRetry callback.
type Attempt struct {
	Attempt     int
	Err         error
	RetriesLeft int
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It wraps the last observed error.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed after %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op up to p.MaxRetries+1 times. Fatal errors (per Retryable) abort
// immediately and are returned as-is; exhausting the schedule returns an
// ExhaustedError wrapping the last error. onRetry, when non-nil, observes
// every failed retryable attempt.
//
// Backoff sleeps are not cancellable mid-delay: the sleep completes before
// the next attempt observes ctx. The latency is bounded by p.MaxDelay.
func Do(ctx context.Context, log zerolog.Logger, p Policy, op func(context.Context) error, onRetry func(Attempt)) error {
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("fatal error, not retrying")
			return err
		}
		if onRetry != nil {
			onRetry(Attempt{Attempt: attempt + 1, Err: err, RetriesLeft: p.MaxRetries - attempt})
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := p.delay(attempt)
		log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("retries_left", p.MaxRetries-attempt).
			Dur("delay", delay).
			Msg("transient error, retrying")
		time.Sleep(delay)
	}

	return &ExhaustedError{
		Attempts: p.MaxRetries + 1,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// delay computes the backoff before retrying attempt (0-based):
// min(InitialDelay * Multiplier^attempt, MaxDelay), jittered when enabled.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			break
		}
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	if p.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}
