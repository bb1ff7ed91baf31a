package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps another Client with a circuit breaker so a
// consistently failing provider is cut off instead of burning the retry and
// reservoir budget on every unit.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a breaker that opens after five
// consecutive failures and probes again after 30 seconds.
func NewBreakerClient(inner Client) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerClient{inner: inner, cb: cb}
}

func (c *BreakerClient) Name() string { return c.inner.Name() }

// Complete delegates to the wrapped client. While the breaker is open it
// fails fast with a 503-status error, which the retry classifier treats as
// transient.
func (c *BreakerClient) Complete(ctx context.Context, prompt, content string) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, prompt, content)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", &Error{Provider: c.Name(), Status: 503, Message: "circuit breaker open"}
		}
		return "", err
	}
	return out.(string), nil
}
