// Package backoff bounds retries of side-effecting steps with exponential
// delays. Transient failures are retried up to a fixed attempt budget;
// terminal errors stop immediately.
package backoff

import (
	"fmt"
	"time"

	restate "github.com/restatedev/sdk-go"
)

// Policy is a bounded exponential retry policy.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// Default returns the capture/dispatch retry policy: five attempts starting
// at one second, doubling up to a ten second ceiling.
func Default() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
	}
}

// Delay returns the pause before the given retry. attempt counts completed
// attempts, so the first retry (attempt 1) waits InitialDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// normalized guards against nonsensical policies. A zero InitialDelay is
// kept as-is and means retries run back to back without a timer.
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Factor < 1 {
		p.Factor = 2.0
	}
	return p
}

// Run executes op as a durable step, retrying transient failures with durable
// sleeps between attempts. Terminal errors are returned as-is without
// consuming the budget; exhaustion wraps the last error.
func Run[T any](ctx restate.Context, p Policy, name string, op func(restate.RunContext) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := restate.Run(ctx, op, restate.WithName(fmt.Sprintf("%s (attempt %d)", name, attempt)))
		if err == nil {
			return result, nil
		}
		if restate.IsTerminalError(err) {
			return zero, err
		}

		lastErr = err
		ctx.Log().Warn("step failed",
			"step", name,
			"attempt", attempt,
			"maxAttempts", p.MaxAttempts,
			"error", err)

		if attempt < p.MaxAttempts {
			if d := p.Delay(attempt); d > 0 {
				if err := restate.Sleep(ctx, d); err != nil {
					return zero, fmt.Errorf("backoff: sleep before retry: %w", err)
				}
			}
		}
	}

	return zero, fmt.Errorf("backoff: %s: %d attempts exhausted: %w", name, p.MaxAttempts, lastErr)
}
