// Package retry implements the explicit retry combinator spec §9 calls
// for in place of the source's annotation-based retries: a higher-order
// function wrapping a fallible thunk with a policy struct, rather than a
// decorator or reflection-driven retry.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/h3tag-core/consensus/consensuserrors"
)

// Policy configures exponential backoff with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is the spec-wide retry policy: a handful of attempts,
// exponential backoff, capped.
var Default = Policy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// plus jitter between attempts. It stops early if fn returns a non-nil
// error that is not retriable (per consensuserrors.IsRetriable), or if ctx
// is cancelled.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !consensuserrors.IsRetriable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := backoff(p, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func backoff(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	jitter := 0.5 + rand.Float64()*0.5 // [0.5, 1.0) of d
	return time.Duration(d * jitter)
}
