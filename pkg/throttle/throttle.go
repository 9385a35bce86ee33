// Package throttle bounds the rate at which deployment runs are admitted, so
// a burst of triggers cannot saturate the build host or the targets.
package throttle

import (
	"context"
	"time"
)

// Limiter is an interface for rate limiting functionality.
// It defines a method for taking a rate-limited action.
type Limiter interface {
	Take(ctx context.Context) time.Duration
	// Take attempts to allow an action under the rate limit and returns the duration taken.
	// It blocks until the action is allowed or the context is canceled.
}

// Take is a helper function that calls the Take method on a Limiter.
// It is used to apply rate limiting to an operation.
func Take(ctx context.Context, l Limiter) {
	// Call the Take method on the provided Limiter to enforce rate limiting.
	l.Take(ctx)
}
