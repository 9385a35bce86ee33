package throttle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Local represents a local rate limiter using the golang.org/x/time/rate package.
type Local struct {
	*rate.Limiter // Embedded rate limiter from the rate package
}

// NewLocalLimiter creates a new local rate limiter with the specified maximum
// and burstable deployment runs per minute.
func NewLocalLimiter(maximumRPM int, burstableRuns int) Limiter {
	// Create and return a new Local rate limiter with the specified rate limits
	return Local{
		Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(maximumRPM)), burstableRuns),
	}
}

// Take attempts to allow an action under the rate limit and returns the duration taken.
func (l Local) Take(ctx context.Context) time.Duration {
	start := time.Now() // Record the start time

	// Wait until the rate limiter allows the action to proceed
	if err := l.Limiter.Wait(ctx); err != nil {
		// Log a fatal error if there is an issue with the rate limiter
		log.WithContext(ctx).
			WithError(err).
			Fatal()
	}

	// Return the duration taken to allow the action
	return time.Since(start)
}
