package throttle

import (
	"context"
	"time"

	"github.com/go-redis/redis_rate/v10" // Redis rate limiting library
	"github.com/redis/go-redis/v9"       // Redis client library
	log "github.com/sirupsen/logrus"     // Logging library
)

const redisKey string = `dh:deployments` // Redis key used for rate limiting

// Redis represents a rate limiter using Redis, shared across every process
// pointing at the same instance.
type Redis struct {
	*redis_rate.Limiter     // Embedded Redis rate limiter
	MaxRPM              int // Maximum deployment runs per minute allowed
}

// NewRedisLimiter creates a new Redis-based rate limiter.
func NewRedisLimiter(redisClient *redis.Client, maxRPM int) Limiter {
	// Create and return a new Redis rate limiter with the given Redis client and maximum runs per minute
	return Redis{
		Limiter: redis_rate.NewLimiter(redisClient), // Initialize the Redis rate limiter
		MaxRPM:  maxRPM,                             // Set the maximum runs per minute
	}
}

// Take attempts to allow a deployment run under the rate limit and blocks until allowed.
func (r Redis) Take(ctx context.Context) time.Duration {
	start := time.Now() // Record the start time

	// Loop until a run is allowed
	for {
		// Check if a run is allowed under the rate limit
		res, err := r.Allow(ctx, redisKey, redis_rate.PerMinute(r.MaxRPM))
		if err != nil {
			// Log a fatal error if there is an issue with the rate limiter
			log.WithContext(ctx).
				WithError(err).
				Fatal()
		}

		// If the run is allowed, break out of the loop
		if res.Allowed > 0 {
			break
		} else {
			// Log a debug message indicating that the run is being throttled
			log.WithFields(
				log.Fields{
					"for": res.RetryAfter.String(), // Duration to wait before retrying
				},
			).Debug("throttled deployment runs")

			// Sleep for the duration specified by the rate limiter
			time.Sleep(res.RetryAfter)
		}
	}

	// Return the duration taken to allow the run
	return time.Since(start)
}
