package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLocalLimiterBurstIsImmediate(t *testing.T) {
	l := NewLocalLimiter(2, 1)

	// The first take fits in the burst and returns without waiting
	elapsed := l.Take(context.Background())
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestLocalLimiterThrottlesBeyondBurst(t *testing.T) {
	l := NewLocalLimiter(600, 1)

	Take(context.Background(), l)

	// The second take exceeds the burst and waits for the next slot,
	// one release every 100ms at 600 runs per minute
	elapsed := l.Take(context.Background())
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestRedisLimiterBurstIsImmediate(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, 10)

	elapsed := l.Take(context.Background())
	assert.Less(t, elapsed, 100*time.Millisecond)
}
