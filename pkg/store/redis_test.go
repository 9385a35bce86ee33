package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, &Redis{Client: client}
}

func TestRedisDeploymentLifecycle(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedisStore(t)

	d := sampleDeployment()

	exists, err := s.DeploymentExists(ctx, d.Key())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SetDeployment(ctx, d))

	exists, err = s.DeploymentExists(ctx, d.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	got := schemas.Deployment{ID: d.ID, Target: d.Target}
	require.NoError(t, s.GetDeployment(ctx, &got))
	assert.Equal(t, d.Release.Tag(), got.Release.Tag())
	assert.Equal(t, d.State, got.State)

	count, err := s.DeploymentsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	all, err := s.Deployments(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, d.Key())

	require.NoError(t, s.DelDeployment(ctx, d.Key()))

	count, err = s.DeploymentsCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisQueueTask(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedisStore(t)

	queued, err := s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "process-1")
	require.NoError(t, err)
	assert.True(t, queued)

	// Same task, same process: deduplicated
	queued, err = s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "process-1")
	require.NoError(t, err)
	assert.False(t, queued)

	count, err := s.CurrentlyQueuedTasksCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, s.UnqueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1"))

	count, err = s.CurrentlyQueuedTasksCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	executed, err := s.ExecutedTasksCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), executed)
}

func TestRedisQueueTaskTakenOverFromDeadProcess(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedisStore(t)

	queued, err := s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "dead-process")
	require.NoError(t, err)
	assert.True(t, queued)

	// The holding process has no keepalive, so another process can take over
	queued, err = s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "live-process")
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestRedisQueueTaskHeldByLiveProcess(t *testing.T) {
	ctx := context.Background()
	_, s := newTestRedisStore(t)

	set, err := s.SetKeepalive(ctx, "live-process", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	queued, err := s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "live-process")
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "other-process")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestRedisKeepalive(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedisStore(t)

	exists, err := s.KeepaliveExists(ctx, "process-1")
	require.NoError(t, err)
	assert.False(t, exists)

	set, err := s.SetKeepalive(ctx, "process-1", time.Second)
	require.NoError(t, err)
	assert.True(t, set)

	exists, err = s.KeepaliveExists(ctx, "process-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(2 * time.Second)

	exists, err = s.KeepaliveExists(ctx, "process-1")
	require.NoError(t, err)
	assert.False(t, exists)
}
