package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

func sampleDeployment() schemas.Deployment {
	return schemas.Deployment{
		ID:     "run-1",
		Target: "production",
		Release: schemas.Release{
			Branch:   "main",
			Revision: "a1b2c3d4e5f6a7b8",
		},
		State: schemas.DeploymentStatePending,
	}
}

func TestLocalDeploymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

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
	assert.Equal(t, d, got)

	count, err := s.DeploymentsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	all, err := s.Deployments(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemas.Deployments{d.Key(): d}, all)

	require.NoError(t, s.DelDeployment(ctx, d.Key()))

	count, err = s.DeploymentsCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLocalDeploymentStateUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

	d := sampleDeployment()
	require.NoError(t, s.SetDeployment(ctx, d))

	d.State = schemas.DeploymentStateDeployed
	require.NoError(t, s.SetDeployment(ctx, d))

	got := schemas.Deployment{ID: d.ID, Target: d.Target}
	require.NoError(t, s.GetDeployment(ctx, &got))
	assert.Equal(t, schemas.DeploymentStateDeployed, got.State)

	// Same run identifier and target map onto the same record
	count, err := s.DeploymentsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLocalQueueTask(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

	queued, err := s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "process")
	require.NoError(t, err)
	assert.True(t, queued)

	// A second attempt with the same identifier is deduplicated
	queued, err = s.QueueTask(ctx, schemas.TaskTypeDeploy, "uuid-1", "process")
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

func TestLocalUnqueueUnknownTask(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()

	require.NoError(t, s.UnqueueTask(ctx, schemas.TaskTypeDeploy, "never-queued"))

	executed, err := s.ExecutedTasksCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, executed)
}
