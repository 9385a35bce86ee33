package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"      // Redis client for Go
	"github.com/vmihailenco/msgpack/v5" // Library for MessagePack serialization

	"github.com/deckhand-sh/deckhand/pkg/schemas" // Data schemas
)

// Constants for Redis keys
const (
	redisDeploymentsKey        string = "deployments"
	redisTaskKey               string = "task"
	redisTasksExecutedCountKey string = "tasksExecutedCount"
	redisKeepaliveKey          string = "keepalive"
)

// Redis represents a Redis client wrapper.
type Redis struct {
	*redis.Client
}

// SetDeployment stores a deployment record in Redis.
func (r *Redis) SetDeployment(ctx context.Context, d schemas.Deployment) error {
	// Marshal the deployment record into a binary format using MessagePack
	marshalledDeployment, err := msgpack.Marshal(d)
	if err != nil {
		return err
	}

	// Store the marshalled deployment record in Redis
	_, err = r.HSet(ctx, redisDeploymentsKey, string(d.Key()), marshalledDeployment).Result()
	return err
}

// DelDeployment deletes a deployment record from Redis.
func (r *Redis) DelDeployment(ctx context.Context, k schemas.DeploymentKey) error {
	// Delete the deployment record from Redis
	_, err := r.HDel(ctx, redisDeploymentsKey, string(k)).Result()
	return err
}

// GetDeployment retrieves a deployment record from Redis.
func (r *Redis) GetDeployment(ctx context.Context, d *schemas.Deployment) error {
	// Check if the deployment record exists
	exists, err := r.DeploymentExists(ctx, d.Key())
	if err != nil {
		return err
	}

	if exists {
		k := d.Key()

		// Retrieve the marshalled deployment record from Redis
		marshalledDeployment, err := r.HGet(ctx, redisDeploymentsKey, string(k)).Result()
		if err != nil {
			return err
		}

		// Unmarshal the deployment data into the provided deployment structure
		if err = msgpack.Unmarshal([]byte(marshalledDeployment), d); err != nil {
			return err
		}
	}

	return nil
}

// DeploymentExists checks if a deployment record exists in Redis.
func (r *Redis) DeploymentExists(ctx context.Context, k schemas.DeploymentKey) (bool, error) {
	// Check if the deployment key exists in Redis
	return r.HExists(ctx, redisDeploymentsKey, string(k)).Result()
}

// Deployments retrieves all deployment records from Redis.
func (r *Redis) Deployments(ctx context.Context) (schemas.Deployments, error) {
	deployments := schemas.Deployments{}

	// Retrieve all marshalled deployment records from Redis
	marshalledDeployments, err := r.HGetAll(ctx, redisDeploymentsKey).Result()
	if err != nil {
		return deployments, err
	}

	// Unmarshal each deployment record and add it to the deployments map
	for stringDeploymentKey, marshalledDeployment := range marshalledDeployments {
		d := schemas.Deployment{}

		if err = msgpack.Unmarshal([]byte(marshalledDeployment), &d); err != nil {
			return deployments, err
		}

		deployments[schemas.DeploymentKey(stringDeploymentKey)] = d
	}

	return deployments, nil
}

// DeploymentsCount returns the count of deployment records in Redis.
func (r *Redis) DeploymentsCount(ctx context.Context) (int64, error) {
	// Get the number of deployment records stored in Redis
	return r.HLen(ctx, redisDeploymentsKey).Result()
}

// SetKeepalive sets a key with a UUID corresponding to the currently running process.
func (r *Redis) SetKeepalive(ctx context.Context, uuid string, ttl time.Duration) (bool, error) {
	// Set a key with the UUID and a time-to-live (TTL) in Redis
	return r.SetNX(ctx, fmt.Sprintf("%s:%s", redisKeepaliveKey, uuid), nil, ttl).Result()
}

// KeepaliveExists returns whether a keepalive exists or not for a particular UUID.
func (r *Redis) KeepaliveExists(ctx context.Context, uuid string) (bool, error) {
	// Check if the keepalive key exists in Redis
	exists, err := r.Exists(ctx, fmt.Sprintf("%s:%s", redisKeepaliveKey, uuid)).Result()
	return exists == 1, err
}

// getRedisQueueKey generates a Redis key for a task.
func getRedisQueueKey(tt schemas.TaskType, taskUUID string) string {
	return fmt.Sprintf("%s:%v:%s", redisTaskKey, tt, taskUUID)
}

// QueueTask registers that we are queueing the task.
// It returns true if it managed to schedule it, false if it was already scheduled.
func (r *Redis) QueueTask(ctx context.Context, tt schemas.TaskType, taskUUID, processUUID string) (set bool, err error) {
	k := getRedisQueueKey(tt, taskUUID)

	// Attempt to set the key, if it already exists, do not overwrite it
	set, err = r.SetNX(ctx, k, processUUID, 0).Result()
	if err != nil || set {
		return
	}

	// If the key already exists, check if the associated process UUID is the same as the current one
	var tpuuid string
	if tpuuid, err = r.Get(ctx, k).Result(); err != nil {
		return
	}

	// If the process UUID is different, check if the associated process is still alive
	if tpuuid != processUUID {
		var uuidIsAlive bool
		if uuidIsAlive, err = r.KeepaliveExists(ctx, tpuuid); err != nil {
			return
		}

		// If the process is not alive, override the key and schedule the task
		if !uuidIsAlive {
			if _, err = r.Set(ctx, k, processUUID, 0).Result(); err != nil {
				return
			}
			return true, nil
		}
	}

	return
}

// UnqueueTask removes the task from the tracker.
func (r *Redis) UnqueueTask(ctx context.Context, tt schemas.TaskType, taskUUID string) (err error) {
	var matched int64

	// Delete the task key from Redis
	matched, err = r.Del(ctx, getRedisQueueKey(tt, taskUUID)).Result()
	if err != nil {
		return
	}

	// Increment the count of executed tasks
	if matched > 0 {
		_, err = r.Incr(ctx, redisTasksExecutedCountKey).Result()
	}

	return
}

// CurrentlyQueuedTasksCount returns the count of currently queued tasks.
func (r *Redis) CurrentlyQueuedTasksCount(ctx context.Context) (count uint64, err error) {
	// Scan for all task keys and count them
	iter := r.Scan(ctx, 0, fmt.Sprintf("%s:*", redisTaskKey), 0).Iterator()
	for iter.Next(ctx) {
		count++
	}

	err = iter.Err()
	return
}

// ExecutedTasksCount returns the count of executed tasks.
func (r *Redis) ExecutedTasksCount(ctx context.Context) (uint64, error) {
	// Retrieve the count of executed tasks from Redis
	countString, err := r.Get(ctx, redisTasksExecutedCountKey).Result()
	if err != nil {
		return 0, err
	}

	// Convert the count string to an integer
	c, err := strconv.Atoi(countString)
	return uint64(c), err
}
