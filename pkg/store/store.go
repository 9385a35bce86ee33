package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

// Store is an interface that defines methods for interacting with storage.
// It includes methods for manipulating deployment records and the task queue
// tracker.
type Store interface {
	// Methods for manipulating deployment records
	SetDeployment(ctx context.Context, d schemas.Deployment) error                // SetDeployment stores a deployment record
	DelDeployment(ctx context.Context, dk schemas.DeploymentKey) error            // DelDeployment deletes a deployment record
	GetDeployment(ctx context.Context, d *schemas.Deployment) error               // GetDeployment retrieves a deployment record
	DeploymentExists(ctx context.Context, dk schemas.DeploymentKey) (bool, error) // DeploymentExists checks the existence of a deployment record
	Deployments(ctx context.Context) (schemas.Deployments, error)                 // Deployments retrieves all deployment records
	DeploymentsCount(ctx context.Context) (int64, error)                          // DeploymentsCount counts the number of deployment records

	// Helpers to keep track of currently queued tasks and avoid scheduling them
	// twice at the risk of ending up with loads of dangling goroutines being locked
	QueueTask(ctx context.Context, tt schemas.TaskType, taskUUID, processUUID string) (bool, error) // QueueTask adds a task to the queue
	UnqueueTask(ctx context.Context, tt schemas.TaskType, taskUUID string) error                    // UnqueueTask removes a task from the queue
	CurrentlyQueuedTasksCount(ctx context.Context) (uint64, error)                                  // CurrentlyQueuedTasksCount counts the number of currently queued tasks
	ExecutedTasksCount(ctx context.Context) (uint64, error)                                         // ExecutedTasksCount counts the number of executed tasks
}

// NewLocalStore creates a new instance of local storage.
func NewLocalStore() Store {
	return &Local{
		deployments: make(schemas.Deployments), // Initializes a collection of deployment records
	}
}

// NewRedisStore creates a new instance of storage using Redis.
func NewRedisStore(client *redis.Client) Store {
	return &Redis{
		Client: client, // Redis client to interact with the Redis server
	}
}

// New creates a new store, backed by Redis when a client is provided and held
// in memory otherwise.
func New(
	ctx context.Context,
	r *redis.Client,
) (s Store) {
	// Initializes an OpenTelemetry span for tracing
	_, span := otel.Tracer(tracerName).Start(ctx, "store:New")
	defer span.End()

	// Chooses the type of storage based on the presence of a Redis client
	if r != nil {
		s = NewRedisStore(r) // Uses Redis if a client is provided
	} else {
		s = NewLocalStore() // Uses local storage otherwise
	}

	return s // Returns the initialized store
}

const tracerName = "deckhand"
