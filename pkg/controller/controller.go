package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/taskq/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"google.golang.org/grpc"

	"github.com/deckhand-sh/deckhand/pkg/builder"
	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
	"github.com/deckhand-sh/deckhand/pkg/git"
	"github.com/deckhand-sh/deckhand/pkg/image"
	"github.com/deckhand-sh/deckhand/pkg/monitor"
	"github.com/deckhand-sh/deckhand/pkg/remote"
	"github.com/deckhand-sh/deckhand/pkg/schemas"
	"github.com/deckhand-sh/deckhand/pkg/store"
	"github.com/deckhand-sh/deckhand/pkg/throttle"
)

const (
	tracerName = "deckhand"

	// ratecounterInterval is the sliding window of the remote command rate counter.
	ratecounterInterval = time.Second
)

// Controller holds the necessary clients and components to run the orchestrator and handle its operations.
// It includes configuration, connections to Redis, the pipeline stage runners, storage interface, and task management.
// The UUID field uniquely identifies this controller instance, especially useful in clustered deployments
// where multiple orchestrator instances share Redis.
type Controller struct {
	Config         config.Config    // Application configuration settings
	Redis          *redis.Client    // Redis client for caching and coordination
	Store          store.Store      // Storage interface to persist deployment records (backed by Redis)
	TaskController TaskController   // Manages background tasks and job queues
	Throttle       throttle.Limiter // Bounds the rate of deployment runs

	Builder   ArtifactBuilder  // Runs the artifact build stage
	Images    ImageManager     // Runs the image packaging stage
	Git       RevisionResolver // Resolves branch and revision from the local checkout
	NewRemote RemoteFactory    // Opens remote sessions against targets

	// RemoteCommandsRate tracks the per-second rate of remote commands across runs.
	RemoteCommandsRate *ratecounter.RateCounter
	// RemoteCommandsCount counts remote commands executed across runs.
	RemoteCommandsCount *atomic.Uint64

	// UUID uniquely identifies this controller instance among others when running
	// in clustered mode, facilitating coordination via Redis.
	UUID uuid.UUID
}

// New creates and initializes a new Controller instance.
// It sets up tracing, the Redis connection, the task controller, storage,
// the pipeline stage runners, and starts the scheduler.
func New(ctx context.Context, cfg config.Config) (c Controller, err error) {
	c.Config = cfg      // Store configuration
	c.UUID = uuid.New() // Generate a new UUID for this controller instance

	c.RemoteCommandsRate = ratecounter.NewRateCounter(ratecounterInterval)
	c.RemoteCommandsCount = &atomic.Uint64{}

	// Configure distributed tracing if an OpenTelemetry gRPC endpoint is specified
	if err = configureTracing(ctx, cfg.OpenTelemetry.GRPCEndpoint); err != nil {
		return
	}

	// Initialize Redis connection with provided URL
	if err = c.configureRedis(ctx, cfg.Redis.URL); err != nil {
		return
	}

	// Create a task controller to manage job queues with a maximum size from config
	c.TaskController = NewTaskController(ctx, c.Redis, cfg.Deploy.MaximumQueueSize)
	c.registerTasks() // Register the tasks that the controller can run

	// Initialize the storage interface which will use Redis when configured
	c.Store = store.New(ctx, c.Redis)

	// Throttle deployment runs, shared across instances when Redis is configured
	c.configureThrottle()

	// Wire the pipeline stage runners on top of a local command executor
	runner := &executor.Local{}
	c.Builder = builder.New(runner, cfg.Build)
	c.Images = image.New(runner, cfg.Image)
	c.Git = git.NewResolver(runner, cfg.Git)
	c.NewRemote = c.openRemote

	// Start the background scheduler for archive garbage collection
	c.Schedule(ctx, cfg.Deploy)

	return
}

// registerTasks registers all task handlers with the TaskController's task map.
// Each task runs a single attempt: a failed deployment is never retried
// internally, the record keeps the failed stage for the operator.
func (c *Controller) registerTasks() {
	for n, h := range map[schemas.TaskType]interface{}{
		schemas.TaskTypeDeploy:                 c.TaskHandlerDeploy,
		schemas.TaskTypeGarbageCollectArchives: c.TaskHandlerGarbageCollectArchives,
	} {
		_, _ = c.TaskController.TaskMap.Register(string(n), &taskq.TaskConfig{
			Handler:    h,
			RetryLimit: 1,
		})
	}
}

// unqueueTask attempts to remove a task identified by its type and unique ID from the task queue in the store.
// If the operation fails, it logs a warning with the task details and the error encountered.
func (c *Controller) unqueueTask(ctx context.Context, tt schemas.TaskType, uniqueID string) {
	if err := c.Store.UnqueueTask(ctx, tt, uniqueID); err != nil {
		log.WithContext(ctx).
			WithFields(log.Fields{
				"task_type":      tt,
				"task_unique_id": uniqueID,
			}).
			WithError(err).
			Warn("unqueuing task")
	}
}

// configureTracing sets up OpenTelemetry tracing via a gRPC endpoint.
// If no endpoint is provided, tracing support is skipped.
func configureTracing(ctx context.Context, grpcEndpoint string) error {
	// If no gRPC endpoint is specified, log that tracing will be skipped and return nil
	if len(grpcEndpoint) == 0 {
		log.Debug("opentelemetry.grpc_endpoint is not configured, skipping open telemetry support")
		return nil
	}

	// Log that a gRPC endpoint is configured and tracing initialization is starting
	log.WithFields(log.Fields{
		"opentelemetry_grpc_endpoint": grpcEndpoint,
	}).Info("opentelemetry gRPC endpoint provided, initializing connection..")

	// Create a new OpenTelemetry gRPC trace client with insecure connection, connecting to the given endpoint,
	// and block until the connection is established
	traceClient := otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(grpcEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithBlock()), // nolint: staticcheck
	)

	// Create a new trace exporter using the gRPC trace client
	traceExp, err := otlptrace.New(ctx, traceClient)
	if err != nil {
		return err
	}

	// Create a resource describing this application with metadata from environment,
	// process info, telemetry SDK, host info, and set the service name attribute
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("deckhand"),
		),
	)
	if err != nil {
		return err
	}

	// Create a batch span processor to buffer and send spans efficiently to the exporter
	bsp := sdktrace.NewBatchSpanProcessor(traceExp)

	// Create a tracer provider configured to always sample all traces,
	// associate the resource metadata, and use the batch span processor
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)

	// Set the global tracer provider so it will be used by the OpenTelemetry API
	otel.SetTracerProvider(tracerProvider)

	return nil
}

// configureThrottle initializes the deployment run rate limiter.
// It is backed by Redis when available so the limit spans every instance,
// otherwise it is enforced locally in memory.
func (c *Controller) configureThrottle() {
	if c.Redis != nil {
		c.Throttle = throttle.NewRedisLimiter(c.Redis, c.Config.Deploy.MaximumDeploymentsPerMinute)
		return
	}

	c.Throttle = throttle.NewLocalLimiter(
		c.Config.Deploy.MaximumDeploymentsPerMinute,
		c.Config.Deploy.BurstableDeployments,
	)
}

// configureRedis initializes the Redis client using the provided URL and sets up OpenTelemetry tracing instrumentation.
// It returns an error if any step of the configuration or connection fails.
func (c *Controller) configureRedis(ctx context.Context, url string) (err error) {
	// Start a new OpenTelemetry trace span for monitoring this function
	ctx, span := otel.Tracer(tracerName).Start(ctx, "controller:configureRedis")
	defer span.End()

	// If no Redis URL is provided, skip Redis configuration and use local (in-memory) alternatives
	if len(url) <= 0 {
		log.Debug("redis url is not configured, skipping configuration & using local driver")
		return
	}

	log.Info("redis url configured, initializing connection..")

	var opt *redis.Options

	// Parse the Redis URL into options; return early on error
	if opt, err = redis.ParseURL(url); err != nil {
		return
	}

	// Create a new Redis client instance with the parsed options
	c.Redis = redis.NewClient(opt)

	// Instrument the Redis client with OpenTelemetry tracing for monitoring Redis operations
	if err = redisotel.InstrumentTracing(c.Redis); err != nil {
		return
	}

	// Test the Redis connection by sending a PING command; wrap any error with context
	if _, err := c.Redis.Ping(ctx).Result(); err != nil {
		return errors.Wrap(err, "connecting to redis")
	}

	log.Info("connected to redis")

	return
}

// openRemote establishes a session to the target and wires it to the
// controller-level telemetry counters, which outlive the session.
func (c *Controller) openRemote(t config.Target) (RemoteSession, error) {
	cl, err := remote.NewClient(t)
	if err != nil {
		return nil, err
	}

	return &observedSession{
		Client: cl,
		rate:   c.RemoteCommandsRate,
		count:  c.RemoteCommandsCount,
	}, nil
}

// observedSession counts remote commands on the controller counters in
// addition to the per-session ones.
type observedSession struct {
	*remote.Client

	rate  *ratecounter.RateCounter
	count *atomic.Uint64
}

func (s *observedSession) Exec(ctx context.Context, command string) (string, error) {
	s.rate.Incr(1)
	s.count.Add(1)

	return s.Client.Exec(ctx, command)
}

// Telemetry assembles a snapshot of the orchestrator internals for the
// internal monitoring listener.
func (c *Controller) Telemetry(ctx context.Context) (t monitor.Telemetry, err error) {
	if t.Deployments.Count, err = c.Store.DeploymentsCount(ctx); err != nil {
		return
	}

	if t.Archives.Count, err = c.Images.CountArchives(); err != nil {
		return
	}

	if gc, ok := c.TaskController.TaskSchedulingMonitoring[schemas.TaskTypeGarbageCollectArchives]; ok {
		t.Archives.LastGC = gc.Last
		t.Archives.NextGC = gc.Next
	}

	var queuedTasks uint64

	if queuedTasks, err = c.Store.CurrentlyQueuedTasksCount(ctx); err != nil {
		return
	}

	t.TasksBufferUsage = float64(queuedTasks) / float64(c.Config.Deploy.MaximumQueueSize)
	if t.TasksBufferUsage > 1 {
		t.TasksBufferUsage = 1
	}

	if t.TasksExecutedCount, err = c.Store.ExecutedTasksCount(ctx); err != nil {
		return
	}

	t.RemoteCommandsRate = float64(c.RemoteCommandsRate.Rate())
	t.RemoteCommandsCount = c.RemoteCommandsCount.Load()

	return
}
