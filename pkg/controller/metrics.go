package controller

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
	"github.com/deckhand-sh/deckhand/pkg/store"
)

// deploymentLabels contains the labels attached to per-deployment metrics.
var deploymentLabels = []string{"target", "release"}

// statesList defines all possible deployment run states used when emitting
// status metrics.
var statesList = [...]schemas.DeploymentState{
	schemas.DeploymentStatePending,
	schemas.DeploymentStateBuilding,
	schemas.DeploymentStatePackaging,
	schemas.DeploymentStateTransferring,
	schemas.DeploymentStateApplying,
	schemas.DeploymentStateDeployed,
	schemas.DeploymentStateFailed,
}

// Registry wraps a pointer to prometheus.Registry and manages metric collectors.
type Registry struct {
	*prometheus.Registry // The main Prometheus registry.

	// InternalCollectors holds custom internal application metrics (not user-facing).
	InternalCollectors struct {
		ArchivesCount             prometheus.Collector // Number of image archives retained on disk.
		CurrentlyQueuedTasksCount prometheus.Collector // Number of tasks currently queued.
		DeploymentsCount          prometheus.Collector // Total number of deployment records tracked.
		ExecutedTasksCount        prometheus.Collector // Total number of tasks that have been executed.
		RemoteCommandsCount       prometheus.Collector // Total number of remote commands executed.
	}

	// DeploymentStatus tracks the lifecycle state of each deployment record.
	DeploymentStatus *prometheus.GaugeVec

	// DeploymentTimestamp tracks the last state transition of each deployment record.
	DeploymentTimestamp *prometheus.GaugeVec
}

// NewRegistry initializes and returns a new Registry instance with all the necessary collectors registered.
func NewRegistry(ctx context.Context) *Registry {
	r := &Registry{
		Registry: prometheus.NewRegistry(), // Create a new Prometheus registry instance.

		DeploymentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deckhand_deployment_status",
				Help: "Lifecycle state of the deployment run, 1 for the current state",
			},
			append(deploymentLabels, "state"),
		),

		DeploymentTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deckhand_deployment_timestamp",
				Help: "Unix timestamp of the last state transition of the deployment run",
			},
			deploymentLabels,
		),
	}

	// Register internal metrics collectors (e.g., for internal health and stats).
	r.RegisterInternalCollectors()

	// Register the deployment collectors into the Prometheus registry.
	for name, c := range map[string]prometheus.Collector{
		"deployment status":    r.DeploymentStatus,
		"deployment timestamp": r.DeploymentTimestamp,
	} {
		if err := r.Register(c); err != nil {
			// Fatal error: the application cannot proceed without successful metric registration.
			log.WithContext(ctx).
				Fatal(fmt.Errorf("could not add '%s' collector to the Prometheus registry: %v", name, err))
		}
	}

	return r
}

// RegisterInternalCollectors declares and registers internal application metrics to the Prometheus registry.
func (r *Registry) RegisterInternalCollectors() {
	// Initialize each internal collector with its corresponding constructor.
	// These collectors track the internal state of the system (not user metrics).
	r.InternalCollectors.ArchivesCount = newInternalGauge("deckhand_archives_count", "Number of image archives retained on disk")
	r.InternalCollectors.CurrentlyQueuedTasksCount = newInternalGauge("deckhand_currently_queued_tasks_count", "Number of tasks in the queue")
	r.InternalCollectors.DeploymentsCount = newInternalGauge("deckhand_deployments_count", "Number of deployment records being tracked")
	r.InternalCollectors.ExecutedTasksCount = newInternalGauge("deckhand_executed_tasks_count", "Number of tasks executed")
	r.InternalCollectors.RemoteCommandsCount = newInternalGauge("deckhand_remote_commands_count", "Number of remote commands executed on the targets")

	// Register all initialized internal collectors with the Prometheus registry.
	// The underscore `_` ignores any error returned by Register (e.g., if already registered).
	_ = r.Register(r.InternalCollectors.ArchivesCount)
	_ = r.Register(r.InternalCollectors.CurrentlyQueuedTasksCount)
	_ = r.Register(r.InternalCollectors.DeploymentsCount)
	_ = r.Register(r.InternalCollectors.ExecutedTasksCount)
	_ = r.Register(r.InternalCollectors.RemoteCommandsCount)
}

// newInternalGauge creates a label-less gauge collector for an internal metric.
func newInternalGauge(name, help string) prometheus.Collector {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{}, // no labels for internal metrics
	)
}

// ExportInternalMetrics gathers internal statistics from the store and the controller,
// then sets the values for the corresponding Prometheus internal collectors.
func (r *Registry) ExportInternalMetrics(ctx context.Context, c *Controller, s store.Store) (err error) {
	var (
		archivesCount        int64  // Number of image archives on disk
		currentlyQueuedTasks uint64 // Number of tasks currently in the queue
		deploymentsCount     int64  // Number of deployment records tracked
		executedTasksCount   uint64 // Number of tasks that have been executed
	)

	// Retrieve the number of currently queued tasks from the store
	currentlyQueuedTasks, err = s.CurrentlyQueuedTasksCount(ctx)
	if err != nil {
		return
	}

	// Retrieve the number of executed tasks
	executedTasksCount, err = s.ExecutedTasksCount(ctx)
	if err != nil {
		return
	}

	// Retrieve the number of deployment records
	deploymentsCount, err = s.DeploymentsCount(ctx)
	if err != nil {
		return
	}

	// Count the image archives currently retained on disk
	archivesCount, err = c.Images.CountArchives()
	if err != nil {
		return
	}

	// Set Prometheus gauge values for each internal metric.
	// All collectors are asserted as GaugeVec and updated with empty labels.
	r.InternalCollectors.ArchivesCount.(*prometheus.GaugeVec).With(prometheus.Labels{}).Set(float64(archivesCount))
	r.InternalCollectors.CurrentlyQueuedTasksCount.(*prometheus.GaugeVec).With(prometheus.Labels{}).Set(float64(currentlyQueuedTasks))
	r.InternalCollectors.DeploymentsCount.(*prometheus.GaugeVec).With(prometheus.Labels{}).Set(float64(deploymentsCount))
	r.InternalCollectors.ExecutedTasksCount.(*prometheus.GaugeVec).With(prometheus.Labels{}).Set(float64(executedTasksCount))
	r.InternalCollectors.RemoteCommandsCount.(*prometheus.GaugeVec).With(prometheus.Labels{}).Set(float64(c.RemoteCommandsCount.Load()))

	return
}

// ExportDeployments updates the per-deployment collectors from the stored
// deployment records. The status gauge carries one series per possible state,
// set to 1 only for the state the record is currently in.
func (r *Registry) ExportDeployments(deployments schemas.Deployments) {
	for _, d := range deployments {
		labels := prometheus.Labels{
			"target":  d.Target,
			"release": d.Release.Tag(),
		}

		for _, state := range statesList {
			var value float64
			if d.State == state {
				value = 1
			}

			statusLabels := prometheus.Labels{
				"target":  labels["target"],
				"release": labels["release"],
				"state":   string(state),
			}

			r.DeploymentStatus.With(statusLabels).Set(value)
		}

		r.DeploymentTimestamp.With(labels).Set(float64(d.UpdatedAt.Unix()))
	}
}
