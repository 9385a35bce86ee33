package schemas

import (
	"hash/crc32"
	"strconv"
	"time"
)

// DeploymentState represents the lifecycle state of a deployment run.
type DeploymentState string

const (
	// DeploymentStatePending means the run is queued but no stage has started.
	DeploymentStatePending DeploymentState = "pending"

	// DeploymentStateBuilding means the build stage is producing the artifact.
	DeploymentStateBuilding DeploymentState = "building"

	// DeploymentStatePackaging means the image stage is packaging and
	// serializing the container image.
	DeploymentStatePackaging DeploymentState = "packaging"

	// DeploymentStateTransferring means the archive is being uploaded to the
	// remote host.
	DeploymentStateTransferring DeploymentState = "transferring"

	// DeploymentStateApplying means the remote host is swapping the running
	// container for the new release.
	DeploymentStateApplying DeploymentState = "applying"

	// DeploymentStateDeployed means the run completed and the new container
	// is running on the remote host.
	DeploymentStateDeployed DeploymentState = "deployed"

	// DeploymentStateFailed means a stage failed and the run was aborted.
	DeploymentStateFailed DeploymentState = "failed"
)

// Deployment records one pipeline run of a release against a target. It only
// exists for observability: the pipeline never consults prior records to make
// decisions about the next run.
type Deployment struct {
	ID          string          // Unique identifier of the run
	Target      string          // Name of the deployment target
	Release     Release         // Release being deployed
	State       DeploymentState // Current lifecycle state
	FailedStage string          // Stage name the run failed at, empty otherwise
	Error       string          // Error message of the failed stage, empty otherwise
	ArchivePath string          // Local path of the serialized image archive
	CreatedAt   time.Time       // When the run was accepted
	UpdatedAt   time.Time       // When the record last changed state
}

// DeploymentKey is a unique identifier for a deployment record.
type DeploymentKey string

// Key generates the storage key of a deployment from its run identifier and
// target, using a CRC32 checksum.
func (d Deployment) Key() DeploymentKey {
	return DeploymentKey(strconv.Itoa(int(crc32.ChecksumIEEE([]byte(d.ID + d.Target)))))
}

// Deployments is a map used to keep track of deployment records.
type Deployments map[DeploymentKey]Deployment

// Count returns the number of deployment records in the map.
func (ds Deployments) Count() int {
	return len(ds)
}
