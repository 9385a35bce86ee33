package controller

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/pipeline"
	"github.com/deckhand-sh/deckhand/pkg/remote"
	"github.com/deckhand-sh/deckhand/pkg/schemas"
	"github.com/deckhand-sh/deckhand/pkg/throttle"
)

// ArtifactBuilder runs the artifact build stage and returns the path of the
// single artifact it produced.
type ArtifactBuilder interface {
	Build(ctx context.Context) (string, error)
}

// ImageManager runs the image packaging stage and manages the archives it
// leaves on disk.
type ImageManager interface {
	Build(ctx context.Context, release schemas.Release) (string, error)
	VerifyRuntimeUser(ctx context.Context, ref string) error
	Save(ctx context.Context, ref string, release schemas.Release) (string, error)
	PruneArchives(now time.Time) ([]string, error)
	CountArchives() (int64, error)
}

// RevisionResolver resolves the branch and revision of the local checkout.
type RevisionResolver interface {
	HeadBranch(ctx context.Context) (string, error)
	HeadRevision(ctx context.Context) (string, error)
}

// RemoteSession is the slice of the remote client a deployment run needs.
type RemoteSession interface {
	Exec(ctx context.Context, command string) (string, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// RemoteFactory opens a session against a target.
type RemoteFactory func(t config.Target) (RemoteSession, error)

// RunDeployment runs one deployment end to end: tag the release, build the
// artifact, package and serialize the image, transfer the archive, and swap
// the container on the target.
//
// Every stage failure is terminal. The deployment record keeps the failed
// stage and error message, and the next run starts from scratch; nothing is
// resumed or rolled back.
func (c *Controller) RunDeployment(ctx context.Context, id string, trigger schemas.Trigger) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "controller:RunDeployment")
	defer span.End()

	span.SetAttributes(attribute.String("target", trigger.Target))

	// Admission is throttled so a burst of triggers cannot saturate the
	// build host or the targets.
	throttle.Take(ctx, c.Throttle)

	target, err := c.Config.Target(trigger.Target)
	if err != nil {
		return err
	}

	d := schemas.Deployment{
		ID:        id,
		Target:    target.Name,
		State:     schemas.DeploymentStatePending,
		CreatedAt: time.Now(),
	}

	logger := log.WithContext(ctx).WithFields(log.Fields{
		"deployment-id": id,
		"target":        target.Name,
	})

	if err = c.runStages(ctx, logger, target, trigger, &d); err != nil {
		d.State = schemas.DeploymentStateFailed
		d.FailedStage = string(pipeline.FailedStage(err))
		d.Error = err.Error()
		c.recordDeployment(ctx, &d)

		logger.WithField("stage", d.FailedStage).
			WithError(err).
			Error("deployment failed")

		return err
	}

	d.State = schemas.DeploymentStateDeployed
	c.recordDeployment(ctx, &d)

	logger.WithField("release", d.Release.Tag()).Info("deployment completed")

	c.probeHealth(ctx, target)

	return nil
}

// runStages walks the deployment sequence, updating the record state as each
// stage starts. The first stage error aborts the walk.
func (c *Controller) runStages(
	ctx context.Context,
	logger *log.Entry,
	target config.Target,
	trigger schemas.Trigger,
	d *schemas.Deployment,
) (err error) {
	c.recordDeployment(ctx, d)

	// Tag: derive the deterministic release tag from branch and revision.
	// An unresolvable pair is rejected before anything is built.
	if d.Release, err = c.resolveRelease(ctx, trigger); err != nil {
		return pipeline.Fail(pipeline.StageTag, err)
	}

	logger = logger.WithField("release", d.Release.Tag())
	logger.Info("starting deployment")

	// Build: produce the executable artifact with the build tool.
	d.State = schemas.DeploymentStateBuilding
	c.recordDeployment(ctx, d)

	if _, err = c.Builder.Build(ctx); err != nil {
		return pipeline.Fail(pipeline.StageBuild, err)
	}

	// Package: build the image, verify its runtime identity, serialize it.
	d.State = schemas.DeploymentStatePackaging
	c.recordDeployment(ctx, d)

	var ref string

	if ref, err = c.Images.Build(ctx, d.Release); err != nil {
		return pipeline.Fail(pipeline.StagePackage, err)
	}

	if err = c.Images.VerifyRuntimeUser(ctx, ref); err != nil {
		return pipeline.Fail(pipeline.StagePackage, err)
	}

	if d.ArchivePath, err = c.Images.Save(ctx, ref, d.Release); err != nil {
		return pipeline.Fail(pipeline.StagePackage, err)
	}

	// Transfer: upload the archive to the target over the secure channel.
	d.State = schemas.DeploymentStateTransferring
	c.recordDeployment(ctx, d)

	session, err := c.NewRemote(target)
	if err != nil {
		return pipeline.Fail(pipeline.StageTransfer, err)
	}
	defer session.Close() // nolint: errcheck

	// The remote lock serializes concurrent runs against the same host so
	// two deployments cannot interleave their container swaps.
	if target.Lock.Enabled {
		lock := remote.NewLock(
			session,
			target.DeployDir,
			c.UUID.String(),
			time.Duration(target.Lock.StaleAfterSeconds)*time.Second,
		)

		if err = lock.Acquire(ctx); err != nil {
			return pipeline.Fail(pipeline.StageTransfer, err)
		}
		defer lock.Release(ctx)
	}

	remoteArchive := target.DeployDir + "/" + path.Base(d.ArchivePath)

	if err = session.Upload(ctx, d.ArchivePath, remoteArchive); err != nil {
		return pipeline.Fail(pipeline.StageTransfer, err)
	}

	// Apply: swap the running container on the target.
	d.State = schemas.DeploymentStateApplying
	c.recordDeployment(ctx, d)

	err = remote.Apply(ctx, session, remote.ApplyPlan{
		ArchivePath:   remoteArchive,
		ImageRef:      d.Release.ImageRef(c.Config.Image.Name),
		ContainerName: target.ContainerName,
		HostPort:      target.HostPort,
		ContainerPort: target.ContainerPort,
	})
	if err != nil {
		return pipeline.Fail(pipeline.StageApply, err)
	}

	return nil
}

// resolveRelease builds the release identity from the trigger, falling back
// to the local checkout for whichever of branch and revision is missing.
func (c *Controller) resolveRelease(ctx context.Context, trigger schemas.Trigger) (r schemas.Release, err error) {
	branch, revision := trigger.Branch, trigger.Revision

	if branch == "" {
		if branch, err = c.Git.HeadBranch(ctx); err != nil {
			return
		}
	}

	if revision == "" {
		if revision, err = c.Git.HeadRevision(ctx); err != nil {
			return
		}
	}

	return schemas.NewRelease(branch, revision)
}

// recordDeployment persists the deployment record, stamping the update time.
// Records only exist for observability, so persistence failures are logged
// and swallowed rather than aborting the run.
func (c *Controller) recordDeployment(ctx context.Context, d *schemas.Deployment) {
	d.UpdatedAt = time.Now()

	if err := c.Store.SetDeployment(ctx, *d); err != nil {
		log.WithContext(ctx).
			WithFields(log.Fields{
				"deployment-id": d.ID,
				"target":        d.Target,
			}).
			WithError(err).
			Warn("writing deployment record in the store")
	}
}

// probeHealth issues a single HTTP request against the published port after a
// successful apply. The path is a collaborator convention, not a guarantee:
// a failing probe is reported as a warning and nothing else.
func (c *Controller) probeHealth(ctx context.Context, target config.Target) {
	if c.Config.Deploy.HealthCheckPath == "" {
		return
	}

	url := fmt.Sprintf("http://%s:%d%s", target.Host, target.HostPort, c.Config.Deploy.HealthCheckPath)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.Config.Deploy.HealthCheckTimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("assembling health probe request")
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.WithField("url", url).
			WithError(err).
			Warn("deployed container not answering the health probe")

		return
	}
	defer resp.Body.Close() // nolint: errcheck

	if resp.StatusCode >= 400 {
		log.WithFields(log.Fields{
			"url":    url,
			"status": resp.StatusCode,
		}).Warn("deployed container answering the health probe with an error")

		return
	}

	log.WithField("url", url).Debug("deployed container healthy")
}
