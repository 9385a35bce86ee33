package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ApplyPlan describes one remote container swap: which archive to load,
// which image to start, and which container slot to replace.
type ApplyPlan struct {
	ArchivePath   string // Remote path of the uploaded image archive
	ImageRef      string // Image reference to start the new container from
	ContainerName string // Fixed name of the container slot
	HostPort      int    // Host port published by the container
	ContainerPort int    // Container port bound to the host port
}

// Apply performs the remote swap sequence on the target: deserialize the
// archive into the local image store, remove the existing named container if
// present, then start a new container from the loaded image.
//
// The swap is not atomic: between the removal and the start there is a window
// during which the service is unavailable. If starting the new container
// fails, the slot is left absent; no rollback to the previous image is
// attempted.
func Apply(ctx context.Context, r CommandRunner, plan ApplyPlan) error {
	if _, err := r.Exec(ctx, fmt.Sprintf("docker load -i %s", plan.ArchivePath)); err != nil {
		return errors.Wrap(err, "loading image archive")
	}

	if err := removeContainer(ctx, r, plan.ContainerName); err != nil {
		return errors.Wrap(err, "removing container")
	}

	runCmd := fmt.Sprintf(
		"docker run -d --restart unless-stopped --name %s -p %d:%d %s",
		plan.ContainerName,
		plan.HostPort,
		plan.ContainerPort,
		plan.ImageRef,
	)

	if _, err := r.Exec(ctx, runCmd); err != nil {
		return errors.Wrap(err, "starting container")
	}

	log.WithFields(log.Fields{
		"container": plan.ContainerName,
		"image":     plan.ImageRef,
		"port":      plan.HostPort,
	}).Info("container swapped")

	return nil
}

// removeContainer stops and removes the named container. The absence of such
// a container is not an error: a first deployment finds the slot empty.
func removeContainer(ctx context.Context, r CommandRunner, name string) error {
	out, err := r.Exec(ctx, fmt.Sprintf("docker rm -f %s", name))
	if err != nil {
		if strings.Contains(out, "No such container") ||
			strings.Contains(err.Error(), "No such container") {
			log.WithField("container", name).Debug("no previous container to remove")
			return nil
		}

		return err
	}

	return nil
}
