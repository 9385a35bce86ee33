// Package image runs the container image stage: packaging the built artifact
// into an image with the container engine, verifying its runtime identity,
// and serializing it into a single-file archive for transfer.
package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

// Docker packages releases into container images through the docker binary.
type Docker struct {
	runner executor.Runner
	cfg    config.Image
}

// New returns a Docker image manager using the given runner and configuration.
func New(runner executor.Runner, cfg config.Image) *Docker {
	return &Docker{
		runner: runner,
		cfg:    cfg,
	}
}

// Build packages the release into a container image tagged with the release
// tag. The packaging descriptor is expected to be a two-phase recipe whose
// final layer contains only the artifact and its execution dependencies; a
// missing or malformed descriptor is fatal.
func (d *Docker) Build(ctx context.Context, release schemas.Release) (ref string, err error) {
	if _, err = os.Stat(d.cfg.Dockerfile); err != nil {
		return "", errors.Wrapf(err, "reading packaging descriptor '%s'", d.cfg.Dockerfile)
	}

	ref = release.ImageRef(d.cfg.Name)

	if _, err = d.runner.Run(ctx, executor.Command{
		Name: d.cfg.Binary,
		Args: []string{"build", "-f", d.cfg.Dockerfile, "-t", ref, "."},
	}); err != nil {
		return "", errors.Wrap(err, "building image")
	}

	log.WithField("image", ref).Info("image built")

	return ref, nil
}

// VerifyRuntimeUser checks that the image defaults to running as a dedicated
// non-privileged identity. Images defaulting to root are refused unless
// explicitly allowed by configuration.
func (d *Docker) VerifyRuntimeUser(ctx context.Context, ref string) error {
	res, err := d.runner.Run(ctx, executor.Command{
		Name: d.cfg.Binary,
		Args: []string{"inspect", "--format", "{{.Config.User}}", ref},
	})
	if err != nil {
		return errors.Wrap(err, "inspecting image runtime user")
	}

	user := strings.TrimSpace(res.Output)
	if user == "" || user == "root" || user == "0" {
		if d.cfg.AllowRootUser {
			log.WithField("image", ref).Warn("image runs as root, allowed by configuration")
			return nil
		}

		return fmt.Errorf("image '%s' defaults to a privileged user, expected a dedicated non-privileged identity", ref)
	}

	return nil
}

// Save serializes the image into a single-file archive under the configured
// archive directory and returns the archive path.
func (d *Docker) Save(ctx context.Context, ref string, release schemas.Release) (archivePath string, err error) {
	if err = os.MkdirAll(d.cfg.ArchiveDir, 0o750); err != nil {
		return "", errors.Wrap(err, "creating archive directory")
	}

	archivePath = filepath.Join(d.cfg.ArchiveDir, release.ArchiveName())

	if _, err = d.runner.Run(ctx, executor.Command{
		Name: d.cfg.Binary,
		Args: []string{"save", "-o", archivePath, ref},
	}); err != nil {
		return "", errors.Wrap(err, "serializing image")
	}

	log.WithFields(log.Fields{
		"image":   ref,
		"archive": archivePath,
	}).Info("image serialized")

	return archivePath, nil
}

// CountArchives returns the number of image archives currently on disk.
func (d *Docker) CountArchives() (int64, error) {
	matches, err := filepath.Glob(filepath.Join(d.cfg.ArchiveDir, "*.tar"))
	if err != nil {
		return 0, errors.Wrap(err, "listing archives")
	}

	return int64(len(matches)), nil
}

// PruneArchives removes image archives older than the configured retention
// window and returns the paths it removed. Archives only exist to be
// transferred once; anything older than the window is garbage.
func (d *Docker) PruneArchives(now time.Time) (removed []string, err error) {
	matches, err := filepath.Glob(filepath.Join(d.cfg.ArchiveDir, "*.tar"))
	if err != nil {
		return nil, errors.Wrap(err, "listing archives")
	}

	cutoff := now.Add(-time.Duration(d.cfg.RetentionHours) * time.Hour)

	for _, m := range matches {
		fi, statErr := os.Stat(m)
		if statErr != nil {
			continue
		}

		if fi.ModTime().After(cutoff) {
			continue
		}

		if rmErr := os.Remove(m); rmErr != nil {
			log.WithError(rmErr).
				WithField("archive", m).
				Warn("removing expired archive")

			continue
		}

		removed = append(removed, m)
	}

	return removed, nil
}
