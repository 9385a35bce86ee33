// Package builder runs the artifact build stage by invoking the configured
// build tool against the project descriptor.
package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
)

// Maven invokes the maven build tool to compile the source tree and produce
// one executable artifact.
type Maven struct {
	runner executor.Runner
	cfg    config.Build
}

// New returns a Maven builder using the given runner and build configuration.
func New(runner executor.Runner, cfg config.Build) *Maven {
	return &Maven{
		runner: runner,
		cfg:    cfg,
	}
}

// Build runs the build tool and resolves the single artifact it produced.
// Any non-zero exit of the build tool is fatal, there is no retry. The build
// also fails when the artifact glob matches zero or more than one file, as
// the packaging stage needs exactly one executable to ship.
func (m *Maven) Build(ctx context.Context) (artifact string, err error) {
	args := []string{"-B", "-f", m.cfg.ProjectFile, "package"}
	if m.cfg.SkipTests {
		args = append(args, "-DskipTests")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()

	if _, err = m.runner.Run(ctx, executor.Command{
		Name: m.cfg.Binary,
		Args: args,
	}); err != nil {
		return "", errors.Wrap(err, "building artifact")
	}

	log.WithFields(log.Fields{
		"duration": time.Since(start),
	}).Info("build completed")

	return m.resolveArtifact()
}

// resolveArtifact locates the produced artifact through the configured glob.
func (m *Maven) resolveArtifact() (string, error) {
	matches, err := filepath.Glob(m.cfg.ArtifactGlob)
	if err != nil {
		return "", errors.Wrap(err, "resolving artifact")
	}

	switch len(matches) {
	case 1:
		log.WithField("artifact", matches[0]).Debug("artifact resolved")
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no artifact matching '%s' was produced", m.cfg.ArtifactGlob)
	default:
		return "", fmt.Errorf("expected exactly one artifact matching '%s', found %d", m.cfg.ArtifactGlob, len(matches))
	}
}
