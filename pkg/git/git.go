// Package git resolves the branch name and revision identifier of the local
// checkout by invoking the git binary, for manual deployments where neither
// is provided explicitly.
package git

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
)

// Resolver looks up revision information from a working tree.
type Resolver struct {
	runner executor.Runner
	cfg    config.Git
}

// NewResolver returns a Resolver using the given runner and git configuration.
func NewResolver(runner executor.Runner, cfg config.Git) *Resolver {
	return &Resolver{
		runner: runner,
		cfg:    cfg,
	}
}

// HeadBranch returns the branch name the working tree currently points at.
// A detached HEAD resolves to "HEAD" which is rejected, as a release cannot
// be attributed to a branch in that state.
func (r *Resolver) HeadBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}

	if out == "HEAD" {
		return "", errors.New("detached HEAD, provide a branch name explicitly")
	}

	return out, nil
}

// HeadRevision returns the full revision identifier of the working tree HEAD.
func (r *Resolver) HeadRevision(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "HEAD")
}

func (r *Resolver) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, executor.Command{
		Name: r.cfg.Binary,
		Args: args,
		Dir:  r.cfg.WorkDir,
	})
	if err != nil {
		return "", errors.Wrap(err, "resolving revision information")
	}

	return strings.TrimSpace(res.Output), nil
}
