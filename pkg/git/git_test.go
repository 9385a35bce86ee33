package git

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
)

type fakeRunner struct {
	output string
	err    error
	last   executor.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd executor.Command) (executor.Result, error) {
	f.last = cmd
	if f.err != nil {
		return executor.Result{ExitCode: 128}, f.err
	}

	return executor.Result{Output: f.output}, nil
}

func TestHeadBranch(t *testing.T) {
	fr := &fakeRunner{output: "feature/auth\n"}
	r := NewResolver(fr, config.Git{Binary: "git", WorkDir: "/src/app"})

	branch, err := r.HeadBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feature/auth", branch)
	assert.Equal(t, "git", fr.last.Name)
	assert.Equal(t, []string{"rev-parse", "--abbrev-ref", "HEAD"}, fr.last.Args)
	assert.Equal(t, "/src/app", fr.last.Dir)
}

func TestHeadBranchDetached(t *testing.T) {
	fr := &fakeRunner{output: "HEAD"}
	r := NewResolver(fr, config.Git{Binary: "git"})

	_, err := r.HeadBranch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached HEAD")
}

func TestHeadRevision(t *testing.T) {
	fr := &fakeRunner{output: "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0\n"}
	r := NewResolver(fr, config.Git{Binary: "git"})

	rev, err := r.HeadRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0", rev)
}

func TestResolverError(t *testing.T) {
	fr := &fakeRunner{err: errors.New("not a git repository")}
	r := NewResolver(fr, config.Git{Binary: "git"})

	_, err := r.HeadRevision(context.Background())
	assert.Error(t, err)
}
