package image

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-sh/deckhand/pkg/config"
	"github.com/deckhand-sh/deckhand/pkg/executor"
	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

type fakeRunner struct {
	output   string
	err      error
	commands []executor.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd executor.Command) (executor.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return executor.Result{ExitCode: 1}, f.err
	}

	return executor.Result{Output: f.output}, nil
}

func release(t *testing.T) schemas.Release {
	t.Helper()

	r, err := schemas.NewRelease("main", "a1b2c3d4")
	require.NoError(t, err)

	return r
}

func imageConfig(t *testing.T) config.Image {
	t.Helper()

	dir := t.TempDir()
	dockerfile := filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(dockerfile, []byte("FROM eclipse-temurin:21-jre"), 0o600))

	return config.Image{
		Binary:         "docker",
		Dockerfile:     dockerfile,
		Name:           "registry.example.com/app",
		ArchiveDir:     filepath.Join(dir, "dist"),
		RetentionHours: 24,
	}
}

func TestBuild(t *testing.T) {
	fr := &fakeRunner{}
	cfg := imageConfig(t)

	ref, err := New(fr, cfg).Build(context.Background(), release(t))
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/app:main-a1b2c3d4", ref)

	require.Len(t, fr.commands, 1)
	assert.Equal(t, []string{"build", "-f", cfg.Dockerfile, "-t", ref, "."}, fr.commands[0].Args)
}

func TestBuildMissingDescriptor(t *testing.T) {
	cfg := imageConfig(t)
	cfg.Dockerfile = filepath.Join(t.TempDir(), "absent")

	fr := &fakeRunner{}
	_, err := New(fr, cfg).Build(context.Background(), release(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packaging descriptor")

	// The container engine must not be invoked with a missing descriptor
	assert.Empty(t, fr.commands)
}

func TestBuildEngineFailure(t *testing.T) {
	fr := &fakeRunner{err: errors.New("syntax error in dockerfile")}

	_, err := New(fr, imageConfig(t)).Build(context.Background(), release(t))
	assert.Error(t, err)
}

func TestVerifyRuntimeUser(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		allowRoot bool
		wantErr   bool
	}{
		{"dedicated user", "app\n", false, false},
		{"numeric uid", "10001", false, false},
		{"empty defaults to root", "", false, true},
		{"explicit root", "root", false, true},
		{"uid zero", "0", false, true},
		{"root allowed by config", "root", true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := imageConfig(t)
			cfg.AllowRootUser = tc.allowRoot

			err := New(&fakeRunner{output: tc.user}, cfg).
				VerifyRuntimeUser(context.Background(), "registry.example.com/app:main-a1b2c3d4")

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	fr := &fakeRunner{}
	cfg := imageConfig(t)

	archive, err := New(fr, cfg).Save(context.Background(), "registry.example.com/app:main-a1b2c3d4", release(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ArchiveDir, "main-a1b2c3d4.tar"), archive)

	// The archive directory is created before saving
	_, err = os.Stat(cfg.ArchiveDir)
	assert.NoError(t, err)

	require.Len(t, fr.commands, 1)
	assert.Equal(t, []string{"save", "-o", archive, "registry.example.com/app:main-a1b2c3d4"}, fr.commands[0].Args)
}

func TestPruneArchives(t *testing.T) {
	cfg := imageConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ArchiveDir, 0o750))

	expired := filepath.Join(cfg.ArchiveDir, "main-old00000.tar")
	fresh := filepath.Join(cfg.ArchiveDir, "main-new00000.tar")
	require.NoError(t, os.WriteFile(expired, []byte("tar"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("tar"), 0o600))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(expired, old, old))

	removed, err := New(&fakeRunner{}, cfg).PruneArchives(time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{expired}, removed)

	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	_, err = os.Stat(expired)
	assert.True(t, os.IsNotExist(err))
}
