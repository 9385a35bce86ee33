package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner programs per-command responses keyed by command prefix and
// records every executed command in order.
type fakeRunner struct {
	responses map[string]response
	commands  []string
}

type response struct {
	output string
	err    error
}

func (f *fakeRunner) Exec(_ context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)

	for prefix, r := range f.responses {
		if strings.HasPrefix(command, prefix) {
			return r.output, r.err
		}
	}

	return "", nil
}

func plan() ApplyPlan {
	return ApplyPlan{
		ArchivePath:   "/opt/deployments/main-a1b2c3d4.tar",
		ImageRef:      "registry.example.com/app:main-a1b2c3d4",
		ContainerName: "app",
		HostPort:      80,
		ContainerPort: 8080,
	}
}

func TestApply(t *testing.T) {
	fr := &fakeRunner{}

	require.NoError(t, Apply(context.Background(), fr, plan()))

	require.Len(t, fr.commands, 3)
	assert.Equal(t, "docker load -i /opt/deployments/main-a1b2c3d4.tar", fr.commands[0])
	assert.Equal(t, "docker rm -f app", fr.commands[1])
	assert.Equal(t,
		"docker run -d --restart unless-stopped --name app -p 80:8080 registry.example.com/app:main-a1b2c3d4",
		fr.commands[2])
}

func TestApplyAbsentContainerIsNotAnError(t *testing.T) {
	fr := &fakeRunner{
		responses: map[string]response{
			"docker rm": {
				output: "Error response from daemon: No such container: app",
				err:    errors.New("remote command failed"),
			},
		},
	}

	require.NoError(t, Apply(context.Background(), fr, plan()))
	assert.Len(t, fr.commands, 3)
}

func TestApplyLoadFailureStopsSequence(t *testing.T) {
	fr := &fakeRunner{
		responses: map[string]response{
			"docker load": {err: errors.New("invalid tar header")},
		},
	}

	err := Apply(context.Background(), fr, plan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading image archive")

	// Neither removal nor start happened; the previous container is untouched.
	assert.Len(t, fr.commands, 1)
}

func TestApplyRemoveFailurePropagates(t *testing.T) {
	fr := &fakeRunner{
		responses: map[string]response{
			"docker rm": {err: errors.New("permission denied")},
		},
	}

	err := Apply(context.Background(), fr, plan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removing container")
	assert.Len(t, fr.commands, 2)
}

func TestApplyStartFailureLeavesSlotAbsent(t *testing.T) {
	fr := &fakeRunner{
		responses: map[string]response{
			"docker run": {err: errors.New("port is already allocated")},
		},
	}

	err := Apply(context.Background(), fr, plan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting container")

	// All three sub-steps ran; no rollback command was issued after the failure.
	assert.Len(t, fr.commands, 3)
}
