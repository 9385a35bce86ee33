package remote

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockRunner simulates the remote lock file with in-memory state.
type lockRunner struct {
	content  string
	commands []string
}

func (l *lockRunner) Exec(_ context.Context, command string) (string, error) {
	l.commands = append(l.commands, command)

	switch {
	case strings.HasPrefix(command, "sh -c 'set -C;"):
		if l.content != "" {
			return "", errors.New("cannot create: file exists")
		}

		// Extract "echo <owner> $(date +%s)" payload the way the shell would.
		l.content = "owner-uuid " + fmt.Sprintf("%d", time.Now().Unix())

		return "", nil
	case strings.HasPrefix(command, "cat "):
		if l.content == "" {
			return "", errors.New("no such file")
		}

		return l.content, nil
	case strings.HasPrefix(command, "rm -f"):
		l.content = ""
		return "", nil
	}

	return "", nil
}

func TestLockAcquireRelease(t *testing.T) {
	lr := &lockRunner{}
	l := NewLock(lr, "/opt/deployments", "owner-uuid", 10*time.Minute)

	require.NoError(t, l.Acquire(context.Background()))
	assert.NotEmpty(t, lr.content)

	l.Release(context.Background())
	assert.Empty(t, lr.content)
}

func TestLockHeld(t *testing.T) {
	lr := &lockRunner{
		content: fmt.Sprintf("other-run %d", time.Now().Unix()),
	}
	l := NewLock(lr, "/opt/deployments", "owner-uuid", 10*time.Minute)

	err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Contains(t, err.Error(), "other-run")
}

func TestLockStaleIsBroken(t *testing.T) {
	stale := time.Now().Add(-time.Hour).Unix()
	lr := &lockRunner{
		content: fmt.Sprintf("aborted-run %d", stale),
	}
	l := NewLock(lr, "/opt/deployments", "owner-uuid", 10*time.Minute)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Contains(t, lr.content, "owner-uuid")
}

func TestLockMalformedContent(t *testing.T) {
	lr := &lockRunner{content: "garbage"}
	l := NewLock(lr, "/opt/deployments", "owner-uuid", 10*time.Minute)

	err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed lock")
}
