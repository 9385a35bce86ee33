package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRun(t *testing.T) {
	r := NewLocal()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", res.Output)
}

func TestLocalRunNonZeroExit(t *testing.T) {
	r := NewLocal()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo boom; exit 3"},
	})

	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "boom")
	assert.Contains(t, err.Error(), "boom")
}

func TestLocalRunUnknownBinary(t *testing.T) {
	r := NewLocal()

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-binary"})
	assert.Error(t, err)
}

func TestLocalRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewLocal()

	_, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 10"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTailBufferTruncation(t *testing.T) {
	var buf tailBuffer

	chunk := strings.Repeat("x", 1024)
	for i := 0; i < 64; i++ {
		_, err := buf.Write([]byte(chunk))
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, len(buf.String()), maxCapturedOutput)
	assert.NotEmpty(t, buf.String())
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "docker", Args: []string{"build", "-t", "app:main-a1b2c3d4", "."}}
	assert.Equal(t, "docker build -t app:main-a1b2c3d4 .", c.String())
}
