// Package executor wraps the invocation of the external native tools the
// pipeline delegates its work to (build tool, container engine, git). The
// tools themselves are never reimplemented, only invoked.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxCapturedOutput bounds how much combined output is retained per command.
// Build tools are chatty; only the tail is useful for error context.
const maxCapturedOutput = 16 * 1024

// Command describes one external tool invocation.
type Command struct {
	Name string   // Executable name or path
	Args []string // Arguments passed to the executable
	Dir  string   // Working directory, empty for the current one
	Env  []string // Additional environment variables, KEY=VALUE form
}

// String renders the command the way it would be typed in a shell,
// for logging purposes.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result carries the outcome of one external tool invocation.
type Result struct {
	ExitCode int    // Exit code of the process
	Output   string // Combined output, truncated to its tail when oversized
}

// Runner runs external commands. Stages depend on this interface so tests can
// substitute the real process execution with fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Local runs commands as child processes on the local host.
type Local struct{}

// NewLocal returns a Runner executing commands locally.
func NewLocal() *Local {
	return &Local{}
}

// Run executes the command, streaming nothing and retaining the tail of its
// combined output. A non-zero exit is returned as an error alongside the
// result so callers can surface the tool's own output.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	log.WithFields(log.Fields{
		"command": cmd.String(),
		"dir":     cmd.Dir,
	}).Debug("running command")

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) // nolint: gosec
	c.Dir = cmd.Dir

	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}

	var buf tailBuffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()

	// ProcessState is nil when the process could not be started at all.
	exitCode := -1
	if c.ProcessState != nil {
		exitCode = c.ProcessState.ExitCode()
	}

	res := Result{
		ExitCode: exitCode,
		Output:   buf.String(),
	}

	if ctx.Err() != nil {
		return res, errors.Wrapf(ctx.Err(), "running '%s'", cmd.Name)
	}

	if err != nil {
		return res, errors.Wrapf(err, "running '%s': %s", cmd.Name, res.Output)
	}

	return res, nil
}

// tailBuffer keeps at most maxCapturedOutput bytes, discarding the oldest
// half whenever the cap is exceeded.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n, err := t.buf.Write(p)

	if t.buf.Len() > maxCapturedOutput {
		b := t.buf.Bytes()
		kept := make([]byte, maxCapturedOutput/2)
		copy(kept, b[len(b)-maxCapturedOutput/2:])
		t.buf.Reset()
		t.buf.Write(kept)
	}

	return n, err
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
