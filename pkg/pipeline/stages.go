// Package pipeline defines the stage taxonomy of a deployment run and the
// error type classifying which stage a run failed at. Every stage failure is
// terminal: the run stops and nothing is retried internally.
package pipeline

import (
	"errors"
	"fmt"
)

// Stage identifies one step of the deployment sequence.
type Stage string

const (
	// StageTag derives the release tag from branch and revision.
	StageTag Stage = "tag"

	// StageBuild produces the executable artifact with the build tool.
	StageBuild Stage = "build"

	// StagePackage builds, verifies and serializes the container image.
	StagePackage Stage = "package"

	// StageTransfer uploads the image archive to the remote host.
	StageTransfer Stage = "transfer"

	// StageApply swaps the running container on the remote host.
	StageApply Stage = "apply"
)

// StageError wraps a stage failure with the stage it occurred at. The
// wrapped error is preserved for errors.Is / errors.As inspection.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying stage error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a failure of the given stage. A nil err returns nil.
func Fail(s Stage, err error) error {
	if err == nil {
		return nil
	}

	return &StageError{Stage: s, Err: err}
}

// FailedStage returns the stage an error failed at, or an empty stage when
// the error does not carry stage information.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}

	return ""
}

// IsBuildFailure reports whether err is a build stage failure.
func IsBuildFailure(err error) bool { return FailedStage(err) == StageBuild }

// IsPackagingFailure reports whether err is an image stage failure.
func IsPackagingFailure(err error) bool { return FailedStage(err) == StagePackage }

// IsTransferFailure reports whether err is a transfer stage failure.
func IsTransferFailure(err error) bool { return FailedStage(err) == StageTransfer }

// IsRemoteApplyFailure reports whether err is a remote apply stage failure.
func IsRemoteApplyFailure(err error) bool { return FailedStage(err) == StageApply }
