package pipeline

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFail(t *testing.T) {
	assert.Nil(t, Fail(StageBuild, nil))

	err := Fail(StageBuild, errors.New("mvn exited with code 1"))
	assert.EqualError(t, err, "build failure: mvn exited with code 1")
	assert.Equal(t, StageBuild, FailedStage(err))
}

func TestFailedStageWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := errors.Wrap(Fail(StageTransfer, inner), "deploying to production")

	assert.Equal(t, StageTransfer, FailedStage(err))
	assert.True(t, IsTransferFailure(err))
	assert.False(t, IsBuildFailure(err))
	assert.ErrorIs(t, err, inner)
}

func TestFailedStageUnclassified(t *testing.T) {
	assert.Equal(t, Stage(""), FailedStage(errors.New("plain error")))
	assert.Equal(t, Stage(""), FailedStage(nil))
}

func TestClassificationHelpers(t *testing.T) {
	assert.True(t, IsBuildFailure(Fail(StageBuild, errors.New("x"))))
	assert.True(t, IsPackagingFailure(Fail(StagePackage, errors.New("x"))))
	assert.True(t, IsTransferFailure(Fail(StageTransfer, errors.New("x"))))
	assert.True(t, IsRemoteApplyFailure(Fail(StageApply, errors.New("x"))))
}
