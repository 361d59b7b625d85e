package explorer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/mocks"
)

func TestEngine_CheckpointFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	driver := openDriver(t, mocks.TwoByThreeSite(), 0)
	cfg := mocks.FixtureConfig()
	cfg.CheckpointEvery = 3

	cp := new(mocks.MockCheckpointer)
	cp.On("Checkpoint", mock.Anything, mock.AnythingOfType("explorer.State")).Return(errors.New("disk full"))

	e, err := explorer.New(cfg, driver, driver, nil,
		explorer.WithLogger(zap.New(core)),
		explorer.WithCheckpointer(cp),
	)
	require.NoError(t, err)

	reason, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, explorer.ReasonComplete, reason)
	assert.Len(t, driver.Submissions(), 6)
	cp.AssertNumberOfCalls(t, "Checkpoint", 7)
	assert.Equal(t, 7, logs.FilterMessage("Checkpoint failed, continuing.").Len())
}

func TestEngine_ProbeFailureIsFatal(t *testing.T) {
	probeErr := errors.New("target closed")

	driver := new(mocks.MockPageDriver)
	driver.On("CurrentPageID", mock.Anything).Return(explorer.PageID("start"), nil).Once()
	driver.On("ProbeShape", mock.Anything).Return(candidate.Shape{}, probeErr).Once()

	counter := new(mocks.MockArtifactCounter)
	counter.On("ArtifactsCaptured").Return(0)

	e, err := explorer.New(mocks.FixtureConfig(), driver, counter, nil)
	require.NoError(t, err)

	reason, err := e.Run(context.Background())
	assert.Equal(t, explorer.ReasonFailed, reason)
	assert.ErrorIs(t, err, explorer.ErrDriverFailure)
	assert.ErrorIs(t, err, probeErr)
	assert.True(t, explorer.IsFatal(err))
	assert.Equal(t, 0, e.Steps())
	driver.AssertExpectations(t)
	driver.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestEngine_ScriptedSinglePageRun(t *testing.T) {
	driver := new(mocks.MockPageDriver)
	driver.On("CurrentPageID", mock.Anything).Return(explorer.PageID("start"), nil)
	driver.On("ProbeShape", mock.Anything).Return(candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2}, nil).Once()
	driver.On("Apply", mock.Anything, candidate.Options(0)).Return(nil).Once()
	driver.On("Apply", mock.Anything, candidate.Options(1)).Return(nil).Once()

	counter := new(mocks.MockArtifactCounter)
	counter.On("ArtifactsCaptured").Return(0)

	// The root is also the capture page, so nothing navigates.
	cfg := explorer.Config{Root: "start", CapturePages: []explorer.PageID{"start"}}
	e, err := explorer.New(cfg, driver, counter, nil)
	require.NoError(t, err)

	reason, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, explorer.ReasonComplete, reason)
	assert.Equal(t, 3, e.Steps())
	driver.AssertExpectations(t)
	driver.AssertNotCalled(t, "NavigateForward", mock.Anything)
	driver.AssertNotCalled(t, "NavigateBack", mock.Anything)
}
