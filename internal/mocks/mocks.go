// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/capture"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// -- Page Driver Mock --

// MockPageDriver mocks explorer.PageDriver for tests that script each call.
type MockPageDriver struct {
	mock.Mock
}

func (m *MockPageDriver) Open(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPageDriver) CurrentPageID(ctx context.Context) (explorer.PageID, error) {
	args := m.Called(ctx)
	return args.Get(0).(explorer.PageID), args.Error(1)
}

func (m *MockPageDriver) ProbeShape(ctx context.Context) (candidate.Shape, error) {
	args := m.Called(ctx)
	return args.Get(0).(candidate.Shape), args.Error(1)
}

func (m *MockPageDriver) Apply(ctx context.Context, c candidate.Candidate) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockPageDriver) NavigateForward(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockPageDriver) NavigateBack(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// -- Artifact Counter Mock --

// MockArtifactCounter mocks explorer.ArtifactCounter.
type MockArtifactCounter struct {
	mock.Mock
}

func (m *MockArtifactCounter) ArtifactsCaptured() int {
	return m.Called().Int(0)
}

// -- Checkpointer Mock --

// MockCheckpointer mocks explorer.Checkpointer.
type MockCheckpointer struct {
	mock.Mock
}

func (m *MockCheckpointer) Checkpoint(ctx context.Context, state explorer.State) error {
	return m.Called(ctx, state).Error(0)
}

// -- Sink Mock --

// MockSink mocks capture.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Write(ctx context.Context, p capture.Payload) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}
