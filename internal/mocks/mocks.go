// Package mocks provides testify mocks for the engine's component
// interfaces. Each mock replaces one collaborator so the scheduler and
// cmd layers can be tested without a real repository or validation run.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// -- Sandbox Manager Mock --

// MockSandboxManager mocks schemas.SandboxManager.
type MockSandboxManager struct {
	mock.Mock
}

func (m *MockSandboxManager) Acquire(ctx context.Context, baseRevision string) (schemas.SandboxHandle, error) {
	args := m.Called(ctx, baseRevision)
	return args.Get(0).(schemas.SandboxHandle), args.Error(1)
}

func (m *MockSandboxManager) Release(ctx context.Context, handle schemas.SandboxHandle) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

func (m *MockSandboxManager) Width() int {
	args := m.Called()
	return args.Int(0)
}

// -- Change Applier Mock --

// MockChangeApplier mocks schemas.ChangeApplier.
type MockChangeApplier struct {
	mock.Mock
}

func (m *MockChangeApplier) Apply(ctx context.Context, handle schemas.SandboxHandle, changes []schemas.ChangeDescriptor) (schemas.ApplyReport, error) {
	args := m.Called(ctx, handle, changes)
	return args.Get(0).(schemas.ApplyReport), args.Error(1)
}

// -- Validation Runner Mock --

// MockValidationRunner mocks schemas.ValidationRunner.
type MockValidationRunner struct {
	mock.Mock
}

func (m *MockValidationRunner) Run(ctx context.Context, handle schemas.SandboxHandle, timeout time.Duration) (schemas.ValidationReport, error) {
	args := m.Called(ctx, handle, timeout)
	return args.Get(0).(schemas.ValidationReport), args.Error(1)
}

// -- Scoring Engine Mock --

// MockScoringEngine mocks schemas.ScoringEngine.
type MockScoringEngine struct {
	mock.Mock
}

func (m *MockScoringEngine) Score(candidate schemas.ImprovementCandidate, report schemas.ValidationReport) float64 {
	args := m.Called(candidate, report)
	return args.Get(0).(float64)
}

// -- Result Selector Mock --

// MockResultSelector mocks schemas.ResultSelector.
type MockResultSelector struct {
	mock.Mock
}

func (m *MockResultSelector) Select(results []schemas.IterationResult) []schemas.IterationResult {
	args := m.Called(results)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]schemas.IterationResult)
}

// -- Version Control Mock --

// MockVersionControl mocks schemas.VersionControl.
type MockVersionControl struct {
	mock.Mock
}

func (m *MockVersionControl) CreateIsolatedCopy(ctx context.Context, revision string) (schemas.Workspace, error) {
	args := m.Called(ctx, revision)
	return args.Get(0).(schemas.Workspace), args.Error(1)
}

func (m *MockVersionControl) Commit(ctx context.Context, ws schemas.Workspace, message string) (string, error) {
	args := m.Called(ctx, ws, message)
	return args.String(0), args.Error(1)
}

func (m *MockVersionControl) Destroy(ctx context.Context, ws schemas.Workspace) error {
	args := m.Called(ctx, ws)
	return args.Error(0)
}
