package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func workspace(id string) schemas.Workspace {
	return schemas.Workspace{ID: id, Path: "/tmp/crucible-trial-" + id, Branch: "crucible/trial-" + id}
}

func TestAcquireAndRelease(t *testing.T) {
	store := &mocks.MockVersionControl{}
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-1"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-1")).Return(nil).Once()

	m := NewManager(zaptest.NewLogger(t), store, 2, 0)
	handle, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", handle.ID)
	assert.Equal(t, "HEAD", handle.BaseRevision)
	assert.Equal(t, 1, m.LiveCount())

	require.NoError(t, m.Release(context.Background(), handle))
	assert.Equal(t, 0, m.LiveCount())
	store.AssertExpectations(t)
}

func TestReleaseIsIdempotent(t *testing.T) {
	store := &mocks.MockVersionControl{}
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-1"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-1")).Return(nil).Once()

	m := NewManager(zaptest.NewLogger(t), store, 1, 0)
	handle, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)

	require.NoError(t, m.Release(context.Background(), handle))
	require.NoError(t, m.Release(context.Background(), handle))
	require.NoError(t, m.Release(context.Background(), schemas.SandboxHandle{ID: "never-seen"}))
	store.AssertNumberOfCalls(t, "Destroy", 1)
}

func TestWidthBoundsConcurrentAcquires(t *testing.T) {
	store := &mocks.MockVersionControl{}
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-1"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-1")).Return(nil).Once()

	m := NewManager(zaptest.NewLogger(t), store, 1, 0)
	handle, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)

	// The only slot is taken: a second acquire must block until timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "HEAD")
	require.ErrorIs(t, err, schemas.ErrResourceExhausted)

	// Releasing frees the slot for the next acquire.
	require.NoError(t, m.Release(context.Background(), handle))
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-2"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-2")).Return(nil).Once()

	handle2, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), handle2))
}

func TestAcquireReturnsSlotOnStoreFailure(t *testing.T) {
	store := &mocks.MockVersionControl{}
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").
		Return(schemas.Workspace{}, fmt.Errorf("%w: dirty tree", schemas.ErrSandboxCreation)).Once()

	m := NewManager(zaptest.NewLogger(t), store, 1, 0)
	_, err := m.Acquire(context.Background(), "HEAD")
	require.ErrorIs(t, err, schemas.ErrSandboxCreation)

	// The slot must have been returned: the next acquire succeeds.
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-1"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-1")).Return(nil).Once()
	handle, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), handle))
}

func TestSlotReturnedEvenWhenDestroyFails(t *testing.T) {
	store := &mocks.MockVersionControl{}
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-1"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-1")).Return(fmt.Errorf("unlink failed")).Once()

	m := NewManager(zaptest.NewLogger(t), store, 1, 0)
	handle, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)

	err = m.Release(context.Background(), handle)
	require.Error(t, err)

	// Capacity must not leak on teardown failure.
	store.On("CreateIsolatedCopy", mock.Anything, "HEAD").Return(workspace("ws-2"), nil).Once()
	store.On("Destroy", mock.Anything, workspace("ws-2")).Return(nil).Once()
	handle2, err := m.Acquire(context.Background(), "HEAD")
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background(), handle2))
}

func TestWidthFloorsAtOne(t *testing.T) {
	store := &mocks.MockVersionControl{}
	m := NewManager(zaptest.NewLogger(t), store, 0, 0)
	assert.Equal(t, 1, m.Width())
}
