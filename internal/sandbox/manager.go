// Package sandbox manages the lifecycle of isolated working copies. The
// manager owns the concurrency-slot semaphore: acquisition blocks until a
// slot frees up, and a slot is returned exactly once no matter how many
// times a handle is released.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// Manager creates and destroys sandboxes on top of a VersionControl
// store, bounding the number of concurrently live handles.
type Manager struct {
	logger *zap.Logger
	store  schemas.VersionControl
	width  int
	slots  *semaphore.Weighted
	// limiter throttles isolated-copy creation; a wide pool of workers all
	// cloning at once can starve the shared store.
	limiter *rate.Limiter

	mu   sync.Mutex
	live map[string]*liveSandbox
}

type liveSandbox struct {
	ws      schemas.Workspace
	release sync.Once
}

var _ schemas.SandboxManager = (*Manager)(nil)

// NewManager builds a Manager with the given concurrency width. A
// clonesPerSec of zero disables rate limiting.
func NewManager(logger *zap.Logger, store schemas.VersionControl, width int, clonesPerSec float64) *Manager {
	if width < 1 {
		width = 1
	}
	limit := rate.Inf
	if clonesPerSec > 0 {
		limit = rate.Limit(clonesPerSec)
	}
	return &Manager{
		logger:  logger.Named("sandbox"),
		store:   store,
		width:   width,
		slots:   semaphore.NewWeighted(int64(width)),
		limiter: rate.NewLimiter(limit, 1),
		live:    make(map[string]*liveSandbox),
	}
}

// Width reports the configured upper bound on live handles.
func (m *Manager) Width() int { return m.width }

// Acquire blocks for a free concurrency slot, then creates an isolated
// copy rooted at baseRevision. On any failure the slot is returned before
// the error surfaces, so a failed acquire can never leak capacity.
func (m *Manager) Acquire(ctx context.Context, baseRevision string) (schemas.SandboxHandle, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return schemas.SandboxHandle{}, fmt.Errorf("%w: waiting for sandbox slot: %v", schemas.ErrResourceExhausted, err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		m.slots.Release(1)
		return schemas.SandboxHandle{}, fmt.Errorf("%w: waiting for clone rate limiter: %v", schemas.ErrTransientInfrastructure, err)
	}

	ws, err := m.store.CreateIsolatedCopy(ctx, baseRevision)
	if err != nil {
		m.slots.Release(1)
		return schemas.SandboxHandle{}, err
	}

	handle := schemas.SandboxHandle{
		ID:           ws.ID,
		Path:         ws.Path,
		Branch:       ws.Branch,
		BaseRevision: baseRevision,
		AcquiredAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.live[handle.ID] = &liveSandbox{ws: ws}
	m.mu.Unlock()

	m.logger.Debug("Sandbox acquired",
		zap.String("sandbox_id", handle.ID),
		zap.String("base_revision", baseRevision),
	)
	return handle, nil
}

// Release tears the sandbox down and returns its slot. It is idempotent:
// repeated calls for the same handle, or calls for an unknown handle, are
// no-ops. The slot is returned even if the store-level destroy fails, so
// the pool cannot deadlock on teardown errors.
func (m *Manager) Release(ctx context.Context, handle schemas.SandboxHandle) error {
	m.mu.Lock()
	entry, ok := m.live[handle.ID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var destroyErr error
	entry.release.Do(func() {
		destroyErr = m.store.Destroy(ctx, entry.ws)
		m.slots.Release(1)

		m.mu.Lock()
		delete(m.live, handle.ID)
		m.mu.Unlock()

		if destroyErr != nil {
			m.logger.Error("Sandbox destroy failed; slot returned anyway",
				zap.String("sandbox_id", handle.ID),
				zap.Error(destroyErr),
			)
		} else {
			m.logger.Debug("Sandbox released", zap.String("sandbox_id", handle.ID))
		}
	})
	return destroyErr
}

// LiveCount reports the number of currently live handles, for tests and
// shutdown assertions.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
