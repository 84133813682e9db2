// Package recovery classifies trial failures and owns the bounded retry
// policy. It decides retry-vs-requeue-vs-abort; the scheduler executes the
// decision. Retries never reuse a sandbox.
package recovery

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// FailureClass is the coarse classification driving the retry decision.
type FailureClass int

const (
	// ClassTransient: network or resource contention. Retry with
	// exponential backoff up to the configured attempt cap.
	ClassTransient FailureClass = iota
	// ClassResourceExhaustion: a shared limit was hit. Requeue the
	// candidate without consuming its retry budget.
	ClassResourceExhaustion
	// ClassPermanent: malformed candidate, apply conflict, validation crash
	// after its in-runner retry. The trial terminates as Failed.
	ClassPermanent
)

func (c FailureClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassResourceExhaustion:
		return "resource_exhaustion"
	default:
		return "permanent"
	}
}

// Manager applies the classification and backoff policy.
type Manager struct {
	logger *zap.Logger
	cfg    config.RetryConfig
}

// NewManager builds a Manager from the retry configuration.
func NewManager(logger *zap.Logger, cfg config.RetryConfig) *Manager {
	return &Manager{
		logger: logger.Named("recovery"),
		cfg:    cfg,
	}
}

// Classify buckets an error into its failure class. Anything not
// explicitly transient or exhaustion-related is permanent: the engine
// must never retry a candidate whose change set or validation is the
// problem.
func (m *Manager) Classify(err error) FailureClass {
	switch {
	case errors.Is(err, schemas.ErrResourceExhausted):
		return ClassResourceExhaustion
	case errors.Is(err, schemas.ErrTransientInfrastructure):
		return ClassTransient
	case errors.Is(err, schemas.ErrSandboxCreation),
		errors.Is(err, schemas.ErrInvalidChangeSet),
		errors.Is(err, schemas.ErrApplyConflict),
		errors.Is(err, schemas.ErrValidationCrashed):
		return ClassPermanent
	default:
		return ClassPermanent
	}
}

// Retryable reports whether another attempt is allowed for the class.
// attempt is zero-based: attempt 0 is the first retry decision.
func (m *Manager) Retryable(class FailureClass, attempt int) bool {
	if class != ClassTransient {
		return false
	}
	return attempt < m.cfg.MaxAttempts
}

// Backoff computes the capped exponential delay for the given attempt,
// with up to 25% jitter so concurrent workers do not retry in lockstep.
func (m *Manager) Backoff(attempt int) time.Duration {
	d := m.cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.MaxBackoff {
			d = m.cfg.MaxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	d += jitter
	if d > m.cfg.MaxBackoff {
		d = m.cfg.MaxBackoff
	}
	return d
}

// Wait sleeps for the attempt's backoff or until the context is done.
func (m *Manager) Wait(ctx context.Context, attempt int) error {
	delay := m.Backoff(attempt)
	m.logger.Debug("Backing off before retry",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
