package schemas

import (
	"context"
	"time"
)

// SandboxManager creates and destroys isolated working copies of the
// target repository. At most one live handle exists per concurrency slot.
type SandboxManager interface {
	// Acquire creates an isolated copy rooted at the given revision. It may
	// block waiting for a free concurrency slot. Store-level failures
	// surface as ErrSandboxCreation.
	Acquire(ctx context.Context, baseRevision string) (SandboxHandle, error)
	// Release tears the copy down unconditionally. It is idempotent and
	// safe to call after a partial failure.
	Release(ctx context.Context, handle SandboxHandle) error
	// Width reports the configured upper bound on concurrently live handles.
	Width() int
}

// ChangeApplier applies a candidate's change set into a sandbox.
// Application is all-or-nothing: the first pre-condition violation aborts
// with zero side effects.
type ChangeApplier interface {
	Apply(ctx context.Context, handle SandboxHandle, changes []ChangeDescriptor) (ApplyReport, error)
}

// ValidationRunner executes the configured validation command inside a
// sandbox. A timeout produces a report with status ValidationTimedOut
// rather than an error so the trial can still be scored and recorded.
type ValidationRunner interface {
	Run(ctx context.Context, handle SandboxHandle, timeout time.Duration) (ValidationReport, error)
}

// ScoringEngine converts a validation report plus candidate metadata into
// a single comparable score in [0,1]. The computation is pure: identical
// inputs always yield identical scores.
type ScoringEngine interface {
	Score(candidate ImprovementCandidate, report ValidationReport) float64
}

// ResultSelector ranks completed iteration results and picks the viable
// ones. An empty selection is a valid outcome, not an error.
type ResultSelector interface {
	Select(results []IterationResult) []IterationResult
}

// AuditTrail is the shared append-only transition log. Record must never
// fail the caller; persistence failures are swallowed and reported out of
// band.
type AuditTrail interface {
	Record(entry AuditEntry)
	Reconstruct(correlationID string) []AuditEntry
	CheckCompleteness(correlationID string) bool
	// Dropped reports how many entries failed to persist to a durable sink.
	Dropped() uint64
}

// VersionControl is the storage-layer contract the sandbox manager builds
// on: isolated copy, commit for traceability, guaranteed teardown.
type VersionControl interface {
	CreateIsolatedCopy(ctx context.Context, revision string) (Workspace, error)
	Commit(ctx context.Context, ws Workspace, message string) (string, error)
	// Destroy must be safe on a partially-initialized workspace and safe to
	// call more than once.
	Destroy(ctx context.Context, ws Workspace) error
}

// FeedbackSource supplies pre-aggregated feedback items. The engine does
// no further filtering.
type FeedbackSource interface {
	Collect(ctx context.Context) ([]FeedbackItem, error)
}

// CandidateSource produces improvement candidates for a feedback summary.
// The producer is external and possibly unreliable; every candidate's
// shape is validated before use.
type CandidateSource interface {
	Candidates(ctx context.Context, summary FeedbackSummary) ([]ImprovementCandidate, error)
}
