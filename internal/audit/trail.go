// Package audit implements the append-only transition log. Recording is
// infallible from the caller's point of view: sink failures are counted
// and logged, never propagated, so audit persistence can never abort an
// otherwise-successful trial.
package audit

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// Sink is a durable destination for audit entries. Write errors are
// swallowed by the trail and surfaced only through Dropped().
type Sink interface {
	Write(ctx context.Context, entry schemas.AuditEntry) error
	Close() error
}

// Trail is the shared, concurrency-safe audit log. Sequence numbers are
// globally monotonic across workers.
type Trail struct {
	logger *zap.Logger
	sinks  []Sink

	seq     atomic.Uint64
	dropped atomic.Uint64

	mu      sync.RWMutex
	entries []schemas.AuditEntry
}

// NewTrail builds a Trail writing to zero or more durable sinks in
// addition to the in-memory log.
func NewTrail(logger *zap.Logger, sinks ...Sink) *Trail {
	return &Trail{
		logger: logger.Named("audit"),
		sinks:  sinks,
	}
}

// Record appends an entry. It stamps the sequence number and timestamp,
// and never fails the caller.
func (t *Trail) Record(entry schemas.AuditEntry) {
	entry.Seq = t.seq.Add(1)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = schemas.ActorSystem
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	for _, sink := range t.sinks {
		// Sinks get a short leash; a hung store must not stall a trial.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := sink.Write(ctx, entry)
		cancel()
		if err != nil {
			t.dropped.Add(1)
			t.logger.Warn("Audit sink write failed; entry retained in memory only",
				zap.Uint64("seq", entry.Seq),
				zap.String("action", string(entry.Action)),
				zap.Error(err),
			)
		}
	}
}

// Dropped reports how many entries failed to reach a durable sink.
func (t *Trail) Dropped() uint64 {
	return t.dropped.Load()
}

// Len reports the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reconstruct returns all entries for one correlation id, ordered by
// sequence number.
func (t *Trail) Reconstruct(correlationID string) []schemas.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []schemas.AuditEntry
	for _, e := range t.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// requiredTags are the transitions every completed iteration must record
// exactly once.
var requiredTags = []schemas.ActionTag{
	schemas.ActionStart,
	schemas.ActionSandboxAcquired,
	schemas.ActionChangesApplied,
	schemas.ActionValidated,
	schemas.ActionScored,
	schemas.ActionCleaned,
}

// CheckCompleteness verifies the trail for one iteration. A completed
// single-attempt iteration must carry every required tag exactly once.
// Iterations that terminated early (failed, aborted, or requeued) are
// instead checked for acquire/release pairing: a sandbox that was
// acquired must have been cleaned. A retried iteration acquires and
// cleans one sandbox per attempt, so it is held to the pairing rule
// plus exactly one start/validated/scored for the attempt that finished.
func (t *Trail) CheckCompleteness(correlationID string) bool {
	entries := t.Reconstruct(correlationID)
	if len(entries) == 0 {
		return false
	}

	counts := make(map[schemas.ActionTag]int, len(entries))
	for _, e := range entries {
		counts[e.Action]++
	}

	early := counts[schemas.ActionAborted] > 0 ||
		counts[schemas.ActionFailed] > 0 ||
		counts[schemas.ActionRequeued] > 0
	if early {
		return counts[schemas.ActionSandboxAcquired] == counts[schemas.ActionCleaned]
	}

	if counts[schemas.ActionRetry] > 0 {
		return counts[schemas.ActionSandboxAcquired] == counts[schemas.ActionCleaned] &&
			counts[schemas.ActionStart] == 1 &&
			counts[schemas.ActionValidated] == 1 &&
			counts[schemas.ActionScored] == 1
	}

	for _, tag := range requiredTags {
		if counts[tag] != 1 {
			return false
		}
	}
	return true
}

// Close shuts down all durable sinks.
func (t *Trail) Close() error {
	var firstErr error
	for _, sink := range t.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
