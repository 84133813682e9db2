// Package scheduler drives the improvement iteration loop: it pulls
// candidates off a priority queue, runs each trial through the sandbox /
// apply / validate / score pipeline, and hands the completed results to
// the selector. Every state transition is written to the audit trail,
// and a sandbox acquired for a trial is released on every exit path.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/recovery"
)

// maxRequeues bounds how often one candidate may be put back on the
// queue after resource exhaustion before it fails for good.
const maxRequeues = 1

// Outcome is the aggregate of one engine run.
type Outcome struct {
	// Results holds one entry per trial that reached a terminal status.
	Results []schemas.IterationResult
	// Selected is the selector's ranking of viable results, best first.
	Selected []schemas.IterationResult
	// CommitRefs maps candidate IDs to the trial-branch commits recorded
	// for succeeded trials, when trial commits are enabled.
	CommitRefs map[string]string
	// Skipped counts candidates left unprocessed after an early stop or
	// the iteration cap.
	Skipped int
}

// Scheduler owns the worker pool and the per-trial state machine.
type Scheduler struct {
	logger       *zap.Logger
	cfg          config.EngineConfig
	baseRevision string

	sandboxes schemas.SandboxManager
	applier   schemas.ChangeApplier
	runner    schemas.ValidationRunner
	scorer    schemas.ScoringEngine
	selector  schemas.ResultSelector
	trail     schemas.AuditTrail
	recovery  *recovery.Manager
	// store commits succeeded trials for traceability; nil disables that.
	store schemas.VersionControl
}

// New wires a Scheduler from its collaborators.
func New(
	logger *zap.Logger,
	cfg config.EngineConfig,
	baseRevision string,
	sandboxes schemas.SandboxManager,
	applier schemas.ChangeApplier,
	runner schemas.ValidationRunner,
	scorer schemas.ScoringEngine,
	selector schemas.ResultSelector,
	trail schemas.AuditTrail,
	recov *recovery.Manager,
	store schemas.VersionControl,
) *Scheduler {
	return &Scheduler{
		logger:       logger.Named("scheduler"),
		cfg:          cfg,
		baseRevision: baseRevision,
		sandboxes:    sandboxes,
		applier:      applier,
		runner:       runner,
		scorer:       scorer,
		selector:     selector,
		trail:        trail,
		recovery:     recov,
		store:        store,
	}
}

// runState is the mutable state of one Run call.
type runState struct {
	q          *queue
	iterations atomic.Int64
	stop       atomic.Bool

	mu       sync.Mutex
	results  []schemas.IterationResult
	commits  map[string]string
	requeues map[string]int
}

// Run trials the given candidates and returns the aggregate outcome.
// Candidates are processed in priority order by a pool of Concurrency
// workers, at most MaxIterations trials in total. Unless the engine is
// configured exhaustive, the pool stops starting new trials once a score
// reaches GoodEnoughThreshold. A canceled context aborts cleanly: running
// trials release their sandboxes and queued candidates are recorded as
// aborted.
func (s *Scheduler) Run(ctx context.Context, candidates []schemas.ImprovementCandidate) (Outcome, error) {
	state := &runState{
		q:        newQueue(candidates),
		commits:  make(map[string]string),
		requeues: make(map[string]int),
	}

	s.logger.Info("Run starting",
		zap.Int("candidates", len(candidates)),
		zap.Int("max_iterations", s.cfg.MaxIterations),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		g.Go(func() error {
			s.worker(gctx, state)
			return nil
		})
	}
	// Workers report failures through results, never through errors.
	_ = g.Wait()

	outcome := Outcome{
		Results:    state.results,
		CommitRefs: state.commits,
	}

	if ctx.Err() != nil {
		for {
			c, ok := state.q.pop()
			if !ok {
				break
			}
			corr := uuid.New().String()
			s.trail.Record(schemas.AuditEntry{
				Action:        schemas.ActionAborted,
				CorrelationID: corr,
				CandidateID:   c.ID,
				Detail:        "run canceled before trial started",
			})
			outcome.Results = append(outcome.Results, schemas.IterationResult{
				CandidateID:   c.ID,
				Category:      c.Category,
				CorrelationID: corr,
				Status:        schemas.TrialAborted,
				Risk:          c.Risk,
				CompletedAt:   time.Now().UTC(),
				Error:         context.Cause(ctx).Error(),
			})
		}
	} else {
		outcome.Skipped = state.q.len()
	}

	outcome.Selected = s.selector.Select(outcome.Results)
	if len(outcome.Selected) > 0 {
		best := outcome.Selected[0]
		s.trail.Record(schemas.AuditEntry{
			Action:        schemas.ActionSelected,
			CorrelationID: best.CorrelationID,
			CandidateID:   best.CandidateID,
			Detail:        fmt.Sprintf("score %.4f", best.Score),
		})
	}
	s.trail.Record(schemas.AuditEntry{
		Action: schemas.ActionRunCompleted,
		Detail: fmt.Sprintf("trials=%d selected=%d skipped=%d", len(outcome.Results), len(outcome.Selected), outcome.Skipped),
	})

	s.logger.Info("Run completed",
		zap.Int("trials", len(outcome.Results)),
		zap.Int("selected", len(outcome.Selected)),
		zap.Int("skipped", outcome.Skipped),
	)
	return outcome, ctx.Err()
}

func (s *Scheduler) worker(ctx context.Context, state *runState) {
	for {
		if ctx.Err() != nil || state.stop.Load() {
			return
		}
		if state.iterations.Add(1) > int64(s.cfg.MaxIterations) {
			state.iterations.Add(-1)
			return
		}
		c, ok := state.q.pop()
		if !ok {
			state.iterations.Add(-1)
			return
		}

		result := s.runTrial(ctx, state, c)
		if result == nil {
			// Requeued; the slot was not a real iteration.
			state.iterations.Add(-1)
			continue
		}

		state.mu.Lock()
		state.results = append(state.results, *result)
		state.mu.Unlock()

		if !s.cfg.Exhaustive &&
			result.Status == schemas.TrialSucceeded &&
			result.Score >= s.cfg.GoodEnoughThreshold {
			if state.stop.CompareAndSwap(false, true) {
				s.logger.Info("Good-enough score reached; stopping early",
					zap.String("candidate_id", result.CandidateID),
					zap.Float64("score", result.Score),
				)
			}
		}
	}
}

// runTrial runs one candidate to a terminal status, retrying transient
// failures with backoff in a fresh sandbox each time. A nil return means
// the candidate was requeued after resource exhaustion.
func (s *Scheduler) runTrial(ctx context.Context, state *runState, c schemas.ImprovementCandidate) *schemas.IterationResult {
	corr := uuid.New().String()
	s.trail.Record(schemas.AuditEntry{
		Action:        schemas.ActionStart,
		CorrelationID: corr,
		CandidateID:   c.ID,
		After:         "queued",
		Detail:        fmt.Sprintf("priority %.4f", c.Priority()),
	})

	attempt := 0
	for {
		result, err := s.attempt(ctx, state, corr, c)
		if err == nil {
			return result
		}

		if ctx.Err() != nil {
			s.trail.Record(schemas.AuditEntry{
				Action:        schemas.ActionAborted,
				CorrelationID: corr,
				CandidateID:   c.ID,
				Detail:        err.Error(),
			})
			return s.terminalResult(c, corr, schemas.TrialAborted, err)
		}

		class := s.recovery.Classify(err)
		switch {
		case class == recovery.ClassResourceExhaustion && s.requeueAllowed(state, c.ID):
			s.trail.Record(schemas.AuditEntry{
				Action:        schemas.ActionRequeued,
				CorrelationID: corr,
				CandidateID:   c.ID,
				Detail:        err.Error(),
			})
			s.logger.Warn("Candidate requeued after resource exhaustion",
				zap.String("candidate_id", c.ID),
				zap.Error(err),
			)
			state.q.push(c)
			return nil

		case s.recovery.Retryable(class, attempt):
			s.trail.Record(schemas.AuditEntry{
				Action:        schemas.ActionRetry,
				CorrelationID: corr,
				CandidateID:   c.ID,
				Detail:        fmt.Sprintf("attempt %d: %v", attempt+1, err),
			})
			if werr := s.recovery.Wait(ctx, attempt); werr != nil {
				s.trail.Record(schemas.AuditEntry{
					Action:        schemas.ActionAborted,
					CorrelationID: corr,
					CandidateID:   c.ID,
					Detail:        werr.Error(),
				})
				return s.terminalResult(c, corr, schemas.TrialAborted, werr)
			}
			attempt++
			continue

		default:
			s.trail.Record(schemas.AuditEntry{
				Action:        schemas.ActionFailed,
				CorrelationID: corr,
				CandidateID:   c.ID,
				Detail:        fmt.Sprintf("%s failure: %v", class, err),
			})
			return s.terminalResult(c, corr, schemas.TrialFailed, err)
		}
	}
}

// attempt runs a single sandbox-to-score pass. The sandbox acquired here
// is released before attempt returns, whatever the path out.
func (s *Scheduler) attempt(ctx context.Context, state *runState, corr string, c schemas.ImprovementCandidate) (*schemas.IterationResult, error) {
	handle, err := s.sandboxes.Acquire(ctx, s.baseRevision)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Teardown must survive cancellation of the trial context.
		relCtx := context.WithoutCancel(ctx)
		if rerr := s.sandboxes.Release(relCtx, handle); rerr != nil {
			s.logger.Error("Sandbox release failed",
				zap.String("sandbox_id", handle.ID),
				zap.Error(rerr),
			)
		}
		s.trail.Record(schemas.AuditEntry{
			Action:        schemas.ActionCleaned,
			CorrelationID: corr,
			CandidateID:   c.ID,
			SandboxID:     handle.ID,
		})
	}()

	s.trail.Record(schemas.AuditEntry{
		Action:        schemas.ActionSandboxAcquired,
		CorrelationID: corr,
		CandidateID:   c.ID,
		SandboxID:     handle.ID,
		Before:        "queued",
		After:         "sandbox_acquired",
	})

	applyRep, err := s.applier.Apply(ctx, handle, c.Changes)
	if err != nil {
		return nil, err
	}
	s.trail.Record(schemas.AuditEntry{
		Action:        schemas.ActionChangesApplied,
		CorrelationID: corr,
		CandidateID:   c.ID,
		SandboxID:     handle.ID,
		Before:        "sandbox_acquired",
		After:         "changes_applied",
		Detail:        fmt.Sprintf("%d paths", len(applyRep.Paths)),
	})

	report, err := s.runner.Run(ctx, handle, s.cfg.Validation.Timeout)
	if err != nil {
		return nil, err
	}
	s.trail.Record(schemas.AuditEntry{
		Action:        schemas.ActionValidated,
		CorrelationID: corr,
		CandidateID:   c.ID,
		SandboxID:     handle.ID,
		Before:        "changes_applied",
		After:         "validated",
		Detail:        fmt.Sprintf("status=%s passed=%d failed=%d", report.Status, report.Passed, report.Failed),
	})

	score := s.scorer.Score(c, report)
	s.trail.Record(schemas.AuditEntry{
		Action:        schemas.ActionScored,
		CorrelationID: corr,
		CandidateID:   c.ID,
		SandboxID:     handle.ID,
		Before:        "validated",
		After:         "scored",
		Detail:        fmt.Sprintf("score %.4f", score),
	})

	status := schemas.TrialSucceeded
	if report.Status == schemas.ValidationTimedOut {
		status = schemas.TrialTimedOut
	}

	result := &schemas.IterationResult{
		CandidateID:         c.ID,
		Category:            c.Category,
		SandboxID:           handle.ID,
		CorrelationID:       corr,
		Status:              status,
		Passed:              report.Passed,
		Failed:              report.Failed,
		NewFailures:         report.NewFailures,
		NewCriticalFailures: report.NewCriticalFailures,
		FixedFailures:       report.FixedFailures,
		Score:               score,
		Risk:                c.Risk,
		DurationMs:          report.DurationMs,
		Resources:           report.Resources,
		CompletedAt:         time.Now().UTC(),
	}

	if status == schemas.TrialSucceeded && s.cfg.CommitTrials && s.store != nil {
		s.commitTrial(ctx, state, c, handle, score)
	}
	return result, nil
}

// commitTrial pins the succeeded trial's tree to its branch so the
// change survives sandbox teardown. Failure to commit downgrades to a
// log line; the trial result stands either way.
func (s *Scheduler) commitTrial(ctx context.Context, state *runState, c schemas.ImprovementCandidate, handle schemas.SandboxHandle, score float64) {
	ws := schemas.Workspace{ID: handle.ID, Path: handle.Path, Branch: handle.Branch}
	msg := fmt.Sprintf("trial %s: %s (score %.4f)", c.ID, c.Description, score)
	hash, err := s.store.Commit(context.WithoutCancel(ctx), ws, msg)
	if err != nil {
		s.logger.Warn("Trial commit failed",
			zap.String("candidate_id", c.ID),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Trial committed",
		zap.String("candidate_id", c.ID),
		zap.String("branch", handle.Branch),
		zap.String("commit", hash),
	)
	state.mu.Lock()
	state.commits[c.ID] = hash
	state.mu.Unlock()
}

func (s *Scheduler) requeueAllowed(state *runState, candidateID string) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.requeues[candidateID] >= maxRequeues {
		return false
	}
	state.requeues[candidateID]++
	return true
}

func (s *Scheduler) terminalResult(c schemas.ImprovementCandidate, corr string, status schemas.TrialStatus, err error) *schemas.IterationResult {
	res := &schemas.IterationResult{
		CandidateID:   c.ID,
		Category:      c.Category,
		CorrelationID: corr,
		Status:        status,
		Risk:          c.Risk,
		CompletedAt:   time.Now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
