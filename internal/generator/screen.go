// Package generator guards the boundary with the external candidate
// producer. Candidates arrive from an untrusted process, so every one is
// shape-checked and screened against business rules before it can reach
// the queue. A rejected candidate is recorded and skipped, never fatal.
package generator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// Rejection pairs a discarded candidate with the reason it was dropped.
type Rejection struct {
	Candidate schemas.ImprovementCandidate
	Reason    string
}

// Screener validates candidate shape and applies the screening policy.
type Screener struct {
	logger *zap.Logger
	cfg    config.ScreeningConfig
}

// NewScreener builds a Screener from the screening policy.
func NewScreener(logger *zap.Logger, cfg config.ScreeningConfig) *Screener {
	return &Screener{logger: logger.Named("screener"), cfg: cfg}
}

// Screen partitions candidates into accepted and rejected. Order among
// accepted candidates is preserved; the queue re-sorts by priority anyway.
func (s *Screener) Screen(candidates []schemas.ImprovementCandidate) ([]schemas.ImprovementCandidate, []Rejection) {
	accepted := make([]schemas.ImprovementCandidate, 0, len(candidates))
	var rejected []Rejection

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if err := ValidateShape(c); err != nil {
			rejected = append(rejected, Rejection{Candidate: c, Reason: err.Error()})
			s.logger.Warn("Candidate rejected: malformed", zap.String("candidate_id", c.ID), zap.Error(err))
			continue
		}
		if _, dup := seen[c.ID]; dup {
			rejected = append(rejected, Rejection{Candidate: c, Reason: "duplicate candidate id"})
			s.logger.Warn("Candidate rejected: duplicate id", zap.String("candidate_id", c.ID))
			continue
		}
		seen[c.ID] = struct{}{}

		if reason := s.screenPolicy(c); reason != "" {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			s.logger.Info("Candidate screened out",
				zap.String("candidate_id", c.ID),
				zap.String("reason", reason),
			)
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, rejected
}

func (s *Screener) screenPolicy(c schemas.ImprovementCandidate) string {
	if c.Confidence < s.cfg.MinConfidence {
		return fmt.Sprintf("confidence %.2f below floor %.2f", c.Confidence, s.cfg.MinConfidence)
	}
	if c.Impact < s.cfg.MinImpactTier() {
		return fmt.Sprintf("impact %s below floor %s", c.Impact, s.cfg.MinImpactTier())
	}
	if c.Risk == schemas.TierHigh {
		for _, ch := range c.Changes {
			for _, prefix := range s.cfg.ProtectedPaths {
				if strings.HasPrefix(ch.Path, prefix) {
					return fmt.Sprintf("high-risk change touches protected path %s", ch.Path)
				}
			}
		}
	}
	return ""
}

// ValidateShape checks the structural invariants of one candidate. It
// trusts nothing: every field an external generator could get wrong is
// verified here.
func ValidateShape(c schemas.ImprovementCandidate) error {
	if c.ID == "" {
		return fmt.Errorf("%w: candidate has no id", schemas.ErrInvalidChangeSet)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", schemas.ErrInvalidChangeSet, c.Confidence)
	}
	if len(c.Changes) == 0 {
		return fmt.Errorf("%w: candidate %s has an empty change set", schemas.ErrInvalidChangeSet, c.ID)
	}
	for i, ch := range c.Changes {
		if ch.Path == "" {
			return fmt.Errorf("%w: change %d of candidate %s has no path", schemas.ErrInvalidChangeSet, i, c.ID)
		}
		switch ch.Op {
		case schemas.OpAdd, schemas.OpModify:
			if ch.Payload == "" {
				return fmt.Errorf("%w: %s of %q has no payload", schemas.ErrInvalidChangeSet, ch.Op, ch.Path)
			}
		case schemas.OpDelete:
			if ch.Payload != "" {
				return fmt.Errorf("%w: delete of %q carries a payload", schemas.ErrInvalidChangeSet, ch.Path)
			}
		default:
			return fmt.Errorf("%w: unknown operation %q for %q", schemas.ErrInvalidChangeSet, ch.Op, ch.Path)
		}
	}
	return nil
}
