// Package selector ranks completed iteration results and picks the
// viable ones. Selection is deterministic: for the same result set it
// always produces the same ordering.
package selector

import (
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// Selector filters succeeded trials above the viability threshold and
// orders them best first.
type Selector struct {
	logger   *zap.Logger
	minScore float64
}

var _ schemas.ResultSelector = (*Selector)(nil)

// New builds a Selector with the given viability threshold.
func New(logger *zap.Logger, minScore float64) *Selector {
	return &Selector{logger: logger.Named("selector"), minScore: minScore}
}

// Select returns the viable results ordered by score descending. Ties are
// broken by lower risk tier, then earlier completion, then candidate ID
// ascending, so two runs over the same results always agree on the
// winner. An empty selection is a valid outcome: no candidate was good
// enough.
func (s *Selector) Select(results []schemas.IterationResult) []schemas.IterationResult {
	viable := make([]schemas.IterationResult, 0, len(results))
	for _, r := range results {
		if r.Status != schemas.TrialSucceeded {
			continue
		}
		if r.Score < s.minScore {
			continue
		}
		viable = append(viable, r)
	}

	sort.SliceStable(viable, func(i, j int) bool {
		if viable[i].Score != viable[j].Score {
			return viable[i].Score > viable[j].Score
		}
		if viable[i].Risk != viable[j].Risk {
			return viable[i].Risk < viable[j].Risk
		}
		if !viable[i].CompletedAt.Equal(viable[j].CompletedAt) {
			return viable[i].CompletedAt.Before(viable[j].CompletedAt)
		}
		return viable[i].CandidateID < viable[j].CandidateID
	})

	if len(viable) == 0 {
		s.logger.Info("No viable candidates above threshold",
			zap.Int("considered", len(results)),
			zap.Float64("min_score", s.minScore),
		)
	} else {
		s.logger.Info("Candidates selected",
			zap.Int("viable", len(viable)),
			zap.String("best", viable[0].CandidateID),
			zap.Float64("best_score", viable[0].Score),
		)
	}
	return viable
}
