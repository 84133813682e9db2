// Package scoring converts a validation report plus candidate metadata
// into a single comparable score in [0,1]. Scoring is pure arithmetic
// over its inputs; identical inputs always produce identical scores, so
// results can be re-derived from the audit trail.
package scoring

import (
	"math"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// Engine weights the four score components according to policy. The
// weights live in configuration, not code, so operators can shift the
// balance between speed and safety per deployment.
type Engine struct {
	cfg      config.ScoringConfig
	minScore float64
}

var _ schemas.ScoringEngine = (*Engine)(nil)

// NewEngine builds a scoring engine. minScore is the viability threshold
// the force-cap pins violating candidates under.
func NewEngine(cfg config.ScoringConfig, minScore float64) *Engine {
	return &Engine{cfg: cfg, minScore: minScore}
}

// Score computes the weighted success score:
//
//	perf*Wp + quality*Wq + passRate*Wr + confidence*Wc
//
// Perf and quality deltas are clamped at +100% and rescaled to [0,1]; a
// regression contributes zero rather than a negative component, keeping
// the total bounded. A candidate that introduces more new critical
// failures than tolerated, or regresses any metric past the regression
// tolerance, is force-capped strictly below the viability threshold
// regardless of its raw score.
func (e *Engine) Score(candidate schemas.ImprovementCandidate, report schemas.ValidationReport) float64 {
	if report.Status != schemas.ValidationCompleted {
		return 0
	}

	perf := deltaComponent(report.PerfDelta)
	quality := deltaComponent(report.QualityDelta)
	passRate := clamp01(report.PassRate())
	confidence := clamp01(candidate.Confidence)

	score := perf*e.cfg.PerformanceWeight +
		quality*e.cfg.QualityWeight +
		passRate*e.cfg.PassRateWeight +
		confidence*e.cfg.ConfidenceWeight
	score = clamp01(score)

	if e.violatesSafety(report) {
		cap := math.Max(0, e.minScore-0.01)
		score = math.Min(score, cap)
	}
	return score
}

// violatesSafety reports whether the result must not be selectable no
// matter how well it scored otherwise.
func (e *Engine) violatesSafety(report schemas.ValidationReport) bool {
	if report.NewCriticalFailures > e.cfg.NewCriticalTolerance {
		return true
	}
	for _, delta := range report.MetricDeltas {
		if delta < -e.cfg.RegressionTolerance {
			return true
		}
	}
	return false
}

// deltaComponent maps a relative improvement delta onto [0,1]: +1.0 (a
// 100% improvement) saturates at 1, no change and any regression are 0.
func deltaComponent(delta float64) float64 {
	return clamp01(delta)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
