package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

func defaultEngine() *Engine {
	cfg := config.NewDefaultConfig()
	return NewEngine(cfg.Engine.Scoring, cfg.Engine.MinScore)
}

func completedReport() schemas.ValidationReport {
	return schemas.ValidationReport{
		Status: schemas.ValidationCompleted,
		Passed: 90,
		Failed: 10,
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := defaultEngine()
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 0.8}
	report := completedReport()
	report.PerfDelta = 0.12
	report.QualityDelta = 0.05

	first := e.Score(candidate, report)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Score(candidate, report))
	}
}

func TestScoreWeightsComponents(t *testing.T) {
	e := defaultEngine()

	// Neutral deltas, full pass rate, full confidence: only the pass-rate
	// and confidence components contribute.
	// 0*0.4 + 0*0.3 + 1.0*0.2 + 1.0*0.1 = 0.30
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 1.0}
	report := schemas.ValidationReport{Status: schemas.ValidationCompleted, Passed: 10}
	assert.InDelta(t, 0.30, e.Score(candidate, report), 1e-9)

	// A 20% perf improvement moves only the perf component:
	// 0.2*0.4 + 0*0.3 + 1.0*0.2 + 1.0*0.1 = 0.38
	report.PerfDelta = 0.20
	assert.InDelta(t, 0.38, e.Score(candidate, report), 1e-9)

	// A perf regression contributes zero, not a negative component.
	report.PerfDelta = -0.20
	assert.InDelta(t, 0.30, e.Score(candidate, report), 1e-9)
}

func TestScoreStaysWithinUnitInterval(t *testing.T) {
	e := defaultEngine()
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 1.0}
	report := completedReport()
	report.PerfDelta = 3.0
	report.QualityDelta = 2.0

	score := e.Score(candidate, report)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestScoreCapsNewCriticalFailures(t *testing.T) {
	e := defaultEngine()
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 1.0}
	report := completedReport()
	report.PerfDelta = 1.0
	report.QualityDelta = 1.0
	report.NewCriticalFailures = 1

	score := e.Score(candidate, report)
	require.Less(t, score, 0.70, "a candidate introducing critical failures must not be viable")
}

func TestScoreCapsMetricRegression(t *testing.T) {
	e := defaultEngine()
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 1.0}

	report := completedReport()
	report.PerfDelta = 1.0
	report.QualityDelta = 1.0
	report.MetricDeltas = map[string]float64{"latency_p99": -0.04}
	withinTolerance := e.Score(candidate, report)
	assert.GreaterOrEqual(t, withinTolerance, 0.70)

	report.MetricDeltas["latency_p99"] = -0.06
	pastTolerance := e.Score(candidate, report)
	assert.Less(t, pastTolerance, 0.70)
}

func TestScoreZeroForNonCompletedRuns(t *testing.T) {
	e := defaultEngine()
	candidate := schemas.ImprovementCandidate{ID: "cand-1", Confidence: 1.0}

	for _, status := range []schemas.ValidationStatus{schemas.ValidationTimedOut, schemas.ValidationCrashed} {
		report := completedReport()
		report.Status = status
		assert.Zero(t, e.Score(candidate, report), "status %s", status)
	}
}
