package feedback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

func item(id string, sev schemas.Severity, freq int, modules ...string) schemas.FeedbackItem {
	return schemas.FeedbackItem{
		ID:        id,
		Origin:    schemas.OriginTest,
		Severity:  sev,
		Frequency: freq,
		Modules:   modules,
	}
}

func TestSummarizeOrdersBySeverityThenFrequency(t *testing.T) {
	summary := Summarize([]schemas.FeedbackItem{
		item("low-freq-high-sev", schemas.SeverityCritical, 1),
		item("high-freq-low-sev", schemas.SeverityLow, 100),
		item("mid", schemas.SeverityHigh, 10),
		item("mid-busier", schemas.SeverityHigh, 20),
	})

	ids := make([]string, len(summary.Items))
	for i, it := range summary.Items {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"low-freq-high-sev", "mid-busier", "mid", "high-freq-low-sev"}, ids)
}

func TestSummarizeAggregates(t *testing.T) {
	summary := Summarize([]schemas.FeedbackItem{
		item("a", schemas.SeverityCritical, 5, "mod/hot"),
		item("b", schemas.SeverityCritical, 3, "mod/hot", "mod/warm"),
		item("c", schemas.SeverityLow, 1, "mod/cold"),
	})

	assert.Equal(t, 3, summary.ByOrigin[schemas.OriginTest])
	assert.Equal(t, 2, summary.BySeverity["critical"])
	assert.Equal(t, 1, summary.BySeverity["low"])
	require.NotEmpty(t, summary.TopModules)
	assert.Equal(t, "mod/hot", summary.TopModules[0])
	assert.False(t, summary.CollectedAt.IsZero())
}

func TestSummarizeEmptyInput(t *testing.T) {
	summary := Summarize(nil)
	assert.Empty(t, summary.Items)
	assert.Empty(t, summary.TopModules)
}

func TestFileSourceMissingFileIsEmpty(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.json"))
	items, err := src.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileSourceParsesItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.json")
	payload := `[{"id":"fb-1","origin":"test","severity":2,"description":"flaky case","frequency":4}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	items, err := NewFileSource(path).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fb-1", items[0].ID)
	assert.Equal(t, schemas.SeverityHigh, items[0].Severity)
}

func TestFileCandidateSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	payload := `[
		{"id":"cand-1","origin":"generation","category":"bug_fix","confidence":0.8,
		 "impact":2,"risk":0,
		 "changes":[{"path":"pkg/fix.go","op":"modify","payload":"fixed"}]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	candidates, err := NewFileCandidateSource(path).Candidates(context.Background(), schemas.FeedbackSummary{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "cand-1", candidates[0].ID)
	assert.Equal(t, schemas.TierHigh, candidates[0].Impact)

	_, err = NewFileCandidateSource(filepath.Join(t.TempDir(), "absent.json")).
		Candidates(context.Background(), schemas.FeedbackSummary{})
	assert.Error(t, err, "candidates are required input; a missing file is an error")
}

func TestFileSourceRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileSource(path).Collect(context.Background())
	assert.Error(t, err)
}
