// Package report renders the outcome of an engine run as a JSON
// document. The document is self-contained: a reader can see every
// trial, the final ranking, and whether the audit trail lost entries,
// without access to the process logs.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Totals aggregates trial outcomes by terminal status and candidate
// category. MeanScore averages over succeeded trials only; failed and
// aborted trials carry no meaningful score.
type Totals struct {
	Trials     int                      `json:"trials"`
	Succeeded  int                      `json:"succeeded"`
	Failed     int                      `json:"failed"`
	Aborted    int                      `json:"aborted"`
	TimedOut   int                      `json:"timed_out"`
	Skipped    int                      `json:"skipped"`
	MeanScore  float64                  `json:"mean_score"`
	ByCategory map[schemas.Category]int `json:"by_category,omitempty"`
}

// Document is the rendered run report.
type Document struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Totals   Totals                    `json:"totals"`
	Results  []schemas.IterationResult `json:"results"`
	Selected []schemas.IterationResult `json:"selected"`
	// NoViableCandidate marks the legitimate empty outcome explicitly, so
	// consumers do not have to infer it from an empty slice.
	NoViableCandidate bool `json:"no_viable_candidate"`

	CommitRefs map[string]string `json:"commit_refs,omitempty"`
	// AuditDropped is the number of audit entries that failed to reach a
	// durable sink. Non-zero means the in-memory trail is the only
	// complete record of this run.
	AuditDropped uint64 `json:"audit_dropped"`
}

// Build assembles the document from a run outcome.
func Build(runID string, startedAt time.Time, outcome scheduler.Outcome, auditDropped uint64) Document {
	doc := Document{
		RunID:             runID,
		StartedAt:         startedAt,
		FinishedAt:        time.Now().UTC(),
		Results:           outcome.Results,
		Selected:          outcome.Selected,
		NoViableCandidate: len(outcome.Selected) == 0,
		CommitRefs:        outcome.CommitRefs,
		AuditDropped:      auditDropped,
	}

	doc.Totals.Trials = len(outcome.Results)
	doc.Totals.Skipped = outcome.Skipped
	var scoreSum float64
	for _, r := range outcome.Results {
		switch r.Status {
		case schemas.TrialSucceeded:
			doc.Totals.Succeeded++
			scoreSum += r.Score
		case schemas.TrialFailed:
			doc.Totals.Failed++
		case schemas.TrialAborted:
			doc.Totals.Aborted++
		case schemas.TrialTimedOut:
			doc.Totals.TimedOut++
		}
		if r.Category != "" {
			if doc.Totals.ByCategory == nil {
				doc.Totals.ByCategory = make(map[schemas.Category]int)
			}
			doc.Totals.ByCategory[r.Category]++
		}
	}
	if doc.Totals.Succeeded > 0 {
		doc.Totals.MeanScore = scoreSum / float64(doc.Totals.Succeeded)
	}
	return doc
}

// Write renders the document as indented JSON.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	return nil
}

// WriteFile renders the document to a file, creating or truncating it.
func WriteFile(path string, doc Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file %s: %w", path, err)
	}
	defer f.Close()
	if err := Write(f, doc); err != nil {
		return err
	}
	return f.Sync()
}
