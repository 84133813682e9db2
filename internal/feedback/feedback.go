// Package feedback aggregates upstream observations into the prioritized
// digest the candidate generator consumes, and provides file-backed
// adapters for the feedback and candidate boundaries.
package feedback

import (
	"sort"
	"time"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// topModuleCount bounds the module hotlist in a summary.
const topModuleCount = 5

// Summarize folds feedback items into a FeedbackSummary. Items are
// ordered by severity descending then frequency descending, so the
// generator sees the most pressing observations first.
func Summarize(items []schemas.FeedbackItem) schemas.FeedbackSummary {
	sorted := make([]schemas.FeedbackItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		return sorted[i].Frequency > sorted[j].Frequency
	})

	summary := schemas.FeedbackSummary{
		Items:       sorted,
		ByOrigin:    make(map[schemas.ProcessOrigin]int),
		BySeverity:  make(map[string]int),
		CollectedAt: time.Now().UTC(),
	}

	moduleHits := make(map[string]int)
	for _, item := range sorted {
		summary.ByOrigin[item.Origin]++
		summary.BySeverity[item.Severity.String()]++
		for _, mod := range item.Modules {
			moduleHits[mod] += item.Frequency
		}
	}
	summary.TopModules = topModules(moduleHits, topModuleCount)
	return summary
}

// topModules returns the n most-hit modules, most frequent first, name
// ascending on ties.
func topModules(hits map[string]int, n int) []string {
	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if hits[names[i]] != hits[names[j]] {
			return hits[names[i]] > hits[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
