// Package schemas holds the shared data model of the improvement iteration
// engine. Everything in here crosses at least one component boundary; types
// private to a single component live with that component instead.
package schemas

import (
	"time"
)

// ProcessOrigin identifies which upstream process produced a piece of feedback.
type ProcessOrigin string

const (
	OriginGeneration ProcessOrigin = "generation"
	OriginReview     ProcessOrigin = "review"
	OriginTest       ProcessOrigin = "test"
	OriginFramework  ProcessOrigin = "framework"
)

// Severity is the ordered feedback severity scale.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseSeverity maps the wire representation back to a Severity.
// Unknown values degrade to SeverityLow rather than failing the caller.
func ParseSeverity(s string) Severity {
	for sev, name := range severityNames {
		if name == s {
			return sev
		}
	}
	return SeverityLow
}

// FeedbackItem is one pre-aggregated observation from an upstream tool.
// Items are immutable once created; the engine only reads them.
type FeedbackItem struct {
	ID            string        `json:"id"`
	Origin        ProcessOrigin `json:"origin"`
	Severity      Severity      `json:"severity"`
	Description   string        `json:"description"`
	Frequency     int           `json:"frequency"`
	FirstObserved time.Time     `json:"first_observed"`
	LastObserved  time.Time     `json:"last_observed"`
	Modules       []string      `json:"modules,omitempty"`
}

// Category classifies what kind of improvement a candidate proposes.
type Category string

const (
	CategoryBugFix      Category = "bug_fix"
	CategoryPerformance Category = "performance"
	CategoryReliability Category = "reliability"
	CategoryAccuracy    Category = "accuracy"
	CategoryFeature     Category = "feature"
)

// Tier is the ordered low/medium/high scale used for both expected impact
// and risk. Lower risk and higher impact sort first, so the comparison
// direction depends on which axis the tier describes.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

var tierNames = map[Tier]string{
	TierLow:    "low",
	TierMedium: "medium",
	TierHigh:   "high",
}

func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return "unknown"
}

// Weight maps a tier onto [0,1] for priority arithmetic.
func (t Tier) Weight() float64 {
	switch t {
	case TierHigh:
		return 1.0
	case TierMedium:
		return 0.6
	default:
		return 0.3
	}
}

// ParseTier maps the wire representation back to a Tier, defaulting to
// TierMedium for unknown values.
func ParseTier(s string) Tier {
	for t, name := range tierNames {
		if name == s {
			return t
		}
	}
	return TierMedium
}

// ChangeOp enumerates the file-level operations a candidate may request.
type ChangeOp string

const (
	OpAdd    ChangeOp = "add"
	OpModify ChangeOp = "modify"
	OpDelete ChangeOp = "delete"
)

// ChangeDescriptor is one file mutation within a candidate's change set.
// Payload carries the full new file content for add/modify and is empty
// for delete.
type ChangeDescriptor struct {
	Path    string   `json:"path"`
	Op      ChangeOp `json:"op"`
	Payload string   `json:"payload,omitempty"`
}

// ImprovementCandidate is one proposed change set under trial. Candidates
// come from an external, untrusted generator and are never mutated by the
// engine; they are validated, applied, and scored.
type ImprovementCandidate struct {
	ID          string             `json:"id"`
	Origin      ProcessOrigin      `json:"origin"`
	Category    Category           `json:"category"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
	Impact      Tier               `json:"impact"`
	Risk        Tier               `json:"risk"`
	Changes     []ChangeDescriptor `json:"changes"`
}

// Priority is the queue ordering key: combined confidence and expected
// impact, highest first. Ties are broken by candidate ID ascending.
func (c ImprovementCandidate) Priority() float64 {
	return c.Confidence * c.Impact.Weight()
}

// SandboxHandle is an opaque reference to one isolated working copy.
// Exactly one live handle exists per trial; the scheduler owns it for the
// duration of the trial and always releases it before moving on.
type SandboxHandle struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Branch       string    `json:"branch"`
	BaseRevision string    `json:"base_revision"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// Workspace is the version-control layer's view of an isolated copy,
// before the sandbox manager wraps it in a handle.
type Workspace struct {
	ID     string
	Path   string
	Branch string
}

// ApplyReport records what a successful change application did, with
// enough information to reverse it.
type ApplyReport struct {
	CandidateID string         `json:"candidate_id"`
	Applied     []ChangeOp     `json:"applied"`
	Paths       []string       `json:"paths"`
	Reversals   []FileSnapshot `json:"reversals"`
}

// FileSnapshot captures a path's state before mutation. Existed=false
// means the path was created by the apply and reversal deletes it.
type FileSnapshot struct {
	Path    string `json:"path"`
	Existed bool   `json:"existed"`
	Content []byte `json:"content,omitempty"`
}

// ValidationStatus describes how a validation run terminated.
type ValidationStatus string

const (
	ValidationCompleted ValidationStatus = "completed"
	ValidationTimedOut  ValidationStatus = "timed_out"
	ValidationCrashed   ValidationStatus = "crashed"
)

// ResourceUsage is the peak resource footprint of one validation run.
type ResourceUsage struct {
	PeakRSSBytes  int64   `json:"peak_rss_bytes"`
	CPUUserSec    float64 `json:"cpu_user_sec"`
	CPUSystemSec  float64 `json:"cpu_system_sec"`
}

// ValidationReport is the structured outcome of one validation run inside
// a sandbox. Deltas are fractions relative to the baseline: +0.10 means a
// 10% improvement, negative values are regressions.
type ValidationReport struct {
	Status              ValidationStatus   `json:"status"`
	Passed              int                `json:"passed"`
	Failed              int                `json:"failed"`
	NewFailures         int                `json:"new_failures"`
	NewCriticalFailures int                `json:"new_critical_failures"`
	FixedFailures       int                `json:"fixed_failures"`
	PerfDelta           float64            `json:"perf_delta"`
	QualityDelta        float64            `json:"quality_delta"`
	DurationMs          int64              `json:"duration_ms"`
	Resources           ResourceUsage      `json:"resources"`
	MetricDeltas        map[string]float64 `json:"metric_deltas,omitempty"`
}

// PassRate is passed/(passed+failed), or zero when nothing ran.
func (r ValidationReport) PassRate() float64 {
	total := r.Passed + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total)
}

// TrialStatus is the terminal status of one iteration.
type TrialStatus string

const (
	TrialSucceeded TrialStatus = "succeeded"
	TrialFailed    TrialStatus = "failed"
	TrialAborted   TrialStatus = "aborted"
	TrialTimedOut  TrialStatus = "timed_out"
)

// IterationResult is the immutable record of one completed trial. It is
// created exactly once per trial by the scheduler; the selector and the
// audit trail only read it. Score is a pure function of the fields here.
type IterationResult struct {
	CandidateID         string        `json:"candidate_id"`
	Category            Category      `json:"category,omitempty"`
	SandboxID           string        `json:"sandbox_id,omitempty"`
	CorrelationID       string        `json:"correlation_id"`
	Status              TrialStatus   `json:"status"`
	Passed              int           `json:"passed"`
	Failed              int           `json:"failed"`
	NewFailures         int           `json:"new_failures"`
	NewCriticalFailures int           `json:"new_critical_failures"`
	FixedFailures       int           `json:"fixed_failures"`
	Score               float64       `json:"score"`
	Risk                Tier          `json:"risk"`
	DurationMs          int64         `json:"duration_ms"`
	Resources           ResourceUsage `json:"resources"`
	CompletedAt         time.Time     `json:"completed_at"`
	Error               string        `json:"error,omitempty"`
}

// ActionTag labels one audit trail state transition.
type ActionTag string

const (
	ActionStart           ActionTag = "start"
	ActionSandboxAcquired ActionTag = "sandbox_acquired"
	ActionChangesApplied  ActionTag = "changes_applied"
	ActionValidated       ActionTag = "validated"
	ActionScored          ActionTag = "scored"
	ActionCleaned         ActionTag = "cleaned"
	ActionFailed          ActionTag = "failed"
	ActionAborted         ActionTag = "aborted"
	ActionRetry           ActionTag = "retry"
	ActionRequeued        ActionTag = "requeued"
	ActionSelected        ActionTag = "selected"
	ActionRunCompleted    ActionTag = "run_completed"
)

// Actor identifies who caused an audited transition.
type Actor string

const (
	ActorSystem    Actor = "system"
	ActorOperator  Actor = "operator"
	ActorGenerator Actor = "generator"
)

// AuditEntry is one immutable, append-only record of a state transition.
// Seq is globally monotonic across workers; CorrelationID links all
// entries of one iteration.
type AuditEntry struct {
	Seq           uint64    `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	Action        ActionTag `json:"action"`
	Actor         Actor     `json:"actor"`
	CorrelationID string    `json:"correlation_id"`
	CandidateID   string    `json:"candidate_id,omitempty"`
	SandboxID     string    `json:"sandbox_id,omitempty"`
	Before        string    `json:"before,omitempty"`
	After         string    `json:"after,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// FeedbackSummary is the prioritized digest of collected feedback handed
// to the candidate generator.
type FeedbackSummary struct {
	Items          []FeedbackItem        `json:"items"`
	ByOrigin       map[ProcessOrigin]int `json:"by_origin"`
	BySeverity     map[string]int        `json:"by_severity"`
	TopModules     []string              `json:"top_modules,omitempty"`
	CollectedAt    time.Time             `json:"collected_at"`
}
