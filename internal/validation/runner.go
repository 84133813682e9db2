// Package validation executes the configured validation command inside a
// sandbox and turns its output into a structured report. The command is
// expected to print a single-line JSON summary as its last line of
// stdout; its exit code signals crash versus completed-with-failures.
package validation

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Runner executes validation commands. One crash is retried once with the
// reduced-scope arguments before the trial is written off.
type Runner struct {
	logger  *zap.Logger
	command []string
	reduced []string
}

var _ schemas.ValidationRunner = (*Runner)(nil)

// NewRunner builds a Runner from the validation section of the config.
func NewRunner(logger *zap.Logger, cfg config.ValidationConfig) *Runner {
	return &Runner{
		logger:  logger.Named("validation"),
		command: cfg.Command,
		reduced: cfg.ReducedScopeArgs,
	}
}

// summaryLine is the wire form of the command's JSON summary.
type summaryLine struct {
	Passed              int                `json:"passed"`
	Failed              int                `json:"failed"`
	NewFailures         int                `json:"new_failures"`
	NewCriticalFailures int                `json:"new_critical_failures"`
	FixedFailures       int                `json:"fixed_failures"`
	PerfDelta           float64            `json:"perf_delta"`
	QualityDelta        float64            `json:"quality_delta"`
	MetricDeltas        map[string]float64 `json:"metric_deltas"`
}

// Run executes the validation command in the sandbox with the given
// timeout. A timeout yields a ValidationTimedOut report, not an error. A
// crash (the command dying without producing a summary) is retried once
// with reduced scope; a second crash returns ErrValidationCrashed.
func (r *Runner) Run(ctx context.Context, handle schemas.SandboxHandle, timeout time.Duration) (schemas.ValidationReport, error) {
	report, err := r.runOnce(ctx, handle, timeout, r.command)
	if err == nil || !errors.Is(err, schemas.ErrValidationCrashed) {
		return report, err
	}

	if len(r.reduced) == 0 {
		return report, err
	}

	r.logger.Warn("Validation crashed; retrying with reduced scope",
		zap.String("sandbox_id", handle.ID),
		zap.Error(err),
	)
	retryCmd := append(append([]string{}, r.command...), r.reduced...)
	return r.runOnce(ctx, handle, timeout, retryCmd)
}

func (r *Runner) runOnce(ctx context.Context, handle schemas.SandboxHandle, timeout time.Duration, argv []string) (schemas.ValidationReport, error) {
	if len(argv) == 0 {
		return schemas.ValidationReport{}, fmt.Errorf("%w: validation command is empty", schemas.ErrConfiguration)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = handle.Path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	report := schemas.ValidationReport{
		Status:     schemas.ValidationCompleted,
		DurationMs: elapsed.Milliseconds(),
	}
	if cmd.ProcessState != nil {
		report.Resources = resourceUsage(cmd.ProcessState)
	}

	// The parent context covers the whole run; only a deadline the runner
	// itself set counts as a validation timeout.
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		report.Status = schemas.ValidationTimedOut
		r.logger.Warn("Validation timed out",
			zap.String("sandbox_id", handle.ID),
			zap.Duration("timeout", timeout),
		)
		return report, nil
	}

	// A failure to start at all (missing binary, permissions) is an
	// infrastructure problem, not a verdict on the candidate.
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return report, fmt.Errorf("%w: running validation command: %v", schemas.ErrTransientInfrastructure, runErr)
	}

	// A non-zero exit with a summary means the suite ran and some checks
	// failed; that is a completed run, scored on its own merits. No
	// summary at all means the command died mid-flight.
	summary, found := extractSummary(stdout.Bytes())
	if !found {
		report.Status = schemas.ValidationCrashed
		detail := lastLine(stderr.Bytes())
		if detail == "" && runErr != nil {
			detail = runErr.Error()
		}
		return report, fmt.Errorf("%w: no summary in output: %s", schemas.ErrValidationCrashed, detail)
	}

	report.Passed = summary.Passed
	report.Failed = summary.Failed
	report.NewFailures = summary.NewFailures
	report.NewCriticalFailures = summary.NewCriticalFailures
	report.FixedFailures = summary.FixedFailures
	report.PerfDelta = summary.PerfDelta
	report.QualityDelta = summary.QualityDelta
	report.MetricDeltas = summary.MetricDeltas

	r.logger.Debug("Validation completed",
		zap.String("sandbox_id", handle.ID),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

// extractSummary scans stdout bottom-up for the last line that parses as
// a summary object. Tools frequently print trailing noise after the
// summary, so every JSON-looking line is tried.
func extractSummary(out []byte) (summaryLine, bool) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var s summaryLine
		if err := json.UnmarshalFromString(line, &s); err == nil {
			return s, true
		}
	}
	return summaryLine{}, false
}

func lastLine(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return ""
	}
	if idx := bytes.LastIndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return string(trimmed)
}
