package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/applier"
	"github.com/xkilldash9x/crucible-cli/internal/audit"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/feedback"
	"github.com/xkilldash9x/crucible-cli/internal/generator"
	"github.com/xkilldash9x/crucible-cli/internal/observability"
	"github.com/xkilldash9x/crucible-cli/internal/recovery"
	"github.com/xkilldash9x/crucible-cli/internal/report"
	"github.com/xkilldash9x/crucible-cli/internal/sandbox"
	"github.com/xkilldash9x/crucible-cli/internal/scheduler"
	"github.com/xkilldash9x/crucible-cli/internal/scoring"
	"github.com/xkilldash9x/crucible-cli/internal/selector"
	"github.com/xkilldash9x/crucible-cli/internal/validation"
	"github.com/xkilldash9x/crucible-cli/internal/vcs"
)

var (
	feedbackFile   string
	candidatesFile string
	reportFile     string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run one improvement iteration over a candidate set",
	Long: `Reads improvement candidates from a file, trials each one in an
isolated sandbox (apply, validate, score), and reports the viable
results ranked best first. An empty selection is a normal outcome.`,
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVar(&feedbackFile, "feedback", "", "JSON file of feedback items (optional)")
	optimizeCmd.Flags().StringVar(&candidatesFile, "candidates", "", "JSON file of improvement candidates (required)")
	optimizeCmd.Flags().StringVarP(&reportFile, "report", "o", "", "write the run report to this file instead of stdout")
	_ = optimizeCmd.MarkFlagRequired("candidates")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	cfg, err := config.NewFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit sinks: the in-memory trail always exists, the file and
	// Postgres sinks are durable extras.
	var sinks []audit.Sink
	if cfg.Audit.File != "" {
		sink, err := audit.NewJSONLSink(cfg.Audit.File)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Audit.Postgres.Enabled {
		sink, err := audit.NewPostgresSink(ctx, cfg.Audit.Postgres)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	trail := audit.NewTrail(logger, sinks...)
	defer func() {
		if err := trail.Close(); err != nil {
			logger.Warn("Closing audit sinks failed", zap.Error(err))
		}
	}()

	candidates, err := loadCandidates(cmd, trail, logger, cfg)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logger.Info("No candidates to trial")
		return writeReport(report.Build(uuid.New().String(), time.Now().UTC(), scheduler.Outcome{}, trail.Dropped()))
	}

	store := vcs.NewGitStore(logger, cfg.Repo.Path, cfg.Repo.SandboxDir)
	sandboxes := sandbox.NewManager(logger, store, cfg.Engine.Concurrency, cfg.Repo.CloneRateLimit)
	sched := scheduler.New(
		logger,
		cfg.Engine,
		cfg.Repo.BaseRevision,
		sandboxes,
		applier.New(logger),
		validation.NewRunner(logger, cfg.Engine.Validation),
		scoring.NewEngine(cfg.Engine.Scoring, cfg.Engine.MinScore),
		selector.New(logger, cfg.Engine.MinScore),
		trail,
		recovery.NewManager(logger, cfg.Engine.Retry),
		store,
	)

	startedAt := time.Now().UTC()
	outcome, runErr := sched.Run(ctx, candidates)

	doc := report.Build(uuid.New().String(), startedAt, outcome, trail.Dropped())
	if err := writeReport(doc); err != nil {
		return err
	}
	if sandboxes.LiveCount() != 0 {
		logger.Error("Sandboxes still live after run", zap.Int("count", sandboxes.LiveCount()))
	}
	return runErr
}

// loadCandidates collects feedback, pulls candidates from the candidate
// file, and screens them. Rejections are audited, never fatal.
func loadCandidates(cmd *cobra.Command, trail *audit.Trail, logger *zap.Logger, cfg *config.Config) ([]schemas.ImprovementCandidate, error) {
	ctx := cmd.Context()

	var summary schemas.FeedbackSummary
	if feedbackFile != "" {
		items, err := feedback.NewFileSource(feedbackFile).Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary = feedback.Summarize(items)
		logger.Info("Feedback collected", zap.Int("items", len(items)))
	}

	raw, err := feedback.NewFileCandidateSource(candidatesFile).Candidates(ctx, summary)
	if err != nil {
		return nil, err
	}

	screener := generator.NewScreener(logger, cfg.Engine.Screening)
	accepted, rejected := screener.Screen(raw)
	for _, rej := range rejected {
		trail.Record(schemas.AuditEntry{
			Action:        schemas.ActionFailed,
			Actor:         schemas.ActorGenerator,
			CorrelationID: uuid.New().String(),
			CandidateID:   rej.Candidate.ID,
			Detail:        "screened out: " + rej.Reason,
		})
	}
	logger.Info("Candidates screened",
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(rejected)),
	)
	return accepted, nil
}

func writeReport(doc report.Document) error {
	if reportFile != "" {
		if err := report.WriteFile(reportFile, doc); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", reportFile)
		return nil
	}
	return report.Write(os.Stdout, doc)
}
