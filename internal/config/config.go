// Package config loads and validates the application configuration via
// viper. Defaults cover every knob so the engine runs without a config
// file; the CRUCIBLE_* environment prefix and a YAML file override them.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// Config is the root configuration object.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Repo   RepoConfig   `mapstructure:"repo" yaml:"repo"`
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	Audit  AuditConfig  `mapstructure:"audit" yaml:"audit"`
}

// LoggerConfig configures the zap bootstrap in internal/observability.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// RepoConfig points at the target repository. The baseline revision is
// read-only to all trials; only sandboxes are ever mutated.
type RepoConfig struct {
	Path         string `mapstructure:"path" yaml:"path"`
	BaseRevision string `mapstructure:"base_revision" yaml:"base_revision"`
	SandboxDir   string `mapstructure:"sandbox_dir" yaml:"sandbox_dir"`
	// CloneRateLimit caps isolated-copy creation per second so a wide
	// worker pool cannot storm the shared store.
	CloneRateLimit float64 `mapstructure:"clone_rate_limit" yaml:"clone_rate_limit"`
}

// EngineConfig tunes the iteration scheduler and its component policies.
type EngineConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// Concurrency is the worker pool width W. Default 1 for strict
	// isolation; higher values are safe because sandboxes are disjoint.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Exhaustive disables early termination on a good-enough score.
	Exhaustive bool `mapstructure:"exhaustive" yaml:"exhaustive"`
	// CommitTrials commits a succeeded trial's sandbox branch before
	// teardown so the winner can be recovered by ref name.
	CommitTrials bool `mapstructure:"commit_trials" yaml:"commit_trials"`

	GoodEnoughThreshold float64 `mapstructure:"good_enough_threshold" yaml:"good_enough_threshold"`
	MinScore            float64 `mapstructure:"min_score" yaml:"min_score"`

	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Scoring    ScoringConfig    `mapstructure:"scoring" yaml:"scoring"`
	Screening  ScreeningConfig  `mapstructure:"screening" yaml:"screening"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
}

// ValidationConfig describes the external validation command.
type ValidationConfig struct {
	Command []string `mapstructure:"command" yaml:"command"`
	// ReducedScopeArgs are appended on the single crash retry, e.g. a flag
	// that skips non-critical checks.
	ReducedScopeArgs []string      `mapstructure:"reduced_scope_args" yaml:"reduced_scope_args"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ScoringConfig exposes the success-score weighting as policy rather than
// hard-coding it. Weights must sum to 1.
type ScoringConfig struct {
	PerformanceWeight float64 `mapstructure:"performance_weight" yaml:"performance_weight"`
	QualityWeight     float64 `mapstructure:"quality_weight" yaml:"quality_weight"`
	PassRateWeight    float64 `mapstructure:"pass_rate_weight" yaml:"pass_rate_weight"`
	ConfidenceWeight  float64 `mapstructure:"confidence_weight" yaml:"confidence_weight"`
	// NewCriticalTolerance is the number of newly-introduced critical
	// failures tolerated before the score is force-capped below MinScore.
	NewCriticalTolerance int `mapstructure:"new_critical_tolerance" yaml:"new_critical_tolerance"`
	// RegressionTolerance is the largest acceptable per-metric regression
	// (0.05 = 5%) before the same cap applies.
	RegressionTolerance float64 `mapstructure:"regression_tolerance" yaml:"regression_tolerance"`
}

// ScreeningConfig holds the business rules applied to candidates before
// they are queued.
type ScreeningConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	MinImpact     string  `mapstructure:"min_impact" yaml:"min_impact"`
	// ProtectedPaths are path prefixes a high-risk candidate may not touch.
	ProtectedPaths []string `mapstructure:"protected_paths" yaml:"protected_paths"`
}

// RetryConfig bounds the transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// AuditConfig configures the audit trail sinks. The in-memory trail is
// always present; the JSONL file sink is on by default (empty File
// disables it) and the Postgres sink is opt-in.
type AuditConfig struct {
	File     string              `mapstructure:"file" yaml:"file"`
	Postgres PostgresAuditConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresAuditConfig holds connection details for the optional durable
// audit store.
type PostgresAuditConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresAuditConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crucible")
	v.SetDefault("logger.log_file", "crucible.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Repo --
	v.SetDefault("repo.path", ".")
	v.SetDefault("repo.base_revision", "HEAD")
	v.SetDefault("repo.sandbox_dir", "")
	v.SetDefault("repo.clone_rate_limit", 2.0)

	// -- Engine --
	v.SetDefault("engine.max_iterations", 10)
	v.SetDefault("engine.concurrency", 1)
	v.SetDefault("engine.exhaustive", false)
	v.SetDefault("engine.commit_trials", true)
	v.SetDefault("engine.good_enough_threshold", 0.90)
	v.SetDefault("engine.min_score", 0.70)
	v.SetDefault("engine.validation.command", []string{"make", "validate"})
	v.SetDefault("engine.validation.reduced_scope_args", []string{"--critical-only"})
	v.SetDefault("engine.validation.timeout", "10m")
	v.SetDefault("engine.scoring.performance_weight", 0.40)
	v.SetDefault("engine.scoring.quality_weight", 0.30)
	v.SetDefault("engine.scoring.pass_rate_weight", 0.20)
	v.SetDefault("engine.scoring.confidence_weight", 0.10)
	v.SetDefault("engine.scoring.new_critical_tolerance", 0)
	v.SetDefault("engine.scoring.regression_tolerance", 0.05)
	v.SetDefault("engine.screening.min_confidence", 0.0)
	v.SetDefault("engine.screening.min_impact", "low")
	v.SetDefault("engine.retry.max_attempts", 3)
	v.SetDefault("engine.retry.base_backoff", "500ms")
	v.SetDefault("engine.retry.max_backoff", "30s")

	// -- Audit --
	v.SetDefault("audit.file", "crucible-audit.jsonl")
	v.SetDefault("audit.postgres.enabled", false)
	v.SetDefault("audit.postgres.host", "localhost")
	v.SetDefault("audit.postgres.port", 5432)
	v.SetDefault("audit.postgres.user", "postgres")
	v.SetDefault("audit.postgres.password", "")
	v.SetDefault("audit.postgres.dbname", "crucible_audit")
	v.SetDefault("audit.postgres.sslmode", "disable")
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are all literal values; this cannot fail in practice.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewFromViper builds and validates a Config from a prepared viper
// instance. Validation failures wrap schemas.ErrConfiguration and abort
// the run before any sandbox is touched.
func NewFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("audit.postgres.password", "CRUCIBLE_AUDIT_PG_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling config: %v", schemas.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{schemas.ErrConfiguration}, args...)...)
	}

	if c.Repo.Path == "" {
		return fail("repo.path is required")
	}
	if c.Engine.MaxIterations <= 0 {
		return fail("engine.max_iterations must be positive")
	}
	if c.Engine.Concurrency <= 0 {
		return fail("engine.concurrency must be positive")
	}
	if c.Engine.GoodEnoughThreshold < 0 || c.Engine.GoodEnoughThreshold > 1 {
		return fail("engine.good_enough_threshold must be within [0,1]")
	}
	if c.Engine.MinScore < 0 || c.Engine.MinScore > 1 {
		return fail("engine.min_score must be within [0,1]")
	}
	if len(c.Engine.Validation.Command) == 0 {
		return fail("engine.validation.command must not be empty")
	}
	if c.Engine.Validation.Timeout <= 0 {
		return fail("engine.validation.timeout must be a positive duration")
	}
	if err := c.Engine.Scoring.validate(); err != nil {
		return err
	}
	if c.Engine.Retry.MaxAttempts < 0 {
		return fail("engine.retry.max_attempts must not be negative")
	}
	if c.Engine.Retry.BaseBackoff <= 0 || c.Engine.Retry.MaxBackoff < c.Engine.Retry.BaseBackoff {
		return fail("engine.retry backoff bounds are inconsistent")
	}
	if c.Engine.Screening.MinConfidence < 0 || c.Engine.Screening.MinConfidence > 1 {
		return fail("engine.screening.min_confidence must be within [0,1]")
	}
	return nil
}

func (s ScoringConfig) validate() error {
	sum := s.PerformanceWeight + s.QualityWeight + s.PassRateWeight + s.ConfidenceWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: scoring weights must sum to 1.0, got %.3f", schemas.ErrConfiguration, sum)
	}
	for _, w := range []float64{s.PerformanceWeight, s.QualityWeight, s.PassRateWeight, s.ConfidenceWeight} {
		if w < 0 {
			return fmt.Errorf("%w: scoring weights must not be negative", schemas.ErrConfiguration)
		}
	}
	if s.NewCriticalTolerance < 0 {
		return fmt.Errorf("%w: scoring.new_critical_tolerance must not be negative", schemas.ErrConfiguration)
	}
	if s.RegressionTolerance < 0 || s.RegressionTolerance > 1 {
		return fmt.Errorf("%w: scoring.regression_tolerance must be within [0,1]", schemas.ErrConfiguration)
	}
	return nil
}

// MinImpactTier parses the screening floor, defaulting to low.
func (s ScreeningConfig) MinImpactTier() schemas.Tier {
	if s.MinImpact == "" {
		return schemas.TierLow
	}
	return schemas.ParseTier(s.MinImpact)
}
