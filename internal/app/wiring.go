// Package app assembles the inactivity lifecycle stack from configuration.
// cmd/api, cmd/lifecycle-worker and cmd/tools/job-runner share it so every
// entry point runs the same engine against the same lock.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"eduplatform/internal/config"
	"eduplatform/internal/db"
	"eduplatform/internal/external"
	"eduplatform/internal/lifecycle"
	emailpkg "eduplatform/internal/notifications/email"
	"eduplatform/internal/queue"
	"eduplatform/internal/scheduler"
	"eduplatform/internal/telemetry"
	"eduplatform/internal/types"
)

// Stack is the wired lifecycle service of one process.
type Stack struct {
	Pool     *pgxpool.Pool
	Engine   *lifecycle.Engine
	Runner   *scheduler.Runner
	Defaults lifecycle.RunParams
}

// Close releases the database pool.
func (s *Stack) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Overrides replaces collaborators that Build would otherwise construct.
// Used by the job-runner and tests.
type Overrides struct {
	Notifier lifecycle.Notifier
	Metrics  lifecycle.RunMetrics
}

// Build opens the pool, runs migrations when configured and wires the
// engine with the notifier selected by NOTIFIER_MODE.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, ov Overrides) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := cfg.Database.URL.Unmask()

	if cfg.Database.RunMigrations {
		if err := db.Migrate(ctx, dsn); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.InfoContext(ctx, "database migrations applied")
	}

	pool, err := db.NewPool(ctx, dsn, db.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	awsLoader := lazyAWS(cfg.AWS)

	notifier := ov.Notifier
	if notifier == nil {
		notifier, err = BuildNotifier(ctx, cfg, awsLoader, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	deps := lifecycle.Dependencies{
		Accounts: db.NewAccountRepository(pool),
		Signals:  db.NewActivityRepository(pool),
		Notifier: notifier,
		Links:    emailpkg.NewLinkBuilder(cfg.Server.DashboardURL),
		Features: lifecycle.Features{
			IncludeContentOwners: cfg.Feature.InactivityIncludeProfessors,
			DeletionEnabled:      cfg.Feature.InactivityDeletionEnabled,
		},
		Logger: logger,
	}
	// Only assign a non-nil implementation so the engine's nil check holds.
	switch {
	case ov.Metrics != nil:
		deps.Metrics = ov.Metrics
	case cfg.Observability.EnableMetrics:
		awsCfg, err := awsLoader(ctx)
		if err != nil {
			pool.Close()
			return nil, err
		}
		deps.Metrics = telemetry.NewCloudWatchRunMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			cfg.Feature.InactivityDeletionEnabled,
			logger,
		)
	}

	runner := scheduler.NewRunner(
		db.NewJobLockRepository(pool),
		db.NewJobHistoryRepository(pool),
		cfg.Lifecycle.LockTTL,
		logger,
	)

	logger.InfoContext(ctx, "lifecycle stack ready",
		"notifier_mode", cfg.Notifier.Mode,
		"deletion_enabled", cfg.Feature.InactivityDeletionEnabled,
		"include_professors", cfg.Feature.InactivityIncludeProfessors,
		"metrics_enabled", deps.Metrics != nil,
		"worker_id", runner.WorkerID(),
	)

	return &Stack{
		Pool:     pool,
		Engine:   lifecycle.NewEngine(deps),
		Runner:   runner,
		Defaults: DefaultRunParams(cfg.Lifecycle),
	}, nil
}

// DefaultRunParams maps the configured thresholds to engine parameters.
func DefaultRunParams(lc config.LifecycleConfig) lifecycle.RunParams {
	return lifecycle.RunParams{
		RetentionDays:     lc.RetentionDays,
		WarnLeadDays:      lc.WarnLeadDays,
		MaxWarningsPerRun: lc.MaxWarningsPerRun,
	}
}

// AWSLoader returns the shared SDK config.
type AWSLoader func(ctx context.Context) (aws.Config, error)

// lazyAWS loads the SDK config on first use. Local runs in direct mode with
// metrics off never touch AWS.
func lazyAWS(c config.AWSConfig) AWSLoader {
	var (
		loaded aws.Config
		done   bool
	)
	return func(ctx context.Context) (aws.Config, error) {
		if done {
			return loaded, nil
		}
		awsCfg, err := c.LoadAWS(ctx)
		if err != nil {
			return aws.Config{}, err
		}
		loaded, done = awsCfg, true
		return loaded, nil
	}
}

// BuildNotifier returns the SQS publisher in queue mode and the synchronous
// email notifier otherwise.
func BuildNotifier(ctx context.Context, cfg *config.Config, loadAWS AWSLoader, logger *slog.Logger) (lifecycle.Notifier, error) {
	if cfg.Notifier.Mode == config.NotifierQueue {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return queue.NewWarningPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger), nil
	}
	return BuildEmailNotifier(ctx, cfg.Environment, cfg.Email, cfg.AWS, logger)
}

// BuildEmailNotifier wires the renderer and the configured provider. The
// email worker uses it without a database.
func BuildEmailNotifier(ctx context.Context, environment string, emailCfg config.EmailConfig, awsCfg config.AWSConfig, logger *slog.Logger, opts ...external.RegistryOption) (*emailpkg.WarningNotifier, error) {
	registry, err := external.NewClientRegistry(ctx, environment, emailCfg, awsCfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("building email provider: %w", err)
	}
	renderer, err := emailpkg.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading email templates: %w", err)
	}
	return emailpkg.NewWarningNotifier(emailpkg.WarningNotifierConfig{
		Provider: registry.Email,
		Renderer: renderer,
		Sender: types.SenderIdentity{
			Name:    emailCfg.FromName,
			Address: emailCfg.FromAddress,
		},
		TemplateID: emailCfg.InactivityTemplateID,
		Logger:     logger,
	}), nil
}

// NewLogger creates a JSON slog.Logger on stdout for the given level.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON slog.Logger writing to w.
func NewLoggerTo(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(contextHandler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})})
}

// contextHandler stamps request_id and actor from the record's context onto
// every line, so code below the HTTP layer logs them without plumbing.
// Keys the call site already logged are not repeated.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := types.ContextAttrs(ctx)
	if len(extra) == 0 {
		return h.Handler.Handle(ctx, r)
	}
	present := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	for _, a := range extra {
		if !present[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
