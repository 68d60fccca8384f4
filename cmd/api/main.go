// Package main is the entry point for the EduPlatform lifecycle API server.
//
// It loads configuration, wires the inactivity lifecycle stack, mounts the
// operator routes under /v1/admin/inactivity and serves until SIGINT or
// SIGTERM. When LIFECYCLE_SCHEDULE_INTERVAL is set, the same process also
// runs the cleanup on a ticker, for single-box deployments without
// EventBridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"eduplatform/internal/api/handlers"
	"eduplatform/internal/app"
	"eduplatform/internal/config"
	"eduplatform/internal/core"
	"eduplatform/internal/lifecycle"
	"eduplatform/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("lifecycle API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return err
	}
	defer stack.Close()

	srv, err := buildServer(cfg, logger, stack.Engine, stack.Runner, stack.Defaults, stack.Pool)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, ":"+cfg.Server.Port)
	})
	if interval := cfg.Lifecycle.ScheduleInterval; interval > 0 {
		logger.Info("in-process schedule enabled", "interval", interval.String())
		g.Go(func() error {
			err := stack.Runner.Every(gctx, interval, scheduledCleanup(stack.Runner, stack.Engine, stack.Defaults))
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// buildServer mounts the operator routes and the database health probe.
func buildServer(
	cfg *config.Config,
	logger *slog.Logger,
	engine handlers.InactivityEngine,
	runner handlers.JobRunner,
	defaults lifecycle.RunParams,
	db core.Pinger,
) (*core.Server, error) {
	validator := core.NewValidator(logger)
	h := handlers.NewLifecycleHandler(engine, runner, defaults, validator, logger)

	srv, err := core.NewServer(cfg, logger,
		core.WithAdminRoutes(h.Routes),
		core.WithHealthProbes(core.PingProbe{Component: "database", Target: db}),
	)
	if err != nil {
		return nil, err
	}
	srv.Validator = validator
	srv.MountRoutes()
	return srv, nil
}

// scheduledCleanup is the body of the in-process ticker.
func scheduledCleanup(runner handlers.JobRunner, engine scheduler.Cleaner, defaults lifecycle.RunParams) func(ctx context.Context) error {
	params := defaults
	params.Trigger = "schedule"
	return func(ctx context.Context) error {
		_, err := runner.RunExclusive(ctx, scheduler.TaskInactivityCleanup, scheduler.CleanupJob(engine, params, nil))
		return err
	}
}

// secretProvider returns nil locally, where SSM is bypassed.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
}
