// Package main is the entrypoint for the lifecycle worker Lambda function.
//
// An EventBridge rule invokes it with a scheduler.MaintenancePayload, usually
// once a day. The handler merges the payload overrides onto the configured
// thresholds and runs the inactivity cleanup under the shared lifecycle
// lock, so an overlapping API or CLI run makes the invocation a no-op.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"eduplatform/internal/app"
	"eduplatform/internal/config"
	"eduplatform/internal/lifecycle"
	"eduplatform/internal/scheduler"
)

// ExclusiveRunner abstracts the locked job execution.
type ExclusiveRunner interface {
	RunExclusive(ctx context.Context, task scheduler.TaskType, fn scheduler.JobFunc) (int, error)
}

// Handler holds the dependencies for the lifecycle Lambda handler function.
type Handler struct {
	Engine   scheduler.Cleaner
	Runner   ExclusiveRunner
	Defaults lifecycle.RunParams
	Logger   *slog.Logger
}

// Handle processes a MaintenancePayload from EventBridge.
//
//  1. Default an empty task to inactivity_cleanup and reject anything else.
//  2. Merge overrides and the optional reference time onto the defaults.
//  3. Run the engine under the lifecycle lock; a held lock is a skip.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if payload.Task == "" {
		payload.Task = scheduler.TaskInactivityCleanup
	}
	if payload.Task != scheduler.TaskInactivityCleanup {
		return "", fmt.Errorf("unknown task type: %q", payload.Task)
	}

	defaults := h.Defaults
	defaults.Trigger = "schedule"
	params := payload.RunParams(defaults)

	logger.InfoContext(ctx, "lifecycle worker invoked",
		"task", string(payload.Task),
		"reference_time", referenceTime(params),
		"retention_days", params.RetentionDays,
		"warn_lead_days", params.WarnLeadDays,
	)

	var summary lifecycle.RunSummary
	_, err := h.Runner.RunExclusive(ctx, payload.Task, scheduler.CleanupJob(h.Engine, params, &summary))
	if errors.Is(err, scheduler.ErrLockHeld) {
		logger.InfoContext(ctx, "lifecycle lock held by another worker, skipping")
		return "skipped: lifecycle lock held by another worker", nil
	}
	if err != nil {
		return "", err
	}

	result := fmt.Sprintf("task %s complete: %d warned, %d deleted, %d checked",
		payload.Task, summary.Warned, summary.Deleted, summary.Checked)
	logger.InfoContext(ctx, result,
		"warned", summary.Warned,
		"deleted", summary.Deleted,
		"checked", summary.Checked,
	)
	return result, nil
}

func referenceTime(p lifecycle.RunParams) string {
	if p.Now.IsZero() {
		return "now"
	}
	return p.Now.Format(time.RFC3339)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("lifecycle worker initializing (cold start)")

	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	// The pool survives across warm invocations.
	stack, err := app.Build(context.Background(), cfg, logger, app.Overrides{})
	if err != nil {
		logger.Error("failed to wire lifecycle stack", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		Engine:   stack.Engine,
		Runner:   stack.Runner,
		Defaults: stack.Defaults,
		Logger:   logger,
	}

	logger.Info("lifecycle worker initialized",
		"worker_id", stack.Runner.WorkerID(),
		"version", cfg.Build.Version,
	)

	lambda.Start(handler.Handle)
}
