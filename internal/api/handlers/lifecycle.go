// Package handlers contains the HTTP handler implementations for the
// EduPlatform operator API.
//
// This file implements the inactivity lifecycle handler mounted under
// /v1/admin/inactivity. It covers:
//   - Triggering a cleanup run
//   - Previewing warn and delete candidates
//   - Manually warning or deleting specific accounts
//   - Listing recent runs from job_history
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"eduplatform/internal/core"
	"eduplatform/internal/db"
	"eduplatform/internal/lifecycle"
	"eduplatform/internal/scheduler"
	"eduplatform/internal/types"
)

// --- Service Interfaces ---

// InactivityEngine is the lifecycle service used by the handler.
// Mirrors the lifecycle.Engine methods.
type InactivityEngine interface {
	Run(ctx context.Context, params lifecycle.RunParams) (lifecycle.RunSummary, error)
	Preview(ctx context.Context, params lifecycle.PreviewParams) (lifecycle.PreviewResult, error)
	SendWarnings(ctx context.Context, accountIDs []string, params lifecycle.PreviewParams) (lifecycle.ManualWarnResult, error)
	DeleteAccounts(ctx context.Context, accountIDs []string) (lifecycle.ManualDeleteResult, error)
}

// JobRunner serializes runs and exposes their history.
// Mirrors the scheduler.Runner methods.
type JobRunner interface {
	RunExclusive(ctx context.Context, task scheduler.TaskType, fn scheduler.JobFunc) (int, error)
	Recent(ctx context.Context, task scheduler.TaskType, limit int) ([]db.JobRun, error)
}

// --- Request/Response Models ---

// RunRequest is the optional body of POST /run. Absent fields take the
// configured defaults.
type RunRequest struct {
	RetentionDays     *int `json:"retention_days"`
	WarnLeadDays      *int `json:"warn_lead_days"`
	MaxWarningsPerRun *int `json:"max_warnings_per_run"`
}

// ManualWarnRequest is the body of POST /warnings.
type ManualWarnRequest struct {
	AccountIDs    []string `json:"account_ids" validate:"min=1,max=5000"`
	RetentionDays *int     `json:"retention_days"`
	WarnLeadDays  *int     `json:"warn_lead_days"`
}

// RunResponse is the body returned by POST /run. Partial is set when the
// pass was interrupted before it visited every account.
type RunResponse struct {
	lifecycle.RunSummary
	Partial bool `json:"partial,omitempty"`
}

// ManualWarnResponse is the body returned by POST /warnings.
type ManualWarnResponse struct {
	lifecycle.ManualWarnResult
	Partial bool `json:"partial,omitempty"`
}

// ManualDeleteRequest is the body of POST /deletions.
type ManualDeleteRequest struct {
	AccountIDs []string `json:"account_ids" validate:"min=1,max=5000"`
}

// --- Constants ---

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// --- Handler ---

// LifecycleHandler exposes the inactivity lifecycle to operators.
type LifecycleHandler struct {
	engine    InactivityEngine
	runner    JobRunner
	defaults  lifecycle.RunParams
	validator *core.Validator
	logger    *slog.Logger
}

// NewLifecycleHandler creates a LifecycleHandler. defaults carries the
// configured thresholds; request fields override them per call.
func NewLifecycleHandler(
	engine InactivityEngine,
	runner JobRunner,
	defaults lifecycle.RunParams,
	v *core.Validator,
	l *slog.Logger,
) *LifecycleHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &LifecycleHandler{
		engine:    engine,
		runner:    runner,
		defaults:  defaults,
		validator: v,
		logger:    l,
	}
}

// Routes registers the handler under /inactivity. It is a
// core.RouteRegistrar.
func (h *LifecycleHandler) Routes(r chi.Router) {
	r.Route("/inactivity", func(r chi.Router) {
		r.Post("/run", h.Run)
		r.Get("/preview", h.Preview)
		r.Post("/warnings", h.SendWarnings)
		r.Post("/deletions", h.DeleteAccounts)
		r.Get("/runs", h.ListRuns)
	})
}

// --- Handler Methods ---

// Run handles POST /v1/admin/inactivity/run.
// The run holds the lifecycle lock; a concurrent run gets 409
// conflict_run_in_progress.
func (h *LifecycleHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	params := h.defaults
	params.Trigger = types.TriggerFrom(r.Context(), "admin_api")
	if req.RetentionDays != nil {
		params.RetentionDays = *req.RetentionDays
	}
	if req.WarnLeadDays != nil {
		params.WarnLeadDays = *req.WarnLeadDays
	}
	if req.MaxWarningsPerRun != nil {
		params.MaxWarningsPerRun = *req.MaxWarningsPerRun
	}

	var summary lifecycle.RunSummary
	_, err := h.runner.RunExclusive(detached(r), scheduler.TaskInactivityCleanup, scheduler.CleanupJob(h.engine, params, &summary))
	partial := interrupted(err)
	if err != nil && !partial {
		h.logFailure(r, "inactivity run failed", err)
		core.Error(w, r, err)
		return
	}
	if partial {
		h.logger.WarnContext(r.Context(), "inactivity run interrupted, returning partial counts",
			"warned", summary.Warned,
			"deleted", summary.Deleted,
			"checked", summary.Checked,
			"error", err,
		)
	}

	core.Data(w, r, http.StatusOK, RunResponse{RunSummary: summary, Partial: partial})
}

// Preview handles GET /v1/admin/inactivity/preview.
func (h *LifecycleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	params, err := h.previewParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.engine.Preview(r.Context(), params)
	if err != nil {
		h.logFailure(r, "inactivity preview failed", err)
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, result)
}

// SendWarnings handles POST /v1/admin/inactivity/warnings.
// Ids outside their warn window are ignored. The call races the automatic
// run, so it takes the lifecycle lock too.
func (h *LifecycleHandler) SendWarnings(w http.ResponseWriter, r *http.Request) {
	var req ManualWarnRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	params := lifecycle.PreviewParams{
		RetentionDays: h.defaults.RetentionDays,
		WarnLeadDays:  h.defaults.WarnLeadDays,
	}
	if req.RetentionDays != nil {
		params.RetentionDays = *req.RetentionDays
	}
	if req.WarnLeadDays != nil {
		params.WarnLeadDays = *req.WarnLeadDays
	}

	var result lifecycle.ManualWarnResult
	_, err := h.runner.RunExclusive(detached(r), scheduler.TaskInactivityManualWarn, func(ctx context.Context) (int, error) {
		var warnErr error
		result, warnErr = h.engine.SendWarnings(ctx, req.AccountIDs, params)
		return result.Sent, warnErr
	})
	partial := interrupted(err)
	if err != nil && !partial {
		h.logFailure(r, "manual inactivity warnings failed", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual inactivity warnings sent",
		"requested", len(req.AccountIDs),
		"sent", result.Sent,
		"partial", partial,
	)
	core.Data(w, r, http.StatusOK, ManualWarnResponse{ManualWarnResult: result, Partial: partial})
}

// detached keeps the request's values (request id, actor, trigger) but
// drops its deadline and cancellation: a run has no time limit and outlives
// a dropped client.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// interrupted reports whether err only says the pass was cut short. The
// engine returns its partial counts alongside such an error.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// DeleteAccounts handles POST /v1/admin/inactivity/deletions.
// Deletion is unconditional; unknown ids are skipped.
func (h *LifecycleHandler) DeleteAccounts(w http.ResponseWriter, r *http.Request) {
	var req ManualDeleteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.engine.DeleteAccounts(r.Context(), req.AccountIDs)
	if err != nil {
		h.logFailure(r, "manual account deletion failed", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual account deletion complete",
		"requested", len(req.AccountIDs),
		"deleted", result.Deleted,
	)
	core.Data(w, r, http.StatusOK, result)
}

// ListRuns handles GET /v1/admin/inactivity/runs.
func (h *LifecycleHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > maxRunsLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidParams,
				"limit must be a number between 1 and 100",
				err,
				map[string]any{"param": "limit"},
			))
			return
		}
		limit = n
	}

	runs, err := h.runner.Recent(r.Context(), scheduler.TaskInactivityCleanup, limit)
	if err != nil {
		h.logFailure(r, "listing inactivity runs failed", err)
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, runs)
}

// --- Helpers ---

func (h *LifecycleHandler) previewParams(r *http.Request) (lifecycle.PreviewParams, error) {
	params := lifecycle.PreviewParams{
		RetentionDays: h.defaults.RetentionDays,
		WarnLeadDays:  h.defaults.WarnLeadDays,
	}

	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"retention_days", &params.RetentionDays},
		{"warn_lead_days", &params.WarnLeadDays},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidParams,
				p.name+" must be an integer",
				err,
				map[string]any{"param": p.name},
			)
		}
		*p.dst = n
	}
	return params, nil
}

// logFailure logs unexpected failures. A held lock is an expected outcome
// and only logged at info.
func (h *LifecycleHandler) logFailure(r *http.Request, msg string, err error) {
	if errors.Is(err, scheduler.ErrLockHeld) {
		h.logger.InfoContext(r.Context(), "inactivity lock held, request refused",
			"path", r.URL.Path,
		)
		return
	}
	h.logger.ErrorContext(r.Context(), msg,
		"path", r.URL.Path,
		"request_id", types.GetRequestID(r.Context()),
		"error", err,
	)
}
