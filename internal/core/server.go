// Package core provides the API chassis for the EduPlatform operator API.
// It creates a chi router and enforces cross-cutting concerns (panic
// recovery, request ids, logging, CORS, compression and admin
// authentication) before requests reach domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eduplatform/internal/config"
)

const (
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 2 * time.Minute
	defaultShutdownTimeout = 15 * time.Second
)

// RouteRegistrar mounts a group of domain routes on a router. main supplies
// them so core never imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server holds the API's dependencies. Fields are exported so tests can
// swap them before MountRoutes.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are run by GET /health.
	HealthProbes []HealthProbe
	// AdminRouteRegistrars are mounted under /v1/admin behind
	// AdminKeyMiddleware.
	AdminRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

type ServerOption func(*Server)

func WithAdminRoutes(registrars ...RouteRegistrar) ServerOption {
	return func(s *Server) { s.AdminRouteRegistrars = append(s.AdminRouteRegistrars, registrars...) }
}

func WithHealthProbes(probes ...HealthProbe) ServerOption {
	return func(s *Server) { s.HealthProbes = append(s.HealthProbes, probes...) }
}

// NewServer fails fast on a missing config or logger. Routes are not
// mounted until MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config must not be nil")
	case logger == nil:
		return nil, errors.New("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Router() *chi.Mux { return s.router }

// ListenAndServe binds addr and hands the listener to Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers on ln until ctx ends, then drains in-flight requests for at
// most Config.Server.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	served := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "addr", ln.Addr().String())
		served <- srv.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.Logger.Info("server shutdown initiated", "timeout", timeout.String())
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
