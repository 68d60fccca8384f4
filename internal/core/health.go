package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds GET /health as a whole. A probe still running
// at the deadline is reported as timed out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency the API cannot serve without.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe turns a Pinger into a HealthProbe.
type PingProbe struct {
	Component string
	Target    Pinger
}

func (p PingProbe) Name() string { return p.Component }

func (p PingProbe) Check(ctx context.Context) error {
	if p.Target == nil {
		return fmt.Errorf("%s is not configured", p.Component)
	}
	return p.Target.Ping(ctx)
}

type componentStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type probeOutcome struct {
	err     error
	elapsed time.Duration
}

// HandleHealth serves GET /health without authentication. Probes run in
// parallel; any failure or timeout turns the response into a 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// One slot per probe; a slot left nil means the probe missed the deadline.
	slots := make([]chan probeOutcome, len(s.HealthProbes))
	for i, probe := range s.HealthProbes {
		slots[i] = make(chan probeOutcome, 1)
		go func(p HealthProbe, out chan<- probeOutcome) {
			start := time.Now()
			out <- probeOutcome{err: checkProbe(ctx, p), elapsed: time.Since(start)}
		}(probe, slots[i])
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	status := http.StatusOK
	for i, probe := range s.HealthProbes {
		c := componentStatus{Status: "unhealthy", Message: "health check timed out", LatencyMS: healthCheckTimeout.Milliseconds()}
		if o, ok := awaitProbe(ctx, slots[i]); ok {
			c = componentStatus{Status: "healthy", LatencyMS: o.elapsed.Milliseconds()}
			if o.err != nil {
				c.Status, c.Message = "unhealthy", o.err.Error()
			}
		}
		if c.Status != "healthy" {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
			s.Logger.WarnContext(r.Context(), "health probe failed",
				slog.String("component", probe.Name()),
				slog.String("reason", c.Message),
			)
		}
		resp.Components[probe.Name()] = c
	}
	JSON(w, r, status, resp)
}

// awaitProbe prefers a finished result over an expired deadline.
func awaitProbe(ctx context.Context, slot <-chan probeOutcome) (probeOutcome, bool) {
	select {
	case o := <-slot:
		return o, true
	default:
	}
	select {
	case o := <-slot:
		return o, true
	case <-ctx.Done():
		return probeOutcome{}, false
	}
}

// checkProbe converts a panicking probe into an error.
func checkProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
