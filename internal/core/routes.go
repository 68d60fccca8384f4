package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"eduplatform/internal/types"
)

// defaultRequestTimeout bounds every request context. The run and warning
// handlers detach their job from it.
const defaultRequestTimeout = 5 * time.Minute

const (
	requestIDHeader = "X-Request-Id"
	// maxRequestIDLen bounds caller-supplied ids before they are echoed and
	// logged.
	maxRequestIDLen = 128
)

// logRedactedHeaders never appear in request logs with their values.
var logRedactedHeaders = []string{"Authorization", "Cookie", AdminKeyHeader}

// MountRoutes installs the middleware chain, the public health check and
// the key-protected /v1/admin group built from AdminRouteRegistrars.
func (s *Server) MountRoutes() {
	r := s.router

	// Order matters: the recoverer must wrap everything, and the request id
	// must exist before the logger reads it.
	r.Use(
		s.Recoverer,
		ContextTimeoutMiddleware(defaultRequestTimeout),
		RequestIDMiddleware,
		s.SecurityHeadersMiddleware,
		RequestLogger(s.Logger, logRedactedHeaders),
		NewCORSMiddleware(s.corsAllowedOrigins()),
		GzipMiddleware,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "no route for "+r.Method+" "+r.URL.Path, nil))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path, nil))
	})

	r.Get("/health", s.HandleHealth)
	r.Route("/v1/admin", func(admin chi.Router) {
		admin.Use(s.AdminKeyMiddleware)
		for _, mount := range s.AdminRouteRegistrars {
			mount(admin)
		}
	})
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config == nil || len(s.Config.Security.CorsAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.Config.Security.CorsAllowedOrigins
}

// GzipMiddleware compresses preview and run-history bodies; gzhttp leaves
// small responses alone.
func GzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// ContextTimeoutMiddleware gives every request context a deadline. Handlers
// observe it through ctx; nothing is written on expiry.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses a sane caller X-Request-Id or mints one, then
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID(id) {
			id = generateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// generateRequestID returns 32 lowercase hex characters.
func generateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
