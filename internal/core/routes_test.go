package core

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"eduplatform/internal/types"
)

func newMountedServer(t *testing.T, registrars ...RouteRegistrar) *Server {
	t.Helper()
	srv := newTestServer(t)
	srv.Config.Security.AdminAPIKeyHash = adminKeyHash(t)
	srv.AdminRouteRegistrars = registrars
	srv.MountRoutes()
	return srv
}

func pingRegistrar(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		Data(w, r, http.StatusOK, "pong")
	})
}

func TestMountRoutes_HealthIsPublic(t *testing.T) {
	srv := newMountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id header should be set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied globally")
	}
}

func TestMountRoutes_AdminRoutesRequireKey(t *testing.T) {
	srv := newMountedServer(t, pingRegistrar)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/ping", nil)
	req.Header.Set(AdminKeyHeader, testAdminKey)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}
}

func TestMountRoutes_PropagatesRequestID(t *testing.T) {
	srv := newMountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Errorf("X-Request-Id = %q", got)
	}
}

func TestMountRoutes_CompressesLargeResponses(t *testing.T) {
	big := strings.Repeat("stu_0000000000,", 2000)
	srv := newMountedServer(t, func(r chi.Router) {
		r.Get("/big", func(w http.ResponseWriter, r *http.Request) {
			Data(w, r, http.StatusOK, big)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/big", nil)
	req.Header.Set(AdminKeyHeader, testAdminKey)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers = %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "stu_0000000000") {
		t.Error("decompressed body mismatch")
	}
}

func TestMountRoutes_UnknownRoute(t *testing.T) {
	srv := newMountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(types.ErrCodeNotFoundRoute) || detail.RequestID == "" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestMountRoutes_MethodNotAllowed(t *testing.T) {
	srv := newMountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(types.ErrCodeMethodNotAllowed) {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestRequestIDMiddleware_ReplacesUnusableIDs(t *testing.T) {
	for _, supplied := range []string{strings.Repeat("a", maxRequestIDLen+1), "has space", "tab\tid"} {
		var seen string
		handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = types.GetRequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", supplied)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen == supplied || len(seen) != 32 {
			t.Errorf("supplied %q: context id = %q", supplied, seen)
		}
		if rec.Header().Get("X-Request-Id") != seen {
			t.Errorf("supplied %q: response header and context disagree", supplied)
		}
	}
}

func TestContextTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := ContextTimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !hasDeadline {
		t.Error("request context should carry a deadline")
	}
}

func TestGenerateRequestID_Format(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a == b {
		t.Error("ids should be unique")
	}
}
