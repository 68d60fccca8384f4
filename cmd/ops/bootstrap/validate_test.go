package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockDBConnector records DSNs and returns connectErr.
type mockDBConnector struct {
	connectErr error
	calls      []string
}

func (m *mockDBConnector) Connect(_ context.Context, dsn string) error {
	m.calls = append(m.calls, dsn)
	return m.connectErr
}

func assertCheck(t *testing.T, note string, err error, valid bool, want string) {
	t.Helper()
	if (err == nil) != valid {
		t.Fatalf("valid = %v, want %v (note %q, err %v)", err == nil, valid, note, err)
	}
	msg := note
	if err != nil {
		msg = err.Error()
	}
	if !strings.Contains(msg, want) {
		t.Errorf("message = %q, want substring %q", msg, want)
	}
}

func TestChecks_DatabaseURL(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		connectErr error
		valid      bool
		wantSubstr string
		probed     bool
	}{
		{"valid", "postgres://edu:pw@db.internal:5432/eduplatform", nil, true, "connected to eduplatform on db.internal:5432", true},
		{"postgresql scheme", "postgresql://edu:pw@db.internal/eduplatform", nil, true, ":5432", true},
		{"empty", "  ", nil, false, "must not be empty", false},
		{"wrong scheme", "mysql://edu:pw@db/edu", nil, false, "postgres://", false},
		{"no database", "postgres://edu:pw@db.internal:5432", nil, false, "must name a database", false},
		{"bad port", "postgres://edu:pw@db.internal:notaport/edu", nil, false, "invalid connection string", false},
		{"unreachable", "postgres://edu:pw@db.internal:5432/edu", errors.New("dial tcp: timeout"), false, "connection failed: dial tcp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockDBConnector{connectErr: tt.connectErr}

			note, err := NewChecksWithDeps(nil, conn).DatabaseURL(context.Background(), tt.input)
			assertCheck(t, note, err, tt.valid, tt.wantSubstr)
			if probed := len(conn.calls) > 0; probed != tt.probed {
				t.Errorf("probed = %v, want %v", probed, tt.probed)
			}
		})
	}
}

func sendGridServer(t *testing.T, status int, body string) (*Checks, *string) {
	t.Helper()
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/user/credits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewChecksWithDeps(srv.Client(), nil)
	c.sendGridBaseURL = srv.URL
	return c, &auth
}

func TestChecks_SendGridKey(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		status     int
		body       string
		valid      bool
		wantSubstr string
	}{
		{"valid", "SG.abc.def", http.StatusOK, `{"remain":100,"total":100}`, true, "100 credits remaining"},
		{"not json", "SG.abc.def", http.StatusOK, `remain`, false, "credit information"},
		{"unauthorized", "SG.abc.def", http.StatusUnauthorized, `{}`, false, "HTTP 401"},
		{"forbidden", "SG.abc.def", http.StatusForbidden, `{}`, false, "lacks permissions"},
		{"server error", "SG.abc.def", http.StatusBadGateway, `upstream down`, false, "HTTP 502: upstream down"},
		{"unexpected body", "SG.abc.def", http.StatusOK, `{}`, false, "credit information"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, auth := sendGridServer(t, tt.status, tt.body)

			note, err := c.SendGridKey(context.Background(), tt.key)
			assertCheck(t, note, err, tt.valid, tt.wantSubstr)
			if *auth != "Bearer "+tt.key {
				t.Errorf("Authorization = %q", *auth)
			}
		})
	}
}

func TestChecks_SendGridKeyFormatSkipsProbe(t *testing.T) {
	c := NewChecksWithDeps(nil, nil)

	for _, key := range []string{"", "sk_live_abc"} {
		if _, err := c.SendGridKey(context.Background(), key); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestChecks_HTTPURL(t *testing.T) {
	check := NewChecksWithDeps(nil, nil).HTTPURL("Dashboard URL")

	tests := []struct {
		input string
		valid bool
	}{
		{"https://app.eduplatform.io", true},
		{"https://sqs.us-east-1.amazonaws.com/123456789012/edu-notifications", true},
		{"http://localhost:3000", true},
		{"", false},
		{"app.eduplatform.io", false},
		{"ftp://files.eduplatform.io", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := check(context.Background(), tt.input)
			if (err == nil) != tt.valid {
				t.Errorf("valid = %v, want %v (%v)", err == nil, tt.valid, err)
			}
		})
	}
}

func TestTruncateBody(t *testing.T) {
	if got := truncateBody([]byte("short"), 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateBody([]byte("0123456789abc"), 10); got != "0123456789..." {
		t.Errorf("got %q", got)
	}
}
