//go:build integration

// Full-stack tests against a disposable Postgres container. Run with:
//
//	go test -v -tags integration ./cmd/api/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"eduplatform/internal/app"
	"eduplatform/internal/config"
	"eduplatform/internal/core"
	"eduplatform/internal/types"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []types.InactivityWarning
}

func (n *recordingNotifier) SendInactivityWarning(_ context.Context, w types.InactivityWarning) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, w)
	return nil
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "eduplatform_api",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:password@%s:%s/eduplatform_api?sslmode=disable", host, port.Port())
}

func adminRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(core.AdminKeyHeader, testAdminKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_InactivityRunAgainstPostgres(t *testing.T) {
	dsn := startPostgres(t)
	setTestEnv(t)
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("DB_RUN_MIGRATIONS", "true")

	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)

	ctx := context.Background()
	logger := app.NewLoggerTo(&strings.Builder{}, "error")
	notifier := &recordingNotifier{}

	stack, err := app.Build(ctx, cfg, logger, app.Overrides{Notifier: notifier})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	_, err = stack.Pool.Exec(ctx,
		`INSERT INTO accounts (id, role, email, name, created_at) VALUES
		 ('stu_old', 'student', 'old@school.test', 'Old Student', $1),
		 ('stu_new', 'student', 'new@school.test', 'New Student', $2)`,
		time.Now().AddDate(0, 0, -200), time.Now().AddDate(0, 0, -1),
	)
	require.NoError(t, err)

	srv, err := buildServer(cfg, logger, stack.Engine, stack.Runner, stack.Defaults, stack.Pool)
	require.NoError(t, err)
	h := srv.Handler()

	t.Run("health reports the database", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("run warns only the inactive account", func(t *testing.T) {
		rec := adminRequest(t, h, http.MethodPost, "/v1/admin/inactivity/run", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data struct {
				Warned  int `json:"warned"`
				Deleted int `json:"deleted"`
				Checked int `json:"checked"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Data.Warned)
		assert.Equal(t, 0, resp.Data.Deleted)
		assert.Equal(t, 2, resp.Data.Checked)

		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "stu_old", notifier.sent[0].AccountID)
		assert.Equal(t, "old@school.test", notifier.sent[0].To)
	})

	t.Run("second run does not warn again", func(t *testing.T) {
		rec := adminRequest(t, h, http.MethodPost, "/v1/admin/inactivity/run", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, notifier.sent, 1)

		var warnedAt *time.Time
		require.NoError(t, stack.Pool.QueryRow(ctx,
			`SELECT inactivity_warned_at FROM accounts WHERE id = 'stu_old'`).Scan(&warnedAt))
		assert.NotNil(t, warnedAt)
	})

	t.Run("runs are recorded in job history", func(t *testing.T) {
		rec := adminRequest(t, h, http.MethodGet, "/v1/admin/inactivity/runs?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data []struct {
				Status string `json:"status"`
				Items  int    `json:"items_count"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, 0, resp.Data[0].Items)
		assert.Equal(t, 1, resp.Data[1].Items)
	})

	t.Run("manual delete removes the account", func(t *testing.T) {
		rec := adminRequest(t, h, http.MethodPost, "/v1/admin/inactivity/deletions", `{"account_ids":["stu_old","missing"]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var n int
		require.NoError(t, stack.Pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n))
		assert.Equal(t, 1, n)
	})
}
