package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
)

// check vets operator input before it is stored. The returned note is shown
// on success.
type check func(ctx context.Context, input string) (string, error)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

const (
	probeTimeout           = 15 * time.Second
	defaultSendGridBaseURL = "https://api.sendgrid.com"
	userAgent              = "EduPlatform-Bootstrap/1.0"
	maxProbeBody           = 4 << 10
)

// Checks holds the network dependencies of the input checks.
type Checks struct {
	http            HTTPClient
	db              DatabaseConnector
	fields          *validator.Validate
	sendGridBaseURL string
}

func NewChecks() *Checks {
	return NewChecksWithDeps(&http.Client{Timeout: 10 * time.Second}, PgxConnector{})
}

func NewChecksWithDeps(httpClient HTTPClient, db DatabaseConnector) *Checks {
	return &Checks{
		http:            httpClient,
		db:              db,
		fields:          validator.New(),
		sendGridBaseURL: defaultSendGridBaseURL,
	}
}

// DatabaseURL parses raw with pgx and connects once with it.
func (c *Checks) DatabaseURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", errors.New("database URL must not be empty")
	case !strings.HasPrefix(raw, "postgres://") && !strings.HasPrefix(raw, "postgresql://"):
		return "", errors.New("expected a postgres:// or postgresql:// URL")
	}

	cfg, err := pgx.ParseConfig(raw)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}
	if cfg.Database == "" {
		return "", errors.New("connection string must name a database")
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := c.db.Connect(ctx, raw); err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	return fmt.Sprintf("connected to %s on %s:%d", cfg.Database, cfg.Host, cfg.Port), nil
}

type sendGridCredits struct {
	Remain *int `json:"remain"`
}

// SendGridKey checks the SG. prefix and reads /v3/user/credits, which any
// key with mail access may call.
func (c *Checks) SendGridKey(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", errors.New("SendGrid API key must not be empty")
	case !strings.HasPrefix(key, "SG."):
		return "", errors.New("SendGrid API keys start with 'SG.'")
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sendGridBaseURL+"/v3/user/credits", nil)
	if err != nil {
		return "", fmt.Errorf("building SendGrid probe: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("SendGrid probe failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("SendGrid returned HTTP %d: key is invalid or lacks permissions", resp.StatusCode)
	default:
		return "", fmt.Errorf("SendGrid returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200))
	}

	var credits sendGridCredits
	if err := json.Unmarshal(body, &credits); err != nil || credits.Remain == nil {
		return "", errors.New("SendGrid response carried no credit information")
	}
	return fmt.Sprintf("SendGrid key accepted (%d credits remaining)", *credits.Remain), nil
}

// HTTPURL returns a check accepting absolute http(s) URLs, such as the
// dashboard base URL or an SQS queue URL.
func (c *Checks) HTTPURL(label string) check {
	return func(_ context.Context, input string) (string, error) {
		input = strings.TrimSpace(input)
		if input == "" {
			return "", fmt.Errorf("%s must not be empty", label)
		}
		if err := c.fields.Var(input, "http_url"); err != nil {
			return "", fmt.Errorf("%s must be an absolute http(s) URL", label)
		}
		return label + " looks valid", nil
	}
}

func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
