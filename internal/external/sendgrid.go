package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eduplatform/internal/types"
)

const (
	sendGridAPIBase   = "https://api.sendgrid.com"
	sendGridMailPath  = "/v3/mail/send"
	sendGridCategory  = "inactivity_warning"
	maxErrorBodyBytes = 64 << 10
)

var sendGridRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	MinWait:    500 * time.Millisecond,
	MaxWait:    5 * time.Second,
}

type SendGridClientConfig struct {
	APIKey types.SecretString
	// BaseURL defaults to the public API; tests point it at httptest.
	BaseURL string
	Logger  *slog.Logger
}

// SendGridClient posts to the v3 Mail Send API through BaseClient, so 429
// and 5xx answers are retried behind the circuit breaker.
type SendGridClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(httpClient, "sendgrid", sendGridRetryPolicy, "EduPlatform/1.0",
		WithLogger(loggerOrDefault(cfg.Logger)))
	return NewSendGridClientWithBase(base, cfg)
}

func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  loggerOrDefault(cfg.Logger),
	}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Send returns the X-Message-Id of the accepted message. A TemplateID
// selects a dynamic template fed from TemplateData; otherwise the rendered
// subject and bodies go out as content.
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	body, err := json.Marshal(buildSendGridPayload(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SendGrid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+sendGridMailPath, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())

	resp, err := s.base.Do(req)
	if err != nil {
		if appErr, ok := types.AsAppError(err); ok {
			return "", appErr
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SendGrid request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", sendGridError(resp)
	}
	msgID := resp.Header.Get("X-Message-Id")
	s.logger.DebugContext(ctx, "sendgrid accepted message",
		"message_id", msgID,
		"reference_id", input.ReferenceID,
	)
	return msgID, nil
}

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject,omitempty"`
	Content          []sendGridContent         `json:"content,omitempty"`
	TemplateID       string                    `json:"template_id,omitempty"`
	Categories       []string                  `json:"categories,omitempty"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To          []sendGridAddress `json:"to"`
	DynamicData map[string]any    `json:"dynamic_template_data,omitempty"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func buildSendGridPayload(input types.SendInput) sendGridPayload {
	p := sendGridPayload{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: input.To}}}},
		From:             sendGridAddress{Email: input.From.Address, Name: input.From.Name},
		Categories:       []string{sendGridCategory},
	}

	if input.TemplateID != "" {
		p.TemplateID = input.TemplateID
		p.Personalizations[0].DynamicData = input.TemplateData
	} else {
		p.Subject = input.Subject
		// text/plain must precede text/html
		if input.BodyText != "" {
			p.Content = append(p.Content, sendGridContent{Type: "text/plain", Value: input.BodyText})
		}
		if input.BodyHTML != "" {
			p.Content = append(p.Content, sendGridContent{Type: "text/html", Value: input.BodyHTML})
		}
	}

	if input.ReferenceID != "" {
		p.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return p
}

type sendGridFieldError struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

type sendGridErrorResponse struct {
	Errors []sendGridFieldError `json:"errors"`
}

// describe joins every reported message, or falls back to the raw body.
func (r sendGridErrorResponse) describe(raw []byte) string {
	if len(r.Errors) == 0 {
		return strings.TrimSpace(string(raw))
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// recipientRejected reports a 400 aimed at the to address, which no retry
// can fix.
func (r sendGridErrorResponse) recipientRejected() bool {
	for _, e := range r.Errors {
		if strings.HasPrefix(e.Field, "personalizations.") && strings.Contains(e.Field, ".to") {
			return true
		}
	}
	return false
}

// sendGridError maps a non-202 answer that BaseClient handed back after
// exhausting or skipping retries.
func sendGridError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned %d with an unreadable body", resp.StatusCode), err)
	}

	var parsed sendGridErrorResponse
	_ = json.Unmarshal(raw, &parsed)
	msg := parsed.describe(raw)

	switch status := resp.StatusCode; {
	case status == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeEmailBlocked, "SendGrid blocked delivery: "+msg, nil)
	case status == http.StatusBadRequest && parsed.recipientRejected():
		return types.NewAppError(types.ErrCodeValidationInvalidEmail, "SendGrid rejected recipient: "+msg, nil)
	case status == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SendGrid rate limit exceeded", nil)
	case status >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SendGrid server error: "+msg, nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid error (%d): %s", status, msg), nil)
	}
}

var _ EmailProvider = (*SendGridClient)(nil)
