package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is the machine-readable reason carried in every error body.
// Its prefix selects the HTTP status.
type ErrorCode string

const (
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidInput  ErrorCode = "validation_invalid_input"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationBatchSize     ErrorCode = "validation_batch_size_exceeded"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidParams ErrorCode = "validation_invalid_query_parameter"

	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	ErrCodeNotFoundAccount ErrorCode = "not_found_account"
	ErrCodeNotFoundRoute   ErrorCode = "not_found_route"

	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	ErrCodeConflictRunInProgress ErrorCode = "conflict_run_in_progress"

	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamQueue         ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"

	// ErrCodeEmailBlocked marks a recipient the provider refuses permanently.
	// Delivery treats it as terminal rather than retryable.
	ErrCodeEmailBlocked ErrorCode = "email_blocked"
)

// statusByPrefix is scanned in order; exact codes are listed before the
// prefix that would otherwise claim them.
var statusByPrefix = []struct {
	prefix string
	status int
}{
	{string(ErrCodeEmailBlocked), http.StatusForbidden},
	{string(ErrCodeMethodNotAllowed), http.StatusMethodNotAllowed},
	{"validation_", http.StatusBadRequest},
	{"auth_", http.StatusUnauthorized},
	{"not_found_", http.StatusNotFound},
	{"conflict_", http.StatusConflict},
	{"upstream_", http.StatusBadGateway},
}

// HTTPStatus maps the code to a response status, 500 when nothing matches.
func (c ErrorCode) HTTPStatus() int {
	for _, m := range statusByPrefix {
		if strings.HasPrefix(string(c), m.prefix) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// AppError pairs a code and a client-safe message with the internal cause.
// Only Code, Message and Details are ever written to a client.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first *AppError in err's chain, or "" when
// there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
