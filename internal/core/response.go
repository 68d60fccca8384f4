package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"eduplatform/internal/types"
)

// maxRequestBodySize caps admin request bodies. 5000 account ids fit with
// room to spare.
const maxRequestBodySize = 1 << 20

// APIResponse wraps every successful body as {"data": ...}.
type APIResponse struct {
	Data any `json:"data"`
}

// APIErrorResponse wraps every failure as {"error": {...}}.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON marshals v before touching the writer so that a marshal failure can
// still become a clean 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope(r, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to marshal response", err)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Data writes v inside the success envelope.
func Data(w http.ResponseWriter, r *http.Request, status int, v any) {
	JSON(w, r, status, APIResponse{Data: v})
}

// Error writes err as an error envelope. An *AppError anywhere in the chain
// supplies status, code, message and details; anything else becomes an
// opaque 500 so driver and network text never reach the operator.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := types.AsAppError(err)
	if !ok {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", err)
	}
	JSON(w, r, appErr.HTTPStatus(), errorEnvelope(r, appErr))
}

func errorEnvelope(r *http.Request, appErr *types.AppError) APIErrorResponse {
	return APIErrorResponse{Error: ErrorDetail{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: types.GetRequestID(r.Context()),
	}}
}

// DecodeJSON strictly decodes a single JSON object into dst. Unknown fields,
// trailing values, empty and oversized bodies are validation_invalid_json.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// DecodeOptionalJSON behaves like DecodeJSON but leaves dst untouched when
// the body is empty. Used by endpoints whose body only carries overrides.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return invalidJSON("request body must not be empty", nil)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return mapDecodeError(err)
	}
	if dec.More() {
		return invalidJSON("request body must contain a single JSON object", nil)
	}
	return nil
}

func invalidJSON(msg string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidJSON, msg, err)
}

func mapDecodeError(err error) *types.AppError {
	var (
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		mismatch *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		return invalidJSON("request body must not exceed 1MB", err)
	case errors.As(err, &syntax):
		return invalidJSON("malformed JSON in request body", err)
	case errors.As(err, &mismatch):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON, "invalid value for field", err,
			map[string]any{"field": mismatch.Field, "expected": mismatch.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return invalidJSON("unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	case errors.Is(err, io.EOF):
		return invalidJSON("request body must not be empty", err)
	default:
		return invalidJSON("invalid JSON in request body", err)
	}
}
