package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"eduplatform/internal/types"
)

// Validator wraps go-playground/validator and translates its errors into
// API error codes. Field names in errors use the json tag.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s against its validate tags. The first failing
// field decides the error code:
//   - required, or min on a collection -> validation_missing_required_field
//   - max on a collection             -> validation_batch_size_exceeded
//   - anything else                   -> validation_invalid_input
//
// Details carry the field name and the failed rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fe := verrs[0]
	details := map[string]any{
		"field": fe.Field(),
		"rule":  fe.Tag(),
	}
	if fe.Param() != "" {
		details["param"] = fe.Param()
	}

	isCollection := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map || fe.Kind() == reflect.Array

	switch {
	case fe.Tag() == "required" || (isCollection && fe.Tag() == "min"):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			fmt.Sprintf("%s is required", fe.Field()), err, details)
	case isCollection && fe.Tag() == "max":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationBatchSize,
			fmt.Sprintf("%s must not contain more than %s items", fe.Field(), fe.Param()), err, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidInput,
			fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag()), err, details)
	}
}
