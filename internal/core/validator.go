package core

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"cinemagic/internal/types"
)

// ValidationError describes a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates validation errors and non-fatal warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether the result contains no errors. Warnings do not
// affect validity.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator and maps tag failures onto the
// service's error codes.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator. A nil logger is replaced with the
// default slog logger so handler tests can pass nil.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates s and returns nil when it passes. On failure it
// returns a *types.AppError whose Code reflects the first field failure and
// whose Details carry the full list under "validation_errors".
func (v *Validator) ValidateStruct(s interface{}) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		fmt.Sprintf("validation failed for field %q", first.Field),
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and returns the full result instead
// of collapsing it into an error.
func (v *Validator) ValidateStructWithWarnings(s interface{}) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: s was not a struct. Treat as a programmer
		// error but surface it as a field failure so callers still get a 400.
		v.logger.Error("validator received non-struct value", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: "invalid request",
		})
		return result
	}

	for _, fe := range validationErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fieldName(fe),
			Code:    string(codeForTag(fe.Tag())),
			Message: messageForTag(fe),
		})
	}
	return result
}

// fieldName returns the JSON-ish name of the failing field. The validator
// namespace is "Struct.Field"; we strip the struct prefix and lower the
// leading character to match the request body casing.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func codeForTag(tag string) types.ErrorCode {
	if tag == "required" {
		return types.ErrCodeValidationMissingField
	}
	return types.ErrCodeValidationInvalidField
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
