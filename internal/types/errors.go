package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidField ErrorCode = "validation_invalid_field"

	// Webhook authentication and parsing (400)
	ErrCodeWebhookSignatureMissing ErrorCode = "webhook_signature_missing"
	ErrCodeWebhookSignatureInvalid ErrorCode = "webhook_signature_invalid"
	ErrCodeWebhookPayloadMalformed ErrorCode = "webhook_payload_malformed"

	// Entitlement denials (403)
	ErrCodeEntitlementProfileNotFound      ErrorCode = "entitlement_profile_not_found"
	ErrCodeEntitlementQuotaExceeded        ErrorCode = "entitlement_quota_exceeded"
	ErrCodeEntitlementSubscriptionRequired ErrorCode = "entitlement_subscription_required"

	// Reconciler (logged and dropped; the webhook endpoint still answers 200)
	ErrCodeUnknownCustomer ErrorCode = "unknown_customer"

	// Internal/Upstream (500)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_error"
	ErrCodeUpstreamMontage     ErrorCode = "upstream_montage_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
//
// Upstream failures map to 500 rather than 502: the checkout endpoint's
// contract promises a plain 500 when the payment provider rejects a call.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "webhook_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "entitlement_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
