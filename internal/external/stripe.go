package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"cinemagic/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API directly through BaseClient
// rather than via the stripe-go bindings, so every call shares the same
// circuit breaker, retries, and error mapping as the rest of the service,
// and tests run against httptest servers. The stripe-go module is still
// used for its API version constant and webhook signature validation.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with the standard retry policy.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"cinemagic/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient around a caller-provided
// BaseClient. Tests use this to disable retries or inject a tight breaker.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreateCustomer provisions a Stripe customer carrying the user ID in
// metadata, so webhook events can be mapped back to a profile even if the
// local association is ever lost.
func (s *StripeClient) CreateCustomer(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("metadata[user_id]", userID)

	resp, err := s.doPost(ctx, "/v1/customers", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCustomer")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe customer response",
			err,
		)
	}
	return customer.ID, nil
}

// DeleteCustomer removes a Stripe customer. The identity resolver calls this
// when it loses the attach race and must discard the customer it provisioned.
func (s *StripeClient) DeleteCustomer(ctx context.Context, customerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.baseURL+"/v1/customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build Stripe request", err)
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError("DeleteCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "DeleteCustomer")
	}
	return nil
}

// CheckoutParams carries the inputs for CreateCheckoutSession.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int
}

// CreateCheckoutSession requests a subscription-mode hosted checkout session
// and returns its redirect URL.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	params := url.Values{}
	params.Set("customer", p.CustomerID)
	params.Set("mode", "subscription")
	params.Set("line_items[0][price]", p.PriceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	if p.TrialDays > 0 {
		params.Set("subscription_data[trial_period_days]", strconv.Itoa(p.TrialDays))
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe checkout session response",
			err,
		)
	}
	return session.URL, nil
}

// doPost performs an authenticated POST with a form-encoded body, the wire
// format the Stripe REST API expects.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// stripeErrorResponse is the JSON error envelope the Stripe API returns.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse decodes a non-200 Stripe response into an AppError
// carrying Stripe's own message, so the caller surfaces the processor's
// rejection reason rather than a generic failure.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with unreadable body", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
			map[string]any{
				"stripe_code": stripeErr.Error.Code,
				"stripe_type": stripeErr.Error.Type,
			},
		)
	}
}

// wrapStripeError adds operation context to a transport failure. Errors from
// BaseClient are already AppErrors with the right code and pass through.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// Minimal Stripe response shapes; only the fields this service reads.

type stripeCustomer struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookVerifier abstracts Stripe webhook signature checking, so handlers
// can be tested without computing real HMAC signatures.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier implements WebhookVerifier with stripe-go's ValidatePayload:
// HMAC-SHA256 over the raw body, constant-time comparison, and timestamp
// tolerance against replay.
type StripeVerifier struct{}

func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

var _ WebhookVerifier = (*StripeVerifier)(nil)
