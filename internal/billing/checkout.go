package billing

import (
	"context"
	"log/slog"
	"strings"

	"cinemagic/internal/external"
	"cinemagic/internal/types"
)

// CustomerResolver abstracts the identity resolver for testing.
type CustomerResolver interface {
	ResolveOrCreate(ctx context.Context, userID string) (string, error)
}

// CheckoutAPI is the subset of the Stripe client the checkout service needs.
type CheckoutAPI interface {
	CreateCheckoutSession(ctx context.Context, p external.CheckoutParams) (string, error)
}

// CheckoutConfig carries the checkout defaults from service configuration.
type CheckoutConfig struct {
	// DefaultPriceID is used when a request does not name a price.
	DefaultPriceID string
	// ReturnBaseURL is the fallback redirect base when the request omits one.
	ReturnBaseURL string
	// TrialDays is passed to Stripe as subscription_data[trial_period_days].
	TrialDays int
}

// CheckoutService creates hosted checkout sessions for subscription signup.
type CheckoutService struct {
	resolver CustomerResolver
	stripe   CheckoutAPI
	cfg      CheckoutConfig
	logger   *slog.Logger
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(resolver CustomerResolver, stripe CheckoutAPI, cfg CheckoutConfig, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		resolver: resolver,
		stripe:   stripe,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartCheckout resolves the user's billing identity and requests a
// subscription-mode checkout session, returning the hosted session URL.
//
// priceID and returnURL are optional; the configured defaults fill them in.
// Missing userID, or a missing priceID with no configured default, is a
// validation failure.
func (s *CheckoutService) StartCheckout(ctx context.Context, userID, priceID, returnURL string) (string, error) {
	if userID == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "userId is required", nil)
	}

	if priceID == "" {
		priceID = s.cfg.DefaultPriceID
	}
	if priceID == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField,
			"priceId is required and no default price is configured", nil)
	}

	if returnURL == "" {
		returnURL = s.cfg.ReturnBaseURL
	}
	returnURL = strings.TrimSuffix(returnURL, "/")

	customerID, err := s.resolver.ResolveOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	sessionURL, err := s.stripe.CreateCheckoutSession(ctx, external.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: returnURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  returnURL + "/cancel",
		TrialDays:  s.cfg.TrialDays,
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		slog.String("user_id", userID),
		slog.String("price_id", priceID),
	)
	return sessionURL, nil
}
