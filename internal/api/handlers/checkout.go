// Package handlers contains the HTTP handler implementations for the
// cinemagic billing API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinemagic/internal/core"
)

// CheckoutStarter is the billing surface the checkout handler depends on.
type CheckoutStarter interface {
	// StartCheckout resolves the user's billing identity and returns the
	// hosted checkout session URL.
	StartCheckout(ctx context.Context, userID, priceID, returnURL string) (string, error)
}

// CreateCheckoutRequest is the body of POST /create-checkout-session.
// priceId and return_url are optional; configured defaults apply.
type CreateCheckoutRequest struct {
	UserID    string `json:"userId" validate:"required"`
	PriceID   string `json:"priceId"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// CheckoutResponse carries the hosted session URL the client redirects to.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CheckoutHandler serves checkout session creation.
type CheckoutHandler struct {
	service   CheckoutStarter
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler.
func NewCheckoutHandler(service CheckoutStarter, v *core.Validator, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		service:   service,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the checkout endpoint.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/create-checkout-session", h.Create)
}

// Create handles POST /create-checkout-session.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sessionURL, err := h.service.StartCheckout(r.Context(), req.UserID, req.PriceID, req.ReturnURL)
	if err != nil {
		h.logger.WarnContext(r.Context(), "checkout session creation failed",
			"user_id", req.UserID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: sessionURL})
}
