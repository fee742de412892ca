package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinemagic/internal/billing"
	"cinemagic/internal/core"
	"cinemagic/internal/external"
	"cinemagic/internal/types"
)

// Stripe webhook payloads are small JSON envelopes; 64KB is generous.
const maxWebhookBodySize = 64 * 1024

// EventApplier reconciles a verified billing event into profile state.
type EventApplier interface {
	Apply(ctx context.Context, event *types.BillingEvent) error
}

// WebhookResponse acknowledges receipt of a verified event.
type WebhookResponse struct {
	Success bool `json:"success"`
}

// WebhookHandler serves Stripe webhook deliveries. Signature verification
// gates everything; once a payload is authenticated, delivery is always
// acknowledged with 200 so Stripe does not retry events we have already
// claimed. Processing failures are logged and resolved by redelivery or
// later events.
type WebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler EventApplier
	secret     string
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(verifier external.WebhookVerifier, reconciler EventApplier, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Handle)
}

// Handle handles POST /webhook.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookPayloadMalformed, "failed to read webhook payload", err))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureMissing, "missing Stripe-Signature header", nil))
		return
	}

	if err := h.verifier.Verify(payload, signature, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureInvalid, "webhook signature verification failed", err))
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.reconciler.Apply(r.Context(), event); err != nil {
		// The event is authentic, so acknowledge it regardless. A retry
		// from Stripe with the same event ID is the recovery path.
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.EventID,
			"event_type", event.Type,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, WebhookResponse{Success: true})
}
