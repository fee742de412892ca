package billing

import (
	"encoding/json"
	"time"

	"cinemagic/internal/types"
)

// stripeEventEnvelope is a minimal representation of a Stripe webhook event,
// decoupled from the stripe-go event type: only the fields this service
// routes on are declared, and tests can build payloads by hand.
type stripeEventEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeEventObject holds the union of fields read from the data objects of
// the handled event types. For checkout sessions, "customer" is the customer
// reference; for subscription events, "customer", "id" and "status" are set.
type stripeEventObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// ParseEvent converts a verified raw webhook payload into a BillingEvent.
// It must only be called after signature verification. A body that cannot be
// parsed, or that lacks an event ID or type, is a malformed payload.
func ParseEvent(payload []byte) (*types.BillingEvent, error) {
	var envelope stripeEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeWebhookPayloadMalformed,
			"webhook payload is not a valid event",
			err,
		)
	}

	if envelope.ID == "" || envelope.Type == "" {
		return nil, types.NewAppError(
			types.ErrCodeWebhookPayloadMalformed,
			"webhook event is missing id or type",
			nil,
		)
	}

	event := &types.BillingEvent{
		EventID:    envelope.ID,
		Type:       envelope.Type,
		OccurredAt: time.Unix(envelope.Created, 0).UTC(),
	}

	if len(envelope.Data.Object) > 0 {
		var obj stripeEventObject
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeWebhookPayloadMalformed,
				"webhook event data object is malformed",
				err,
			)
		}
		event.CustomerRef = obj.Customer
		if envelope.Type == types.EventSubUpdated || envelope.Type == types.EventSubDeleted {
			event.SubscriptionRef = obj.ID
			event.NewStatus = obj.Status
		}
	}

	return event, nil
}
