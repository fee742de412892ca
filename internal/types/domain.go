package types

import "time"

// SubscriptionStatus is the stored subscription state for a user profile.
// It is the enumerated projection of Stripe's subscription lifecycle onto
// the states the entitlement gate cares about.
type SubscriptionStatus string

const (
	SubStatusNone     SubscriptionStatus = "none"
	SubStatusFree     SubscriptionStatus = "free"
	SubStatusTrial    SubscriptionStatus = "trial"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// IsKnown reports whether s is one of the enumerated statuses.
func (s SubscriptionStatus) IsKnown() bool {
	switch s {
	case SubStatusNone, SubStatusFree, SubStatusTrial,
		SubStatusActive, SubStatusPastDue, SubStatusCanceled:
		return true
	}
	return false
}

// MapStripeStatus converts a Stripe subscription status string into the
// stored enum. Stripe's "trialing" becomes "trial"; anything outside the
// enumerated set maps to "none" (callers log the original value).
func MapStripeStatus(status string) SubscriptionStatus {
	switch status {
	case "active":
		return SubStatusActive
	case "trialing":
		return SubStatusTrial
	case "past_due":
		return SubStatusPastDue
	case "canceled":
		return SubStatusCanceled
	}
	if s := SubscriptionStatus(status); s.IsKnown() {
		return s
	}
	return SubStatusNone
}

// UserProfile is the persisted profile record the billing core reads and
// mutates. The record itself is owned by the signup flow; this service only
// touches the billing fields.
type UserProfile struct {
	UserID             string
	StripeCustomerID   string // empty until a billing identity is provisioned
	SubscriptionStatus SubscriptionStatus
	RemainingTrialUses int
	// LastBillingEventAt is the semantic timestamp of the last applied
	// subscription event, used to reject out-of-order webhook deliveries.
	LastBillingEventAt *time.Time
	UpdatedAt          time.Time
}

// BillingEvent is the verified, parsed form of an inbound Stripe webhook
// event. It is transient: only its EventID is persisted, as the dedup marker.
type BillingEvent struct {
	EventID         string
	Type            string
	CustomerRef     string
	SubscriptionRef string
	// NewStatus carries the raw provider status for subscription lifecycle
	// events; empty for other event types.
	NewStatus  string
	OccurredAt time.Time
}

// Stripe event type constants prevent magic strings in the reconciler.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
)

// EntitlementDecision is the gate's verdict for a metered-operation attempt.
type EntitlementDecision struct {
	Allowed            bool
	Reason             string
	Status             SubscriptionStatus
	RemainingTrialUses int
}

// Entitlement denial reasons surfaced to clients. Human-readable, no
// internal state.
const (
	ReasonLimitReached         = "limit reached"
	ReasonSubscriptionRequired = "subscription required"
)
