package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cinemagic/internal/types"
)

func checkoutEvent() *types.BillingEvent {
	return &types.BillingEvent{
		EventID:     "evt_checkout",
		Type:        types.EventCheckoutCompleted,
		CustomerRef: "cus_abc",
		OccurredAt:  time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func subUpdatedEvent(status string) *types.BillingEvent {
	return &types.BillingEvent{
		EventID:         "evt_sub",
		Type:            types.EventSubUpdated,
		CustomerRef:     "cus_abc",
		SubscriptionRef: "sub_1",
		NewStatus:       status,
		OccurredAt:      time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC),
	}
}

func TestReconciler_Apply_CheckoutCompleted(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	event := checkoutEvent()
	events.On("Claim", mock.Anything, "evt_checkout", types.EventCheckoutCompleted).Return(true, nil)
	profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
		Return(&types.UserProfile{UserID: "user_1", SubscriptionStatus: types.SubStatusFree}, nil)
	// Checkout completion requests trial and must not downgrade an active
	// subscriber (skipIfActive = true).
	profiles.On("UpdateStatusByCustomer", mock.Anything, "cus_abc", types.SubStatusTrial, event.OccurredAt, true).
		Return(true, nil)

	require.NoError(t, r.Apply(context.Background(), event))
	profiles.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestReconciler_Apply_SubscriptionUpdatedVerbatim(t *testing.T) {
	cases := []struct {
		stripeStatus string
		want         types.SubscriptionStatus
	}{
		{"active", types.SubStatusActive},
		{"trialing", types.SubStatusTrial},
		{"past_due", types.SubStatusPastDue},
		{"canceled", types.SubStatusCanceled},
		{"incomplete_expired", types.SubStatusNone}, // unrecognized
	}

	for _, tc := range cases {
		t.Run(tc.stripeStatus, func(t *testing.T) {
			profiles := new(mockProfileStore)
			events := new(mockEventStore)
			r := NewReconciler(profiles, events, nil)

			event := subUpdatedEvent(tc.stripeStatus)
			events.On("Claim", mock.Anything, "evt_sub", types.EventSubUpdated).Return(true, nil)
			profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
				Return(&types.UserProfile{UserID: "user_1"}, nil)
			profiles.On("UpdateStatusByCustomer", mock.Anything, "cus_abc", tc.want, event.OccurredAt, false).
				Return(true, nil)

			require.NoError(t, r.Apply(context.Background(), event))
			profiles.AssertExpectations(t)
		})
	}
}

func TestReconciler_Apply_DuplicateDeliveryIsNoOp(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	events.On("Claim", mock.Anything, "evt_checkout", mock.Anything).Return(false, nil)

	require.NoError(t, r.Apply(context.Background(), checkoutEvent()))
	profiles.AssertNotCalled(t, "GetByCustomerID", mock.Anything, mock.Anything)
	profiles.AssertNotCalled(t, "UpdateStatusByCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_Apply_UnhandledTypeIgnoredWithoutClaim(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	event := &types.BillingEvent{EventID: "evt_inv", Type: "invoice.paid", CustomerRef: "cus_abc"}
	require.NoError(t, r.Apply(context.Background(), event))

	events.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_Apply_UnknownCustomerDropped(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	events.On("Claim", mock.Anything, "evt_checkout", mock.Anything).Return(true, nil)
	profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
		Return(nil, types.NewAppError(types.ErrCodeUnknownCustomer, "no profile for customer", nil))

	// Dropped, not fatal: the webhook must still answer 200.
	require.NoError(t, r.Apply(context.Background(), checkoutEvent()))
	events.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestReconciler_Apply_MissingCustomerRefDropped(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	event := checkoutEvent()
	event.CustomerRef = ""
	events.On("Claim", mock.Anything, "evt_checkout", mock.Anything).Return(true, nil)

	require.NoError(t, r.Apply(context.Background(), event))
	profiles.AssertNotCalled(t, "GetByCustomerID", mock.Anything, mock.Anything)
}

func TestReconciler_Apply_StaleEventIsNoOp(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	event := subUpdatedEvent("active")
	events.On("Claim", mock.Anything, "evt_sub", mock.Anything).Return(true, nil)
	profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
		Return(&types.UserProfile{UserID: "user_1", SubscriptionStatus: types.SubStatusCanceled}, nil)
	// Timestamp guard rejects the write: a late "active" cannot resurrect a
	// canceled subscription.
	profiles.On("UpdateStatusByCustomer", mock.Anything, "cus_abc", types.SubStatusActive, event.OccurredAt, false).
		Return(false, nil)

	require.NoError(t, r.Apply(context.Background(), event))
	events.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestReconciler_Apply_WriteFailureReleasesClaim(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	event := subUpdatedEvent("active")
	events.On("Claim", mock.Anything, "evt_sub", mock.Anything).Return(true, nil)
	profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
		Return(&types.UserProfile{UserID: "user_1"}, nil)
	profiles.On("UpdateStatusByCustomer", mock.Anything, "cus_abc", types.SubStatusActive, event.OccurredAt, false).
		Return(false, types.NewAppError(types.ErrCodeInternalDB, "write failed", errors.New("timeout")))
	events.On("Release", mock.Anything, "evt_sub").Return(nil)

	err := r.Apply(context.Background(), event)
	require.Error(t, err)
	events.AssertCalled(t, "Release", mock.Anything, "evt_sub")
}

func TestReconciler_Apply_LookupFailureReleasesClaim(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	events.On("Claim", mock.Anything, "evt_checkout", mock.Anything).Return(true, nil)
	profiles.On("GetByCustomerID", mock.Anything, "cus_abc").
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "db down", errors.New("refused")))
	events.On("Release", mock.Anything, "evt_checkout").Return(nil)

	err := r.Apply(context.Background(), checkoutEvent())
	require.Error(t, err)
	events.AssertCalled(t, "Release", mock.Anything, "evt_checkout")
}

func TestReconciler_Apply_ClaimFailurePropagates(t *testing.T) {
	profiles := new(mockProfileStore)
	events := new(mockEventStore)
	r := NewReconciler(profiles, events, nil)

	events.On("Claim", mock.Anything, "evt_checkout", mock.Anything).
		Return(false, types.NewAppError(types.ErrCodeInternalDB, "db down", nil))

	err := r.Apply(context.Background(), checkoutEvent())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
