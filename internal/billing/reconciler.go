package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cinemagic/internal/types"
)

// StatusStore is the profile surface the reconciler writes through.
// Implemented by db.ProfileRepo.
type StatusStore interface {
	GetByCustomerID(ctx context.Context, customerID string) (*types.UserProfile, error)
	// UpdateStatusByCustomer applies a status guarded by the event timestamp;
	// returns false for stale or skipped events.
	UpdateStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus, eventTime time.Time, skipIfActive bool) (bool, error)
}

// EventStore is the dedup record surface. Implemented by db.EventRepo.
type EventStore interface {
	Claim(ctx context.Context, eventID, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Reconciler applies verified billing events to stored subscription state.
//
// Idempotence comes from two layers: the event-ID claim (exact duplicates are
// no-ops) and the timestamp guard on every status write (out-of-order
// deliveries cannot roll state backwards).
type Reconciler struct {
	profiles StatusStore
	events   EventStore
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(profiles StatusStore, events EventStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		profiles: profiles,
		events:   events,
		logger:   logger,
	}
}

// Apply processes one verified event. Unhandled event types, duplicates,
// stale deliveries, and events for unknown customers all succeed as no-ops;
// only infrastructure failures return an error, and those release the dedup
// claim so Stripe's redelivery gets another attempt.
func (r *Reconciler) Apply(ctx context.Context, event *types.BillingEvent) error {
	newStatus, skipIfActive, handled := r.transitionFor(ctx, event)
	if !handled {
		r.logger.InfoContext(ctx, "ignoring unhandled event type",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.Type),
		)
		return nil
	}

	claimed, err := r.events.Claim(ctx, event.EventID, event.Type)
	if err != nil {
		return err
	}
	if !claimed {
		r.logger.InfoContext(ctx, "duplicate event delivery ignored",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	if event.CustomerRef == "" {
		// Nothing to resolve against; drop the event but keep the claim so
		// a redelivery of the same broken event stays a no-op.
		r.logger.WarnContext(ctx, "event carries no customer reference, dropped",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.Type),
		)
		return nil
	}

	profile, err := r.profiles.GetByCustomerID(ctx, event.CustomerRef)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUnknownCustomer {
			// A customer this service never attached to a profile. Logged
			// and dropped; the webhook still acknowledges receipt.
			r.logger.WarnContext(ctx, "event references unknown customer, dropped",
				slog.String("event_id", event.EventID),
				slog.String("customer_id", event.CustomerRef),
			)
			return nil
		}
		r.releaseClaim(ctx, event.EventID)
		return err
	}

	applied, err := r.profiles.UpdateStatusByCustomer(ctx, event.CustomerRef, newStatus, event.OccurredAt, skipIfActive)
	if err != nil {
		r.releaseClaim(ctx, event.EventID)
		return err
	}

	if !applied {
		r.logger.InfoContext(ctx, "status write skipped (stale event or active subscriber)",
			slog.String("event_id", event.EventID),
			slog.String("user_id", profile.UserID),
			slog.String("status", string(newStatus)),
		)
		return nil
	}

	r.logger.InfoContext(ctx, "subscription status applied",
		slog.String("event_id", event.EventID),
		slog.String("user_id", profile.UserID),
		slog.String("status", string(newStatus)),
	)
	return nil
}

// transitionFor maps an event type onto the status transition it requests.
// handled is false for event types this service does not act on.
func (r *Reconciler) transitionFor(ctx context.Context, event *types.BillingEvent) (status types.SubscriptionStatus, skipIfActive bool, handled bool) {
	switch event.Type {
	case types.EventCheckoutCompleted:
		// A completed checkout starts the trial, but a second checkout by an
		// already-active subscriber must not downgrade them.
		return types.SubStatusTrial, true, true

	case types.EventSubUpdated, types.EventSubDeleted:
		mapped := types.MapStripeStatus(event.NewStatus)
		if mapped == types.SubStatusNone && event.NewStatus != string(types.SubStatusNone) {
			r.logger.WarnContext(ctx, "unrecognized subscription status, mapped to none",
				slog.String("event_id", event.EventID),
				slog.String("reported_status", event.NewStatus),
			)
		}
		return mapped, false, true
	}
	return "", false, false
}

// releaseClaim undoes the dedup claim after a downstream failure, so the
// event is retryable on redelivery. Failure to release is only logged; the
// worst case is a permanently dropped event, which the log line surfaces.
func (r *Reconciler) releaseClaim(ctx context.Context, eventID string) {
	if err := r.events.Release(ctx, eventID); err != nil {
		r.logger.ErrorContext(ctx, "failed to release event claim after write failure",
			slog.String("event_id", eventID),
			slog.Any("error", err),
		)
	}
}
