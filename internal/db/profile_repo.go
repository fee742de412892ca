package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"cinemagic/internal/types"
)

// profileColumns is the canonical column list scanned into types.UserProfile.
const profileColumns = `user_id, stripe_customer_id, subscription_status,
	remaining_trial_uses, last_billing_event_at, updated_at`

// ProfileRepo reads and mutates the profiles table. The table is owned by the
// signup system; this service only touches the billing columns.
//
// Key invariants:
//   - SetCustomerID is a compare-and-set on stripe_customer_id IS NULL, so two
//     concurrent resolvers cannot both attach a customer to the same profile.
//   - UpdateStatusByCustomer guards every write with last_billing_event_at so
//     out-of-order webhook deliveries cannot resurrect a stale status.
type ProfileRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewProfileRepo creates a ProfileRepo backed by the given connection
// (pool or transaction).
func NewProfileRepo(db DBTX, logger *slog.Logger) *ProfileRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileRepo{db: db, logger: logger}
}

// GetByUserID retrieves a profile by user ID. A missing profile is reported as
// an entitlement error because profiles are provisioned at signup; their
// absence means the user has no standing in the billing system.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*types.UserProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeEntitlementProfileNotFound, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return profile, nil
}

// GetByCustomerID retrieves a profile by its Stripe customer reference.
// No match means a webhook referenced a customer this system never attached
// to a profile.
func (r *ProfileRepo) GetByCustomerID(ctx context.Context, customerID string) (*types.UserProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE stripe_customer_id = $1`,
		customerID,
	)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeUnknownCustomer, "no profile for customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by customer", err)
	}
	return profile, nil
}

// SetCustomerID attaches a Stripe customer to a profile, but only if the
// profile does not already carry one (compare-and-set). A profile that never
// interacted with billing (status "none") is moved to "free" at the same time.
//
// Returns true if this call won the attach, false if another customer ID was
// already present (the caller lost the race and should discard its customer).
func (r *ProfileRepo) SetCustomerID(ctx context.Context, userID, customerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET stripe_customer_id = $1,
		     subscription_status = CASE
		         WHEN subscription_status = 'none' THEN 'free'
		         ELSE subscription_status
		     END,
		     updated_at = NOW()
		 WHERE user_id = $2
		   AND stripe_customer_id IS NULL`,
		customerID,
		userID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to attach customer to profile", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatusByCustomer applies a subscription status by customer reference.
//
// Every write is guarded by last_billing_event_at: an event older than the
// last applied one leaves the row untouched. When skipIfActive is set (the
// checkout-completed transition), the write additionally refuses to downgrade
// an already-active subscriber.
//
// Returns true if the row was updated, false for a stale or skipped event.
func (r *ProfileRepo) UpdateStatusByCustomer(
	ctx context.Context,
	customerID string,
	status types.SubscriptionStatus,
	eventTime time.Time,
	skipIfActive bool,
) (bool, error) {
	query := `UPDATE profiles
		 SET subscription_status = $1,
		     last_billing_event_at = $2,
		     updated_at = NOW()
		 WHERE stripe_customer_id = $3
		   AND (last_billing_event_at IS NULL OR last_billing_event_at <= $2)`
	if skipIfActive {
		query += `
		   AND subscription_status <> 'active'`
	}

	tag, err := r.db.Exec(ctx, query, status, eventTime, customerID)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "subscription status write skipped",
			slog.String("customer_id", customerID),
			slog.String("status", string(status)),
			slog.Time("event_time", eventTime),
		)
		return false, nil
	}
	return true, nil
}

// ConsumeTrialUse zeroes the remaining trial uses for a trial profile that
// still has quota. The conditional WHERE makes the consume idempotent: a
// second call (or a call against a non-trial profile) affects no rows.
//
// Returns true if quota was consumed by this call.
func (r *ProfileRepo) ConsumeTrialUse(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET remaining_trial_uses = 0,
		     updated_at = NOW()
		 WHERE user_id = $1
		   AND subscription_status = 'trial'
		   AND remaining_trial_uses > 0`,
		userID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to consume trial use", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanProfile scans a single profile row. stripe_customer_id is nullable in
// the schema; NULL becomes the empty string on the domain type.
func scanProfile(row pgx.Row) (*types.UserProfile, error) {
	var (
		p          types.UserProfile
		customerID *string
	)
	err := row.Scan(
		&p.UserID,
		&customerID,
		&p.SubscriptionStatus,
		&p.RemainingTrialUses,
		&p.LastBillingEventAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	return &p, nil
}
