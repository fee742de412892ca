// Package billing implements the domain services of the cinemagic billing
// core: provisioning Stripe identities, starting checkout sessions, applying
// verified webhook events to stored subscription state, and gating the
// metered montage operation.
package billing

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"cinemagic/internal/types"
)

// ProfileStore is the persistence surface the billing services need.
// Implemented by db.ProfileRepo.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.UserProfile, error)
	GetByCustomerID(ctx context.Context, customerID string) (*types.UserProfile, error)
	// SetCustomerID attaches a customer via compare-and-set; returns false
	// when the profile already carries a customer ID.
	SetCustomerID(ctx context.Context, userID, customerID string) (bool, error)
}

// CustomerAPI is the subset of the Stripe client the resolver needs.
type CustomerAPI interface {
	CreateCustomer(ctx context.Context, userID string) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// IdentityResolver maps a user to their Stripe customer, creating the
// customer on first use.
//
// Concurrency: in-process races collapse onto one flight via singleflight;
// cross-process races are settled by the repository's compare-and-set. The
// loser of a CAS race deletes the customer it created and adopts the
// winner's.
type IdentityResolver struct {
	profiles ProfileStore
	stripe   CustomerAPI
	logger   *slog.Logger
	group    singleflight.Group
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(profiles ProfileStore, stripe CustomerAPI, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		profiles: profiles,
		stripe:   stripe,
		logger:   logger,
	}
}

// ResolveOrCreate returns the Stripe customer ID for the user, provisioning
// one if the profile has none yet.
func (r *IdentityResolver) ResolveOrCreate(ctx context.Context, userID string) (string, error) {
	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		return r.resolveOrCreate(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *IdentityResolver) resolveOrCreate(ctx context.Context, userID string) (string, error) {
	profile, err := r.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	customerID, err := r.stripe.CreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	won, err := r.profiles.SetCustomerID(ctx, userID, customerID)
	if err != nil {
		// The customer exists in Stripe but was never attached; discard it
		// so it cannot leak. Best effort: a failed delete is only logged.
		r.discardCustomer(ctx, userID, customerID)
		return "", err
	}

	if !won {
		// Another process attached a customer first. Discard ours and adopt
		// the winner's.
		r.discardCustomer(ctx, userID, customerID)

		profile, err = r.profiles.GetByUserID(ctx, userID)
		if err != nil {
			return "", err
		}
		if profile.StripeCustomerID == "" {
			return "", types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"lost customer attach race but no customer is recorded",
				nil,
			)
		}
		r.logger.InfoContext(ctx, "adopted concurrently created customer",
			slog.String("user_id", userID),
			slog.String("customer_id", profile.StripeCustomerID),
		)
		return profile.StripeCustomerID, nil
	}

	r.logger.InfoContext(ctx, "provisioned billing identity",
		slog.String("user_id", userID),
		slog.String("customer_id", customerID),
	)
	return customerID, nil
}

func (r *IdentityResolver) discardCustomer(ctx context.Context, userID, customerID string) {
	if err := r.stripe.DeleteCustomer(ctx, customerID); err != nil {
		r.logger.WarnContext(ctx, "failed to discard unattached customer",
			slog.String("user_id", userID),
			slog.String("customer_id", customerID),
			slog.Any("error", err),
		)
	}
}
