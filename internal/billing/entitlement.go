package billing

import (
	"context"
	"log/slog"

	"cinemagic/internal/types"
)

// ProfileReader is the read-only profile surface the gate needs.
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*types.UserProfile, error)
}

// EntitlementGate decides whether a user may run the metered montage
// operation. It only reads; quota consumption happens after a successful run,
// in the dispatcher.
type EntitlementGate struct {
	profiles ProfileReader
	logger   *slog.Logger
}

// NewEntitlementGate creates an EntitlementGate.
func NewEntitlementGate(profiles ProfileReader, logger *slog.Logger) *EntitlementGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementGate{profiles: profiles, logger: logger}
}

// Check returns the entitlement decision for the user.
//
// Decision table:
//   - active           -> allow
//   - trial, uses >= 1 -> allow
//   - trial, uses == 0 -> deny "limit reached"
//   - anything else    -> deny "subscription required"
//
// A missing profile surfaces as the repository's profile-not-found error.
func (g *EntitlementGate) Check(ctx context.Context, userID string) (*types.EntitlementDecision, error) {
	profile, err := g.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := &types.EntitlementDecision{
		Status:             profile.SubscriptionStatus,
		RemainingTrialUses: profile.RemainingTrialUses,
	}

	switch {
	case profile.SubscriptionStatus == types.SubStatusActive:
		decision.Allowed = true
	case profile.SubscriptionStatus == types.SubStatusTrial && profile.RemainingTrialUses >= 1:
		decision.Allowed = true
	case profile.SubscriptionStatus == types.SubStatusTrial:
		decision.Reason = types.ReasonLimitReached
	default:
		decision.Reason = types.ReasonSubscriptionRequired
	}

	if !decision.Allowed {
		g.logger.InfoContext(ctx, "metered operation denied",
			slog.String("user_id", userID),
			slog.String("status", string(profile.SubscriptionStatus)),
			slog.String("reason", decision.Reason),
		)
	}
	return decision, nil
}
