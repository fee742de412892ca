package billing

import (
	"context"
	"log/slog"

	"cinemagic/internal/external"
	"cinemagic/internal/types"
)

// EntitlementChecker abstracts the gate for testing.
type EntitlementChecker interface {
	Check(ctx context.Context, userID string) (*types.EntitlementDecision, error)
}

// QuotaConsumer is the quota-write surface of the profile store.
type QuotaConsumer interface {
	ConsumeTrialUse(ctx context.Context, userID string) (bool, error)
}

// MontageDispatcher runs the metered montage operation: gate first, render,
// then consume trial quota only after the render succeeded. A render that
// fails never costs the user their trial use.
type MontageDispatcher struct {
	gate   EntitlementChecker
	engine external.MontageEngine
	quota  QuotaConsumer
	logger *slog.Logger
}

// NewMontageDispatcher creates a MontageDispatcher.
func NewMontageDispatcher(gate EntitlementChecker, engine external.MontageEngine, quota QuotaConsumer, logger *slog.Logger) *MontageDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MontageDispatcher{
		gate:   gate,
		engine: engine,
		quota:  quota,
		logger: logger,
	}
}

// Run executes one montage for the user and returns the result URL.
// Denials surface as entitlement errors before any work is performed.
func (d *MontageDispatcher) Run(ctx context.Context, userID, videoPath, theme string) (string, error) {
	decision, err := d.gate.Check(ctx, userID)
	if err != nil {
		return "", err
	}

	if !decision.Allowed {
		return "", denialError(decision)
	}

	resultURL, err := d.engine.Render(ctx, userID, videoPath, theme)
	if err != nil {
		return "", err
	}

	if decision.Status == types.SubStatusTrial {
		consumed, err := d.quota.ConsumeTrialUse(ctx, userID)
		if err != nil {
			// The render already succeeded; the result must reach the user.
			// An unconsumed trial use is the lesser failure and is logged
			// for reconciliation.
			d.logger.ErrorContext(ctx, "failed to consume trial use after successful render",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		} else if !consumed {
			d.logger.WarnContext(ctx, "trial use already consumed",
				slog.String("user_id", userID),
			)
		}
	}

	return resultURL, nil
}

// denialError maps a deny decision onto the entitlement error taxonomy.
func denialError(decision *types.EntitlementDecision) error {
	if decision.Reason == types.ReasonLimitReached {
		return types.NewAppError(types.ErrCodeEntitlementQuotaExceeded, types.ReasonLimitReached, nil)
	}
	return types.NewAppError(types.ErrCodeEntitlementSubscriptionRequired, types.ReasonSubscriptionRequired, nil)
}
