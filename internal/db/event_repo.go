package db

import (
	"context"
	"log/slog"

	"cinemagic/internal/types"
)

// EventRepo owns the billing_events dedup table. Each Stripe event ID is
// claimed exactly once; a second delivery of the same event finds the claim
// already present and is treated as a no-op.
type EventRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewEventRepo creates an EventRepo backed by the given connection.
func NewEventRepo(db DBTX, logger *slog.Logger) *EventRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRepo{db: db, logger: logger}
}

// Claim records the event ID if it has not been seen before. Returns true if
// this call claimed the event, false if it was already recorded (duplicate
// delivery).
func (r *EventRepo) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO billing_events (event_id, event_type, received_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID,
		eventType,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim event", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release removes a previously claimed event ID. The reconciler calls this
// when the profile write fails after a successful claim, so Stripe's
// redelivery of the event is not mistaken for a duplicate.
func (r *EventRepo) Release(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM billing_events WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release event claim", err)
	}
	return nil
}
