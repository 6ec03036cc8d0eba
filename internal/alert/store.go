package alert

import (
	"context"
	"time"

	"govern/pkg/domain"
)

// Store manages alert persistence.
//
// Save must apply the dedup invariant atomically: creating a second ACTIVE
// alert for the same (rule, entity) pair fails with sentinel.ErrConflict. The
// engine treats that conflict as "already handled", not as a failure.
type Store interface {
	// FindActive returns the ACTIVE alert for a (rule, entity) pair, or
	// sentinel.ErrNotFound.
	FindActive(ctx context.Context, ruleID domain.RuleID, entityID string) (*Alert, error)

	Save(ctx context.Context, a *Alert) error

	// ListActive returns every ACTIVE alert for an entity.
	ListActive(ctx context.Context, entityID string) ([]*Alert, error)

	// Update persists status and resolution changes to an existing alert.
	Update(ctx context.Context, a *Alert) error

	// DeleteOlderThan removes alerts in the given statuses created before the
	// cutoff and reports how many were deleted. Callers only ever pass
	// terminal statuses; ACTIVE alerts must not be deleted by retention.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []Status) (int, error)
}
