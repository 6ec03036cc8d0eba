package rule

import (
	"context"

	"govern/pkg/domain"
)

// Store manages alerting rule persistence. The engine only reads through
// ListActive; the CRUD surface serves the rule authoring layer.
type Store interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id domain.RuleID) (*Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id domain.RuleID) error
	List(ctx context.Context) ([]*Rule, error)

	// ListActive returns only rules with Active == true scoped to the given
	// entity type. Inactive rules must never reach the engine.
	ListActive(ctx context.Context, entityType string) ([]*Rule, error)
}
