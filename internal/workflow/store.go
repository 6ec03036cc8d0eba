package workflow

import (
	"context"

	"govern/pkg/domain"
)

// TriggerRuleStore manages trigger-rule persistence.
type TriggerRuleStore interface {
	Create(ctx context.Context, r *TriggerRule) error
	Get(ctx context.Context, id domain.TriggerRuleID) (*TriggerRule, error)
	Update(ctx context.Context, r *TriggerRule) error
	Delete(ctx context.Context, id domain.TriggerRuleID) error
	List(ctx context.Context) ([]*TriggerRule, error)

	// ListActive returns only active rules for (entityType, trigger), sorted
	// by priority descending with rule ID ascending as the tie-break. The
	// engine depends on this ordering for first-match-wins.
	ListActive(ctx context.Context, entityType string, trigger Trigger) ([]*TriggerRule, error)
}

// TemplateStore manages workflow template persistence.
type TemplateStore interface {
	Create(ctx context.Context, t *Template) error
	Get(ctx context.Context, id domain.WorkflowID) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
}

// ExecutionStore manages execution and approval-step persistence.
type ExecutionStore interface {
	// Create persists a new execution with its steps. A second execution with
	// the same idempotency key fails with sentinel.ErrConflict.
	Create(ctx context.Context, e *Execution) error
	Get(ctx context.Context, id domain.ExecutionID) (*Execution, error)

	// GetByApproval loads the execution owning the given approval step.
	GetByApproval(ctx context.Context, approvalID domain.ApprovalID) (*Execution, error)

	// UpdateStep persists one step's decision.
	UpdateStep(ctx context.Context, step *ApprovalStep) error

	// ListByEntity returns executions started for an entity, newest first.
	ListByEntity(ctx context.Context, entityID string) ([]*Execution, error)
}
