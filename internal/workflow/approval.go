package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"govern/internal/events"
	"govern/internal/workflow/metrics"
	"govern/pkg/domain"
	"govern/pkg/requestcontext"
	"govern/pkg/sentinel"
)

// ApprovalService records approval decisions on execution steps. The
// execution's aggregate status is derived from step statuses, never stored.
type ApprovalService struct {
	executions ExecutionStore
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewApprovalService(executions ExecutionStore, opts ...ApprovalOption) *ApprovalService {
	s := &ApprovalService{
		executions: executions,
		publisher:  events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApprovalOption configures the ApprovalService.
type ApprovalOption func(*ApprovalService)

func WithApprovalLogger(logger *slog.Logger) ApprovalOption {
	return func(s *ApprovalService) { s.logger = logger }
}

func WithApprovalMetrics(m *metrics.Metrics) ApprovalOption {
	return func(s *ApprovalService) { s.metrics = m }
}

func WithApprovalPublisher(p events.Publisher) ApprovalOption {
	return func(s *ApprovalService) { s.publisher = p }
}

// Approve records one step decision and returns the execution with its
// derived status. Steps are decided in order: approving a step before every
// prior step is approved is an invalid state, as is deciding a step twice or
// touching a terminal execution.
func (s *ApprovalService) Approve(ctx context.Context, approvalID domain.ApprovalID, decision StepStatus, comments string) (*Execution, error) {
	if decision != StepApproved && decision != StepRejected {
		return nil, fmt.Errorf("decision must be %s or %s: %w", StepApproved, StepRejected, sentinel.ErrInvalidState)
	}

	exec, err := s.executions.GetByApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	switch exec.Status() {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return nil, fmt.Errorf("execution %s is %s: %w", exec.ID, exec.Status(), sentinel.ErrInvalidState)
	}

	idx := -1
	for i := range exec.Steps {
		if exec.Steps[i].ID == approvalID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("approval %s not on execution %s: %w", approvalID, exec.ID, sentinel.ErrNotFound)
	}

	step := &exec.Steps[idx]
	if step.Status != StepPending {
		return nil, fmt.Errorf("approval %s already %s: %w", approvalID, step.Status, sentinel.ErrInvalidState)
	}
	for i := 0; i < idx; i++ {
		if exec.Steps[i].Status != StepApproved {
			return nil, fmt.Errorf("step %d of execution %s is still %s: %w", i, exec.ID, exec.Steps[i].Status, sentinel.ErrInvalidState)
		}
	}

	now := requestcontext.Now(ctx)
	step.Status = decision
	step.Comments = comments
	step.DecidedAt = &now

	if err := s.executions.UpdateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("record approval %s: %w", approvalID, err)
	}

	s.metrics.IncApproval(string(decision))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "approval recorded",
			"execution_id", exec.ID,
			"approval_id", approvalID,
			"decision", decision,
			"execution_status", exec.Status(),
		)
	}

	switch exec.Status() {
	case StatusCompleted:
		s.publishOutcome(ctx, exec, events.KindWorkflowCompleted)
	case StatusFailed:
		s.publishOutcome(ctx, exec, events.KindWorkflowFailed)
	}

	return exec, nil
}

func (s *ApprovalService) publishOutcome(ctx context.Context, exec *Execution, kind events.Kind) {
	err := s.publisher.Publish(ctx, events.Event{
		Kind:       kind,
		EntityType: exec.EntityType,
		EntityID:   exec.EntityID,
		OccurredAt: requestcontext.Now(ctx),
		Fields: map[string]string{
			"execution_id": exec.ID.String(),
			"workflow_id":  exec.WorkflowID.String(),
		},
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			"kind", kind,
			"execution_id", exec.ID,
			"error", err,
		)
	}
}
