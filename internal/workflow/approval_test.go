package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govern/internal/workflow"
	"govern/pkg/domain"
	"govern/pkg/sentinel"
)

func startedExecution(t *testing.T, store *workflow.MemoryExecutionStore, steps int) *workflow.Execution {
	t.Helper()
	exec := &workflow.Execution{
		ID:             domain.NewExecutionID(),
		WorkflowID:     domain.NewWorkflowID(),
		TriggerRuleID:  domain.NewTriggerRuleID(),
		EntityID:       "assessment-1",
		EntityType:     "assessment",
		Trigger:        workflow.TriggerOnStatusChange,
		IdempotencyKey: domain.NewExecutionID().String(),
		StartedAt:      testNow,
	}
	for i := 0; i < steps; i++ {
		exec.Steps = append(exec.Steps, workflow.ApprovalStep{
			ID:          domain.NewApprovalID(),
			ExecutionID: exec.ID,
			Order:       i,
			ApproverID:  domain.NewUserID(),
			Status:      workflow.StepPending,
		})
	}
	require.NoError(t, store.Create(context.Background(), exec))
	return exec
}

func TestApproveChainToCompletion(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)
	exec := startedExecution(t, store, 3)

	for i, step := range exec.Steps {
		updated, err := svc.Approve(testCtx(), step.ID, workflow.StepApproved, "lgtm")
		require.NoError(t, err)

		if i < len(exec.Steps)-1 {
			assert.Equal(t, workflow.StatusInProgress, updated.Status())
		} else {
			assert.Equal(t, workflow.StatusCompleted, updated.Status())
		}
	}

	final, err := store.Get(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, final.Status())
	for _, step := range final.Steps {
		assert.Equal(t, workflow.StepApproved, step.Status)
		assert.Equal(t, "lgtm", step.Comments)
		require.NotNil(t, step.DecidedAt)
		assert.True(t, step.DecidedAt.Equal(testNow))
	}
}

func TestRejectFailsExecution(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)
	exec := startedExecution(t, store, 2)

	updated, err := svc.Approve(testCtx(), exec.Steps[0].ID, workflow.StepRejected, "insufficient evidence")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, updated.Status())

	// The chain is dead: the second step can no longer be decided.
	_, err = svc.Approve(testCtx(), exec.Steps[1].ID, workflow.StepApproved, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestApproveOutOfOrder(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)
	exec := startedExecution(t, store, 2)

	_, err := svc.Approve(testCtx(), exec.Steps[1].ID, workflow.StepApproved, "")
	require.Error(t, err, "step order is fixed at start time")
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestApproveTwice(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)
	exec := startedExecution(t, store, 2)

	_, err := svc.Approve(testCtx(), exec.Steps[0].ID, workflow.StepApproved, "")
	require.NoError(t, err)

	_, err = svc.Approve(testCtx(), exec.Steps[0].ID, workflow.StepApproved, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestApproveRejectsBadDecision(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)
	exec := startedExecution(t, store, 1)

	_, err := svc.Approve(testCtx(), exec.Steps[0].ID, workflow.StepPending, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	_, err = svc.Approve(testCtx(), exec.Steps[0].ID, "maybe", "")
	require.Error(t, err)
}

func TestApproveUnknownApproval(t *testing.T) {
	store := workflow.NewMemoryExecutionStore()
	svc := workflow.NewApprovalService(store)

	_, err := svc.Approve(testCtx(), domain.NewApprovalID(), workflow.StepApproved, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDerivedStatus(t *testing.T) {
	exec := &workflow.Execution{Steps: []workflow.ApprovalStep{
		{Status: workflow.StepPending},
		{Status: workflow.StepPending},
	}}
	assert.Equal(t, workflow.StatusPending, exec.Status())

	exec.Steps[0].Status = workflow.StepApproved
	assert.Equal(t, workflow.StatusInProgress, exec.Status())

	exec.Steps[1].Status = workflow.StepApproved
	assert.Equal(t, workflow.StatusCompleted, exec.Status())

	exec.Steps[1].Status = workflow.StepRejected
	assert.Equal(t, workflow.StatusFailed, exec.Status())

	exec.Cancelled = true
	assert.Equal(t, workflow.StatusCancelled, exec.Status())
}
