package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govern/internal/entity"
	"govern/internal/rule"
	"govern/internal/workflow"
	"govern/pkg/domain"
	"govern/pkg/requestcontext"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), testNow)
}

type fixture struct {
	rules      *workflow.MemoryTriggerRuleStore
	templates  *workflow.MemoryTemplateStore
	executions *workflow.MemoryExecutionStore
	engine     *workflow.TriggerEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rules:      workflow.NewMemoryTriggerRuleStore(),
		templates:  workflow.NewMemoryTemplateStore(),
		executions: workflow.NewMemoryExecutionStore(),
	}
	f.engine = workflow.NewTriggerEngine(f.rules, f.templates, f.executions)
	return f
}

func (f *fixture) addTemplate(t *testing.T, approvers int) domain.WorkflowID {
	t.Helper()
	tmpl := &workflow.Template{
		ID:   domain.NewWorkflowID(),
		Name: "sign-off chain",
	}
	for i := 0; i < approvers; i++ {
		tmpl.Approvers = append(tmpl.Approvers, domain.NewUserID())
	}
	require.NoError(t, f.templates.Create(context.Background(), tmpl))
	return tmpl.ID
}

func (f *fixture) addRule(t *testing.T, priority int, workflowID domain.WorkflowID, conditions ...workflow.Condition) *workflow.TriggerRule {
	t.Helper()
	r := &workflow.TriggerRule{
		ID:         domain.NewTriggerRuleID(),
		Name:       "high risk sign-off",
		EntityType: "assessment",
		Trigger:    workflow.TriggerOnStatusChange,
		WorkflowID: workflowID,
		Priority:   priority,
		Active:     true,
		Conditions: conditions,
	}
	require.NoError(t, f.rules.Create(context.Background(), r))
	return r
}

func cond(field string, op rule.Operator, value any) workflow.Condition {
	return workflow.Condition{Field: field, Operator: op, Value: value}
}

func TestHandleEventStartsWorkflow(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 2)
	r := f.addRule(t, 10, workflowID,
		cond("riskLevel", rule.OpEquals, "high"),
		cond("status", rule.OpEquals, "submitted"),
	)

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high", "status": "submitted"},
	})
	require.NoError(t, err)
	require.NotNil(t, exec)

	assert.Equal(t, workflowID, exec.WorkflowID)
	assert.Equal(t, r.ID, exec.TriggerRuleID)
	assert.Equal(t, "assessment-1", exec.EntityID)
	assert.Equal(t, workflow.StatusPending, exec.Status())
	require.Len(t, exec.Steps, 2)
	assert.Equal(t, 0, exec.Steps[0].Order)
	assert.Equal(t, workflow.StepPending, exec.Steps[0].Status)

	stored, err := f.executions.Get(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, stored.ID)
}

func TestHandleEventConditionsAreANDed(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)
	f.addRule(t, 10, workflowID,
		cond("riskLevel", rule.OpEquals, "high"),
		cond("status", rule.OpEquals, "submitted"),
	)

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high", "status": "draft"},
	})
	require.NoError(t, err)
	assert.Nil(t, exec, "one failed condition fails the whole rule")
}

func TestHandleEventFirstMatchWins(t *testing.T) {
	f := newFixture(t)
	highWorkflow := f.addTemplate(t, 1)
	lowWorkflow := f.addTemplate(t, 1)

	high := f.addRule(t, 10, highWorkflow, cond("riskLevel", rule.OpEquals, "high"))
	f.addRule(t, 5, lowWorkflow, cond("riskLevel", rule.OpEquals, "high"))

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	})
	require.NoError(t, err)
	require.NotNil(t, exec)

	assert.Equal(t, highWorkflow, exec.WorkflowID)
	assert.Equal(t, high.ID, exec.TriggerRuleID)

	all, err := f.executions.ListByEntity(context.Background(), "assessment-1")
	require.NoError(t, err)
	assert.Len(t, all, 1, "exactly one workflow starts per event")
}

func TestHandleEventNoMatchIsNotAnError(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)
	f.addRule(t, 10, workflowID, cond("riskLevel", rule.OpEquals, "high"))

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "low"},
	})
	require.NoError(t, err)
	assert.Nil(t, exec)
}

func TestHandleEventIdempotent(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)
	f.addRule(t, 10, workflowID, cond("riskLevel", rule.OpEquals, "high"))

	event := workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	}

	first, err := f.engine.HandleEvent(testCtx(), event)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.engine.HandleEvent(testCtx(), event)
	require.NoError(t, err)
	assert.Nil(t, second, "replayed event must not start a second execution")

	all, err := f.executions.ListByEntity(context.Background(), "assessment-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestHandleEventDistinctTriggersAreIndependent(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)

	for _, trigger := range []workflow.Trigger{workflow.TriggerOnCreate, workflow.TriggerOnUpdate} {
		r := &workflow.TriggerRule{
			ID:         domain.NewTriggerRuleID(),
			Name:       "any change",
			EntityType: "assessment",
			Trigger:    trigger,
			WorkflowID: workflowID,
			Priority:   1,
			Active:     true,
			Conditions: []workflow.Condition{cond("riskLevel", rule.OpEquals, "high")},
		}
		require.NoError(t, f.rules.Create(context.Background(), r))
	}

	data := entity.Snapshot{"riskLevel": "high"}
	for _, trigger := range []workflow.Trigger{workflow.TriggerOnCreate, workflow.TriggerOnUpdate} {
		exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
			EntityType: "assessment",
			EntityID:   "assessment-1",
			Trigger:    trigger,
			Data:       data,
		})
		require.NoError(t, err)
		require.NotNil(t, exec, "trigger %s", trigger)
	}

	all, err := f.executions.ListByEntity(context.Background(), "assessment-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHandleEventBrokenRuleSkipped(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)

	// The higher-priority rule references a field the snapshot does not carry;
	// it must be skipped so the next rule still dispatches.
	f.addRule(t, 10, workflowID, cond("missingField", rule.OpEquals, "x"))
	good := f.addRule(t, 5, workflowID, cond("riskLevel", rule.OpEquals, "high"))

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	})
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, good.ID, exec.TriggerRuleID)
}

func TestHandleEventOperatorVariety(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)
	f.addRule(t, 10, workflowID,
		cond("score", rule.OpGreaterThan, float64(7)),
		cond("owner", rule.OpNotEquals, "system"),
		cond("category", rule.OpIn, []any{"security", "privacy"}),
		cond("summary", rule.OpContains, "encryption"),
	)

	exec, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data: entity.Snapshot{
			"score":    float64(9),
			"owner":    "alice",
			"category": "privacy",
			"summary":  "missing encryption at rest",
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, exec)
}

func TestHandleEventUnknownTrigger(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    "on_vibe",
	})
	require.Error(t, err)
	var cfgErr *rule.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestHandleEventGuardDenied(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)
	f.addRule(t, 10, workflowID, cond("riskLevel", rule.OpEquals, "high"))

	engine := workflow.NewTriggerEngine(f.rules, f.templates, f.executions,
		workflow.WithStartGuard(deniedGuard{}))

	exec, err := engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	})
	require.NoError(t, err)
	assert.Nil(t, exec, "a denied guard is the no-op outcome")

	all, err := f.executions.ListByEntity(context.Background(), "assessment-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

type deniedGuard struct{}

func (deniedGuard) Acquire(context.Context, string) (bool, error) { return false, nil }
func (deniedGuard) Release(context.Context, string) error         { return nil }

// claimGuard mimics a SETNX-backed guard: a key stays claimed until released.
type claimGuard struct {
	claimed map[string]bool
}

func newClaimGuard() *claimGuard {
	return &claimGuard{claimed: make(map[string]bool)}
}

func (g *claimGuard) Acquire(_ context.Context, key string) (bool, error) {
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *claimGuard) Release(_ context.Context, key string) error {
	delete(g.claimed, key)
	return nil
}

func TestHandleEventMissingTemplate(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, 10, domain.NewWorkflowID(), cond("riskLevel", rule.OpEquals, "high"))

	_, err := f.engine.HandleEvent(testCtx(), workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	})
	require.Error(t, err, "a rule bound to a missing template cannot start")
}

func TestHandleEventRetryAfterFailedStart(t *testing.T) {
	f := newFixture(t)
	workflowID := domain.NewWorkflowID()
	f.addRule(t, 10, workflowID, cond("riskLevel", rule.OpEquals, "high"))

	guard := newClaimGuard()
	engine := workflow.NewTriggerEngine(f.rules, f.templates, f.executions,
		workflow.WithStartGuard(guard))

	event := workflow.Event{
		EntityType: "assessment",
		EntityID:   "assessment-1",
		Trigger:    workflow.TriggerOnStatusChange,
		Data:       entity.Snapshot{"riskLevel": "high"},
	}

	// The template is missing on the first attempt, so the start fails after
	// the guard claim.
	_, err := engine.HandleEvent(testCtx(), event)
	require.Error(t, err)
	assert.Empty(t, guard.claimed, "a failed start must release its guard claim")

	tmpl := &workflow.Template{
		ID:        workflowID,
		Name:      "sign-off chain",
		Approvers: []domain.UserID{domain.NewUserID()},
	}
	require.NoError(t, f.templates.Create(context.Background(), tmpl))

	exec, err := engine.HandleEvent(testCtx(), event)
	require.NoError(t, err)
	require.NotNil(t, exec, "the retried event must start the workflow")

	all, err := f.executions.ListByEntity(context.Background(), "assessment-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTriggerRuleValidation(t *testing.T) {
	store := workflow.NewMemoryTriggerRuleStore()

	base := func() *workflow.TriggerRule {
		return &workflow.TriggerRule{
			ID:         domain.NewTriggerRuleID(),
			Name:       "r",
			EntityType: "assessment",
			Trigger:    workflow.TriggerOnCreate,
			WorkflowID: domain.NewWorkflowID(),
			Active:     true,
			Conditions: []workflow.Condition{cond("f", rule.OpEquals, "v")},
		}
	}

	t.Run("valid rule accepted", func(t *testing.T) {
		require.NoError(t, store.Create(context.Background(), base()))
	})

	t.Run("alerting-only operator rejected", func(t *testing.T) {
		r := base()
		r.Conditions = []workflow.Condition{cond("f", rule.OpDaysOverdue, 30)}
		require.Error(t, store.Create(context.Background(), r))
	})

	t.Run("no conditions rejected", func(t *testing.T) {
		r := base()
		r.Conditions = nil
		require.Error(t, store.Create(context.Background(), r))
	})

	t.Run("unknown trigger rejected", func(t *testing.T) {
		r := base()
		r.Trigger = "on_vibe"
		require.Error(t, store.Create(context.Background(), r))
	})
}

func TestListActiveOrdering(t *testing.T) {
	f := newFixture(t)
	workflowID := f.addTemplate(t, 1)

	f.addRule(t, 5, workflowID, cond("f", rule.OpEquals, "v"))
	f.addRule(t, 20, workflowID, cond("f", rule.OpEquals, "v"))
	f.addRule(t, 10, workflowID, cond("f", rule.OpEquals, "v"))

	inactive := f.addRule(t, 99, workflowID, cond("f", rule.OpEquals, "v"))
	inactive.Active = false
	require.NoError(t, f.rules.Update(context.Background(), inactive))

	rules, err := f.rules.ListActive(context.Background(), "assessment", workflow.TriggerOnStatusChange)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 20, rules[0].Priority)
	assert.Equal(t, 10, rules[1].Priority)
	assert.Equal(t, 5, rules[2].Priority)
}
