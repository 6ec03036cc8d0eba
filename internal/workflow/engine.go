package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"govern/internal/entity"
	"govern/internal/events"
	"govern/internal/rule"
	"govern/internal/workflow/metrics"
	"govern/pkg/domain"
	"govern/pkg/requestcontext"
	"govern/pkg/sentinel"
)

// Event is one entity-change notification submitted for trigger dispatch.
type Event struct {
	EntityType string
	EntityID   string
	Trigger    Trigger
	Data       entity.Snapshot
}

// TriggerEngine dispatches entity-change events to trigger rules and starts
// workflow executions. Like the alert engine it is stateless per call.
type TriggerEngine struct {
	rules      TriggerRuleStore
	templates  TemplateStore
	executions ExecutionStore
	guard      StartGuard
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// EngineOption configures the TriggerEngine.
type EngineOption func(*TriggerEngine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *TriggerEngine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *TriggerEngine) { e.metrics = m }
}

func WithPublisher(p events.Publisher) EngineOption {
	return func(e *TriggerEngine) { e.publisher = p }
}

// WithStartGuard installs a distributed idempotency guard in front of
// workflow start.
func WithStartGuard(g StartGuard) EngineOption {
	return func(e *TriggerEngine) { e.guard = g }
}

func NewTriggerEngine(rules TriggerRuleStore, templates TemplateStore, executions ExecutionStore, opts ...EngineOption) *TriggerEngine {
	e := &TriggerEngine{
		rules:      rules,
		templates:  templates,
		executions: executions,
		guard:      NopGuard{},
		publisher:  events.Nop{},
		tracer:     otel.Tracer("govern/internal/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent evaluates active trigger rules for the event's (entityType,
// trigger) scope in priority order and starts at most one workflow execution:
// the first rule whose full condition set matches wins, lower-priority
// matches are not executed. Returns nil when no rule matches or the event was
// already handled; neither is an error.
func (e *TriggerEngine) HandleEvent(ctx context.Context, event Event) (*Execution, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.HandleEvent",
		trace.WithAttributes(
			attribute.String("entity.type", event.EntityType),
			attribute.String("entity.id", event.EntityID),
			attribute.String("event.trigger", string(event.Trigger)),
		))
	defer span.End()

	start := time.Now()
	defer func() { e.metrics.ObserveHandleLatency(time.Since(start)) }()

	if !event.Trigger.Valid() {
		return nil, &rule.ConfigError{Reason: fmt.Sprintf("unknown trigger %q", event.Trigger)}
	}

	activeRules, err := e.rules.ListActive(ctx, event.EntityType, event.Trigger)
	if err != nil {
		return nil, fmt.Errorf("list active trigger rules for %s/%s: %w", event.EntityType, event.Trigger, err)
	}

	now := requestcontext.Now(ctx)
	for _, r := range activeRules {
		matched, err := e.ruleMatches(now, r, event.Data)
		if err != nil {
			// A misconfigured or unevaluable rule is skipped, not fatal: the
			// next rule in priority order still gets its chance.
			e.logRuleError(ctx, r, event, err)
			continue
		}
		if !matched {
			e.metrics.IncEvaluation(event.EntityType, "no_match")
			continue
		}
		e.metrics.IncEvaluation(event.EntityType, "matched")
		return e.startExecution(ctx, now, r, event)
	}

	return nil, nil
}

// ruleMatches ANDs every condition of the rule over the event snapshot.
func (e *TriggerEngine) ruleMatches(now time.Time, r *TriggerRule, snapshot entity.Snapshot) (bool, error) {
	for _, c := range r.Conditions {
		value, ok := snapshot.Get(c.Field)
		if !ok {
			return false, &rule.ConfigError{Reason: fmt.Sprintf("field %q not present in entity snapshot", c.Field)}
		}
		matched, err := rule.Evaluate(now, value, c.Operator, c.Value)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// startExecution claims the event's idempotency key and starts the workflow
// bound to the matched rule. A lost race on either the guard or the store
// insert means another evaluator already started it: the no-op outcome.
func (e *TriggerEngine) startExecution(ctx context.Context, now time.Time, r *TriggerRule, event Event) (*Execution, error) {
	key := StartKey(r.ID, event.EntityID, event.Trigger)

	acquired, err := e.guard.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		e.metrics.IncDeduplicated()
		return nil, nil
	}

	tmpl, err := e.templates.Get(ctx, r.WorkflowID)
	if err != nil {
		e.releaseGuard(ctx, key)
		return nil, fmt.Errorf("load template %s for rule %s: %w", r.WorkflowID, r.ID, err)
	}

	exec := &Execution{
		ID:             domain.NewExecutionID(),
		WorkflowID:     r.WorkflowID,
		TriggerRuleID:  r.ID,
		EntityID:       event.EntityID,
		EntityType:     event.EntityType,
		Trigger:        event.Trigger,
		IdempotencyKey: key,
		StartedAt:      now,
	}
	for i, approver := range tmpl.Approvers {
		exec.Steps = append(exec.Steps, ApprovalStep{
			ID:          domain.NewApprovalID(),
			ExecutionID: exec.ID,
			Order:       i,
			ApproverID:  approver,
			Status:      StepPending,
		})
	}

	if err := e.executions.Create(ctx, exec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			e.metrics.IncDeduplicated()
			return nil, nil
		}
		e.releaseGuard(ctx, key)
		return nil, fmt.Errorf("start execution for rule %s: %w", r.ID, err)
	}

	e.metrics.IncStarted(event.EntityType)
	if e.logger != nil {
		e.logger.InfoContext(ctx, "workflow started",
			"execution_id", exec.ID,
			"workflow_id", r.WorkflowID,
			"trigger_rule_id", r.ID,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"trigger", event.Trigger,
			"steps", len(exec.Steps),
		)
	}

	e.publish(ctx, events.Event{
		Kind:       events.KindWorkflowStarted,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		OccurredAt: now,
		Fields: map[string]string{
			"execution_id":    exec.ID.String(),
			"workflow_id":     r.WorkflowID.String(),
			"trigger_rule_id": r.ID.String(),
		},
	})

	return exec, nil
}

// releaseGuard hands a claimed start key back after a failed start so the
// event can be retried before the claim's TTL lapses. The store's idempotency
// index still protects against a double start if the release itself fails.
func (e *TriggerEngine) releaseGuard(ctx context.Context, key string) {
	if err := e.guard.Release(ctx, key); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "start guard release failed",
			"key", key,
			"error", err,
		)
	}
}

func (e *TriggerEngine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			"kind", event.Kind,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

func (e *TriggerEngine) logRuleError(ctx context.Context, r *TriggerRule, event Event, err error) {
	var cfgErr *rule.ConfigError
	outcome := "eval_error"
	if errors.As(err, &cfgErr) {
		outcome = "config_error"
	}
	e.metrics.IncEvaluation(event.EntityType, outcome)

	if e.logger != nil {
		e.logger.ErrorContext(ctx, "trigger rule evaluation failed",
			"trigger_rule_id", r.ID,
			"rule_name", r.Name,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"outcome", outcome,
			"error", err,
		)
	}
}
