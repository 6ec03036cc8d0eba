package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"govern/internal/alert/metrics"
	"govern/internal/entity"
	"govern/internal/events"
	"govern/internal/rule"
	"govern/pkg/domain"
	"govern/pkg/requestcontext"
	"govern/pkg/sentinel"
)

const defaultBatchLimit = 8

// Engine evaluates governance entities against active alerting rules and owns
// the alert lifecycle. It is stateless per call: rules and alerts live in the
// stores, so any number of Engine invocations may run concurrently.
type Engine struct {
	rules      rule.Store
	alerts     Store
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	batchLimit int
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithBatchLimit bounds how many entities a batch evaluates in parallel.
func WithBatchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchLimit = n
		}
	}
}

func NewEngine(rules rule.Store, alerts Store, opts ...Option) *Engine {
	e := &Engine{
		rules:      rules,
		alerts:     alerts,
		publisher:  events.Nop{},
		tracer:     otel.Tracer("govern/internal/alert"),
		batchLimit: defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateEntity evaluates one entity snapshot against every active rule for
// its entity type and returns the alerts created by this call.
//
// One rule failing never prevents evaluation of the remaining rules:
// configuration and evaluation errors are logged and counted per rule. Store
// failures are hard errors because no alert state can be guaranteed, except
// the dedup conflict, which means another evaluator already created the alert.
func (e *Engine) EvaluateEntity(ctx context.Context, entityType string, snapshot entity.Snapshot, entityID string) ([]*Alert, error) {
	created, _, err := e.evaluateEntity(ctx, entityType, snapshot, entityID)
	return created, err
}

// evaluateEntity additionally reports how many rules hit an evaluation error
// on this entity's data. Batch callers use the count to attribute bad entity
// shape to the item; configuration errors stay rule-scoped and are not
// counted against the entity.
func (e *Engine) evaluateEntity(ctx context.Context, entityType string, snapshot entity.Snapshot, entityID string) ([]*Alert, int, error) {
	ctx, span := e.tracer.Start(ctx, "alert.EvaluateEntity",
		trace.WithAttributes(
			attribute.String("entity.type", entityType),
			attribute.String("entity.id", entityID),
		))
	defer span.End()

	start := time.Now()
	defer func() { e.metrics.ObserveEvaluateLatency(time.Since(start)) }()

	activeRules, err := e.rules.ListActive(ctx, entityType)
	if err != nil {
		return nil, 0, fmt.Errorf("list active rules for %s: %w", entityType, err)
	}

	now := requestcontext.Now(ctx)
	var (
		created    []*Alert
		evalErrors int
	)
	for _, r := range activeRules {
		a, err := e.applyRule(ctx, now, r, entityType, snapshot, entityID)
		if err != nil {
			if isRuleError(err) {
				e.logRuleError(ctx, r, entityID, err)
				var evalErr *rule.EvalError
				if errors.As(err, &evalErr) {
					evalErrors++
				}
				continue
			}
			return created, evalErrors, err
		}
		if a != nil {
			created = append(created, a)
		}
	}

	span.SetAttributes(attribute.Int("alerts.created", len(created)))
	return created, evalErrors, nil
}

// applyRule evaluates one rule and creates the alert when it triggers.
// Returns (nil, nil) when the rule does not trigger or the trigger was
// deduplicated.
func (e *Engine) applyRule(ctx context.Context, now time.Time, r *rule.Rule, entityType string, snapshot entity.Snapshot, entityID string) (*Alert, error) {
	matched, err := e.ruleMatches(now, r, snapshot)
	if err != nil {
		return nil, err
	}
	if !matched {
		e.metrics.IncEvaluation(entityType, "no_match")
		return nil, nil
	}
	e.metrics.IncEvaluation(entityType, "matched")

	// Dedup: at most one ACTIVE alert per (rule, entity). The pre-check keeps
	// the common path cheap; the store's unique constraint closes the race.
	existing, err := e.alerts.FindActive(ctx, r.ID, entityID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("dedup check for rule %s: %w", r.ID, err)
	}
	if existing != nil {
		e.metrics.IncDeduplicated()
		return nil, nil
	}

	severity, err := SeverityFromScore(r.SeverityScore)
	if err != nil {
		return nil, err
	}

	a := &Alert{
		ID:                domain.NewAlertID(),
		RuleID:            r.ID,
		Type:              TypeForEntity(entityType),
		Severity:          severity,
		Status:            StatusActive,
		Title:             e.renderTitle(r, snapshot),
		RelatedEntityID:   entityID,
		RelatedEntityType: entityType,
		CreatedAt:         now,
	}

	if err := e.alerts.Save(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent evaluation won the race; the alert exists.
			e.metrics.IncDeduplicated()
			return nil, nil
		}
		return nil, fmt.Errorf("save alert for rule %s: %w", r.ID, err)
	}

	e.metrics.IncAlertCreated(string(severity))
	e.publish(ctx, events.Event{
		Kind:       events.KindAlertCreated,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: now,
		Fields: map[string]string{
			"alert_id": a.ID.String(),
			"rule_id":  r.ID.String(),
			"severity": string(severity),
		},
	})

	return a, nil
}

// ruleMatches runs the trigger-type evaluation path for one rule.
func (e *Engine) ruleMatches(now time.Time, r *rule.Rule, snapshot entity.Snapshot) (bool, error) {
	if !filtersMatch(r.Filters, snapshot) {
		return false, nil
	}

	value, ok := snapshot.Get(r.FieldName)
	if !ok {
		return false, &rule.ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("field %q not present in entity snapshot", r.FieldName)}
	}

	switch r.TriggerType {
	case rule.TriggerTimeBased:
		return rule.Evaluate(now, value, rule.OpDaysOverdue, r.ThresholdValue)
	case rule.TriggerThresholdBased:
		// Direction is fixed: the rule fires when the value exceeds the
		// threshold. Fields where "low is bad" must be pre-inverted by the
		// entity service.
		return rule.Evaluate(now, value, rule.OpGreaterThan, r.ThresholdValue)
	default:
		return false, &rule.ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("unknown trigger type %q", r.TriggerType)}
	}
}

// filtersMatch narrows rule applicability: every filter key is a field path
// whose snapshot value must equal the filter value.
func filtersMatch(filters map[string]string, snapshot entity.Snapshot) bool {
	for path, want := range filters {
		value, ok := snapshot.Get(path)
		if !ok || value.String() != want {
			return false
		}
	}
	return true
}

func (e *Engine) renderTitle(r *rule.Rule, snapshot entity.Snapshot) string {
	if r.AlertMessage != "" {
		return rule.RenderTitle(r.AlertMessage, snapshot)
	}
	switch r.TriggerType {
	case rule.TriggerThresholdBased:
		return fmt.Sprintf("%s threshold exceeded", r.Name)
	default:
		return fmt.Sprintf("%s overdue", r.Name)
	}
}

// EntityRecord pairs an entity ID with its snapshot for batch evaluation.
type EntityRecord struct {
	ID   string
	Data entity.Snapshot
}

// BatchResult summarizes one batch evaluation.
type BatchResult struct {
	Processed int
	Errors    int
	Alerts    []*Alert
}

// EvaluateBatch evaluates every entity in the collection with per-item fault
// isolation: one entity failing is counted and logged, never raised, so the
// batch always completes. Items are evaluated in parallel up to the batch
// limit; no entity's evaluation blocks on another's. Every item in the batch
// is judged against the same clock reading.
func (e *Engine) EvaluateBatch(ctx context.Context, entityType string, records []EntityRecord) (BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "alert.EvaluateBatch",
		trace.WithAttributes(
			attribute.String("entity.type", entityType),
			attribute.Int("batch.size", len(records)),
		))
	defer span.End()

	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g := new(errgroup.Group)
	g.SetLimit(e.batchLimit)
	for _, record := range records {
		g.Go(func() error {
			alerts, evalErrors, err := e.evaluateEntity(ctx, entityType, record.Data, record.ID)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			// Alerts persisted before a mid-entity failure exist in the store
			// and belong in the result either way.
			result.Alerts = append(result.Alerts, alerts...)
			switch {
			case err != nil:
				result.Errors++
				if e.logger != nil {
					e.logger.WarnContext(ctx, "batch item evaluation failed",
						"entity_type", entityType,
						"entity_id", record.ID,
						"error", err,
					)
				}
			case evalErrors > 0:
				result.Errors++
				if e.logger != nil {
					e.logger.WarnContext(ctx, "batch item has unevaluable data",
						"entity_type", entityType,
						"entity_id", record.ID,
						"eval_errors", evalErrors,
					)
				}
			}
			return nil
		})
	}
	// Group goroutines never return errors; per-item failures are isolated
	// into the result counters above.
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("batch.errors", result.Errors),
		attribute.Int("batch.alerts", len(result.Alerts)),
	)
	return result, nil
}

// AutoResolve transitions every ACTIVE alert for an entity to RESOLVED and
// returns how many were resolved. The entity service calls this after it
// detects the underlying condition has cleared; the engine does not poll.
func (e *Engine) AutoResolve(ctx context.Context, entityID, entityType string) (int, error) {
	active, err := e.alerts.ListActive(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("list active alerts for %s: %w", entityID, err)
	}

	now := requestcontext.Now(ctx)
	resolved := 0
	for _, a := range active {
		a.Status = StatusResolved
		a.ResolvedAt = &now
		if err := e.alerts.Update(ctx, a); err != nil {
			return resolved, fmt.Errorf("resolve alert %s: %w", a.ID, err)
		}
		resolved++

		e.publish(ctx, events.Event{
			Kind:       events.KindAlertAutoResolved,
			EntityType: entityType,
			EntityID:   entityID,
			OccurredAt: now,
			Fields:     map[string]string{"alert_id": a.ID.String()},
		})
	}

	e.metrics.AddAutoResolved(resolved)
	if e.logger != nil && resolved > 0 {
		e.logger.InfoContext(ctx, "alerts auto-resolved",
			"entity_type", entityType,
			"entity_id", entityID,
			"count", resolved,
		)
	}
	return resolved, nil
}

// CleanupOldAlerts deletes terminal-state (RESOLVED or DISMISSED) alerts older
// than the retention window. ACTIVE alerts are never deleted regardless of
// age.
func (e *Engine) CleanupOldAlerts(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := requestcontext.Now(ctx).AddDate(0, 0, -retentionDays)
	deleted, err := e.alerts.DeleteOlderThan(ctx, cutoff, []Status{StatusResolved, StatusDismissed})
	if err != nil {
		return 0, fmt.Errorf("cleanup old alerts: %w", err)
	}

	e.metrics.AddPurged(deleted)
	if e.logger != nil {
		e.logger.InfoContext(ctx, "alert retention cleanup complete",
			"retention_days", retentionDays,
			"deleted", deleted,
		)
	}
	if deleted > 0 {
		e.publish(ctx, events.Event{
			Kind:       events.KindAlertsPurged,
			OccurredAt: requestcontext.Now(ctx),
			Fields:     map[string]string{"deleted": fmt.Sprintf("%d", deleted)},
		})
	}
	return deleted, nil
}

// publish emits a lifecycle event fail-open: a broken feed never fails the
// engine operation.
func (e *Engine) publish(ctx context.Context, event events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			"kind", event.Kind,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

func (e *Engine) logRuleError(ctx context.Context, r *rule.Rule, entityID string, err error) {
	var cfgErr *rule.ConfigError
	outcome := "eval_error"
	if errors.As(err, &cfgErr) {
		outcome = "config_error"
	}
	e.metrics.IncEvaluation(r.EntityType, outcome)

	if e.logger != nil {
		e.logger.ErrorContext(ctx, "rule evaluation failed",
			"rule_id", r.ID,
			"rule_name", r.Name,
			"entity_id", entityID,
			"outcome", outcome,
			"error", err,
		)
	}
}

// isRuleError reports whether the error is scoped to one rule (bad config or
// bad entity data) rather than a store failure.
func isRuleError(err error) bool {
	var cfgErr *rule.ConfigError
	var evalErr *rule.EvalError
	return errors.As(err, &cfgErr) || errors.As(err, &evalErr)
}
