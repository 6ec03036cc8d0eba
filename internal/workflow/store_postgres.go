package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"govern/pkg/domain"
	"govern/pkg/sentinel"
)

// PostgresTriggerRuleStore persists trigger rules in PostgreSQL. Conditions
// are stored as a JSONB document on the rule row; they are always read and
// written as a unit.
type PostgresTriggerRuleStore struct {
	db *sql.DB
}

func NewPostgresTriggerRuleStore(db *sql.DB) *PostgresTriggerRuleStore {
	return &PostgresTriggerRuleStore{db: db}
}

const triggerRuleColumns = `id, name, description, entity_type, trigger, workflow_id,
	priority, active, conditions, created_at, updated_at`

func (s *PostgresTriggerRuleStore) Create(ctx context.Context, r *TriggerRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_trigger_rules (id, name, description, entity_type, trigger,
			workflow_id, priority, active, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(r.ID), r.Name, r.Description, r.EntityType, string(r.Trigger),
		uuid.UUID(r.WorkflowID), r.Priority, r.Active, conditions, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create trigger rule %s: %w", r.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create trigger rule: %w", err)
	}
	return nil
}

func (s *PostgresTriggerRuleStore) Get(ctx context.Context, id domain.TriggerRuleID) (*TriggerRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+triggerRuleColumns+` FROM workflow_trigger_rules WHERE id = $1
	`, uuid.UUID(id))

	r, err := scanTriggerRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get trigger rule %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get trigger rule: %w", err)
	}
	return r, nil
}

func (s *PostgresTriggerRuleStore) Update(ctx context.Context, r *TriggerRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	r.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_trigger_rules
		SET name = $2, description = $3, entity_type = $4, trigger = $5,
			workflow_id = $6, priority = $7, active = $8, conditions = $9, updated_at = $10
		WHERE id = $1
	`,
		uuid.UUID(r.ID), r.Name, r.Description, r.EntityType, string(r.Trigger),
		uuid.UUID(r.WorkflowID), r.Priority, r.Active, conditions, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update trigger rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update trigger rule %s: %w", r.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresTriggerRuleStore) Delete(ctx context.Context, id domain.TriggerRuleID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_trigger_rules WHERE id = $1
	`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete trigger rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete trigger rule %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresTriggerRuleStore) List(ctx context.Context) ([]*TriggerRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+triggerRuleColumns+` FROM workflow_trigger_rules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	return collectTriggerRules(rows)
}

func (s *PostgresTriggerRuleStore) ListActive(ctx context.Context, entityType string, trigger Trigger) ([]*TriggerRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+triggerRuleColumns+` FROM workflow_trigger_rules
		WHERE active AND entity_type = $1 AND trigger = $2
		ORDER BY priority DESC, id
	`, entityType, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list active trigger rules: %w", err)
	}
	return collectTriggerRules(rows)
}

func collectTriggerRules(rows *sql.Rows) ([]*TriggerRule, error) {
	defer rows.Close()

	var out []*TriggerRule
	for rows.Next() {
		r, err := scanTriggerRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger rules: %w", err)
	}
	return out, nil
}

func scanTriggerRule(row rowScanner) (*TriggerRule, error) {
	var (
		r          TriggerRule
		id         uuid.UUID
		workflowID uuid.UUID
		trigger    string
		conditions []byte
	)
	err := row.Scan(&id, &r.Name, &r.Description, &r.EntityType, &trigger,
		&workflowID, &r.Priority, &r.Active, &conditions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	r.ID = domain.TriggerRuleID(id)
	r.WorkflowID = domain.WorkflowID(workflowID)
	r.Trigger = Trigger(trigger)
	return &r, nil
}

// PostgresTemplateStore persists workflow templates in PostgreSQL.
type PostgresTemplateStore struct {
	db *sql.DB
}

func NewPostgresTemplateStore(db *sql.DB) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

func (s *PostgresTemplateStore) Create(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	approvers := make([]string, len(t.Approvers))
	for i, a := range t.Approvers {
		approvers[i] = a.String()
	}

	t.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_templates (id, name, approvers, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(t.ID), t.Name, pq.Array(approvers), t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create template %s: %w", t.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresTemplateStore) Get(ctx context.Context, id domain.WorkflowID) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, approvers, created_at FROM workflow_templates WHERE id = $1
	`, uuid.UUID(id))

	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get template %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *PostgresTemplateStore) List(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, approvers, created_at FROM workflow_templates ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	var (
		t         Template
		id        uuid.UUID
		approvers []string
	)
	if err := row.Scan(&id, &t.Name, pq.Array(&approvers), &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = domain.WorkflowID(id)
	for _, a := range approvers {
		userID, err := domain.ParseUserID(a)
		if err != nil {
			return nil, fmt.Errorf("parse approver %q: %w", a, err)
		}
		t.Approvers = append(t.Approvers, userID)
	}
	return &t, nil
}

// PostgresExecutionStore persists executions and their approval steps.
//
// Idempotent start is enforced by a unique index on
// workflow_executions.idempotency_key; a violation surfaces as
// sentinel.ErrConflict so concurrent evaluators settle on one execution.
type PostgresExecutionStore struct {
	db *sql.DB
}

func NewPostgresExecutionStore(db *sql.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

func (s *PostgresExecutionStore) Create(ctx context.Context, e *Execution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin execution insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, trigger_rule_id, entity_id,
			entity_type, trigger, idempotency_key, cancelled, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(e.ID), uuid.UUID(e.WorkflowID), uuid.UUID(e.TriggerRuleID),
		e.EntityID, e.EntityType, string(e.Trigger), e.IdempotencyKey, e.Cancelled, e.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create execution for key %s: %w", e.IdempotencyKey, sentinel.ErrConflict)
		}
		return fmt.Errorf("create execution: %w", err)
	}

	for _, step := range e.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_approvals (id, execution_id, step_order, approver_id,
				status, comments, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			uuid.UUID(step.ID), uuid.UUID(e.ID), step.Order, uuid.UUID(step.ApproverID),
			string(step.Status), step.Comments, step.DecidedAt,
		)
		if err != nil {
			return fmt.Errorf("create approval step %d: %w", step.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution insert: %w", err)
	}
	return nil
}

const executionColumns = `id, workflow_id, trigger_rule_id, entity_id, entity_type,
	trigger, idempotency_key, cancelled, started_at`

func (s *PostgresExecutionStore) Get(ctx context.Context, id domain.ExecutionID) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1
	`, uuid.UUID(id))

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get execution %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	if err := s.loadSteps(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresExecutionStore) GetByApproval(ctx context.Context, approvalID domain.ApprovalID) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.workflow_id, e.trigger_rule_id, e.entity_id, e.entity_type,
			e.trigger, e.idempotency_key, e.cancelled, e.started_at
		FROM workflow_executions e
		JOIN workflow_approvals a ON a.execution_id = e.id
		WHERE a.id = $1
	`, uuid.UUID(approvalID))

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get execution by approval %s: %w", approvalID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get execution by approval: %w", err)
	}
	if err := s.loadSteps(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresExecutionStore) UpdateStep(ctx context.Context, step *ApprovalStep) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_approvals SET status = $2, comments = $3, decided_at = $4
		WHERE id = $1
	`, uuid.UUID(step.ID), string(step.Status), step.Comments, step.DecidedAt)
	if err != nil {
		return fmt.Errorf("update approval step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update approval step %s: %w", step.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresExecutionStore) ListByEntity(ctx context.Context, entityID string) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM workflow_executions
		WHERE entity_id = $1
		ORDER BY started_at DESC, id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}

	for _, e := range out {
		if err := s.loadSteps(ctx, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresExecutionStore) loadSteps(ctx context.Context, e *Execution) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, step_order, approver_id, status, comments, decided_at
		FROM workflow_approvals
		WHERE execution_id = $1
		ORDER BY step_order
	`, uuid.UUID(e.ID))
	if err != nil {
		return fmt.Errorf("load approval steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			step       ApprovalStep
			id         uuid.UUID
			execID     uuid.UUID
			approverID uuid.UUID
			status     string
		)
		err := rows.Scan(&id, &execID, &step.Order, &approverID, &status,
			&step.Comments, &step.DecidedAt)
		if err != nil {
			return fmt.Errorf("scan approval step: %w", err)
		}
		step.ID = domain.ApprovalID(id)
		step.ExecutionID = domain.ExecutionID(execID)
		step.ApproverID = domain.UserID(approverID)
		step.Status = StepStatus(status)
		e.Steps = append(e.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate approval steps: %w", err)
	}
	return nil
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		e             Execution
		id            uuid.UUID
		workflowID    uuid.UUID
		triggerRuleID uuid.UUID
		trigger       string
	)
	err := row.Scan(&id, &workflowID, &triggerRuleID, &e.EntityID, &e.EntityType,
		&trigger, &e.IdempotencyKey, &e.Cancelled, &e.StartedAt)
	if err != nil {
		return nil, err
	}
	e.ID = domain.ExecutionID(id)
	e.WorkflowID = domain.WorkflowID(workflowID)
	e.TriggerRuleID = domain.TriggerRuleID(triggerRuleID)
	e.Trigger = Trigger(trigger)
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
