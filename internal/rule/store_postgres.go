package rule

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

// PostgresStore persists alerting rules in PostgreSQL. The store is pure I/O;
// validation and evaluation logic live in the rule package and the engines.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `id, name, description, is_active, trigger_type, entity_type,
	field_name, condition, condition_value, threshold_value, severity_score,
	alert_message, filters, created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	filters, err := json.Marshal(r.Filters)
	if err != nil {
		return fmt.Errorf("marshal rule filters: %w", err)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, description, is_active, trigger_type, entity_type,
			field_name, condition, condition_value, threshold_value, severity_score,
			alert_message, filters, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		uuid.UUID(r.ID), r.Name, r.Description, r.Active, string(r.TriggerType), r.EntityType,
		r.FieldName, string(r.Condition), r.ConditionValue, r.ThresholdValue, r.SeverityScore,
		r.AlertMessage, filters, uuid.UUID(r.CreatedBy), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create rule %s: %w", r.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.RuleID) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, uuid.UUID(id))
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get rule %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	filters, err := json.Marshal(r.Filters)
	if err != nil {
		return fmt.Errorf("marshal rule filters: %w", err)
	}

	r.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules SET name = $2, description = $3, is_active = $4, trigger_type = $5,
			entity_type = $6, field_name = $7, condition = $8, condition_value = $9,
			threshold_value = $10, severity_score = $11, alert_message = $12, filters = $13,
			updated_at = $14
		WHERE id = $1
	`,
		uuid.UUID(r.ID), r.Name, r.Description, r.Active, string(r.TriggerType),
		r.EntityType, r.FieldName, string(r.Condition), r.ConditionValue,
		r.ThresholdValue, r.SeverityScore, r.AlertMessage, filters, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update rule %s: %w", r.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.RuleID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete rule %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context, entityType string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules
		 WHERE is_active = TRUE AND entity_type = $1
		 ORDER BY id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r           Rule
		id          uuid.UUID
		createdBy   uuid.UUID
		triggerType string
		condition   string
		filters     []byte
	)
	err := row.Scan(&id, &r.Name, &r.Description, &r.Active, &triggerType, &r.EntityType,
		&r.FieldName, &condition, &r.ConditionValue, &r.ThresholdValue, &r.SeverityScore,
		&r.AlertMessage, &filters, &createdBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = domain.RuleID(id)
	r.CreatedBy = domain.UserID(createdBy)
	r.TriggerType = TriggerType(triggerType)
	r.Condition = Operator(condition)
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &r.Filters); err != nil {
			return nil, fmt.Errorf("unmarshal rule filters: %w", err)
		}
	}
	return &r, nil
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
