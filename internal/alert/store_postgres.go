package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"govern/pkg/domain"
	"govern/pkg/sentinel"
)

// PostgresStore persists alerts in PostgreSQL.
//
// The dedup invariant is enforced by a partial unique index on
// (rule_id, related_entity_id) WHERE status = 'ACTIVE'; a violation surfaces
// as sentinel.ErrConflict so concurrent evaluators settle on one alert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `id, rule_id, type, severity, status, title,
	related_entity_id, related_entity_type, created_at, resolved_at`

func (s *PostgresStore) FindActive(ctx context.Context, ruleID domain.RuleID, entityID string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE rule_id = $1 AND related_entity_id = $2 AND status = 'ACTIVE'
	`, uuid.UUID(ruleID), entityID)

	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find active alert for rule %s entity %s: %w", ruleID, entityID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Save(ctx context.Context, a *Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, type, severity, status, title,
			related_entity_id, related_entity_type, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(a.ID), uuid.UUID(a.RuleID), string(a.Type), string(a.Severity),
		string(a.Status), a.Title, a.RelatedEntityID, a.RelatedEntityType,
		a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("save alert for rule %s entity %s: %w", a.RuleID, a.RelatedEntityID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, entityID string) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE related_entity_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at, id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = $2, title = $3, resolved_at = $4
		WHERE id = $1
	`, uuid.UUID(a.ID), string(a.Status), a.Title, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update alert %s: %w", a.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []Status) (int, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM alerts
		WHERE status = ANY($1) AND created_at < $2
	`, pq.Array(strs), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old alerts: rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a        Alert
		id       uuid.UUID
		ruleID   uuid.UUID
		typ      string
		severity string
		status   string
	)
	err := row.Scan(&id, &ruleID, &typ, &severity, &status, &a.Title,
		&a.RelatedEntityID, &a.RelatedEntityType, &a.CreatedAt, &a.ResolvedAt)
	if err != nil {
		return nil, err
	}
	a.ID = domain.AlertID(id)
	a.RuleID = domain.RuleID(ruleID)
	a.Type = Type(typ)
	a.Severity = Severity(severity)
	a.Status = Status(status)
	return &a, nil
}
