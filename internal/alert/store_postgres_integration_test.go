//go:build integration

package alert_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"govern/internal/alert"
	"govern/internal/rule"
	"govern/pkg/domain"
	"govern/pkg/sentinel"
	"govern/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *alert.PostgresStore
	ruleStore *rule.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = alert.NewPostgresStore(s.postgres.DB)
	s.ruleStore = rule.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "alerts", "alert_rules")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) createRule() *rule.Rule {
	r := &rule.Rule{
		ID:             domain.NewRuleID(),
		Name:           "review cycle overdue",
		Active:         true,
		TriggerType:    rule.TriggerTimeBased,
		EntityType:     "policy",
		FieldName:      "nextReviewDate",
		ThresholdValue: 30,
		SeverityScore:  3,
		CreatedBy:      domain.NewUserID(),
	}
	s.Require().NoError(s.ruleStore.Create(context.Background(), r))
	return r
}

func newAlert(ruleID domain.RuleID, entityID string) *alert.Alert {
	return &alert.Alert{
		ID:                domain.NewAlertID(),
		RuleID:            ruleID,
		Type:              alert.TypePolicyReviewOverdue,
		Severity:          alert.SeverityHigh,
		Status:            alert.StatusActive,
		Title:             "review cycle overdue",
		RelatedEntityID:   entityID,
		RelatedEntityType: "policy",
	}
}

// TestConcurrentSaveSingleActive verifies the active-dedup index: many
// evaluators racing to alert on the same (rule, entity) settle on one row.
func (s *PostgresStoreSuite) TestConcurrentSaveSingleActive() {
	ctx := context.Background()
	r := s.createRule()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.store.Save(ctx, newAlert(r.ID, "policy-1"))
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one save should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict error")

	active, err := s.store.ListActive(ctx, "policy-1")
	s.Require().NoError(err)
	s.Len(active, 1)
}

// TestResolvedAllowsNewActive verifies dedup applies only to ACTIVE alerts:
// after resolution the same (rule, entity) pair may alert again.
func (s *PostgresStoreSuite) TestResolvedAllowsNewActive() {
	ctx := context.Background()
	r := s.createRule()

	first := newAlert(r.ID, "policy-1")
	s.Require().NoError(s.store.Save(ctx, first))

	now := time.Now()
	first.Status = alert.StatusResolved
	first.ResolvedAt = &now
	s.Require().NoError(s.store.Update(ctx, first))

	s.Require().NoError(s.store.Save(ctx, newAlert(r.ID, "policy-1")))

	found, err := s.store.FindActive(ctx, r.ID, "policy-1")
	s.Require().NoError(err)
	s.NotEqual(first.ID, found.ID)
}

func (s *PostgresStoreSuite) TestFindActiveNotFound() {
	ctx := context.Background()
	r := s.createRule()

	_, err := s.store.FindActive(ctx, r.ID, "policy-none")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListActiveOrdersByCreation() {
	ctx := context.Background()
	r1 := s.createRule()
	r2 := s.createRule()

	a1 := newAlert(r1.ID, "policy-1")
	a1.CreatedAt = time.Now().Add(-time.Hour)
	a2 := newAlert(r2.ID, "policy-1")
	s.Require().NoError(s.store.Save(ctx, a2))
	s.Require().NoError(s.store.Save(ctx, a1))

	active, err := s.store.ListActive(ctx, "policy-1")
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(a1.ID, active[0].ID)
	s.Equal(a2.ID, active[1].ID)
}

func (s *PostgresStoreSuite) TestUpdateNotFound() {
	ctx := context.Background()
	r := s.createRule()

	ghost := newAlert(r.ID, "policy-1")
	err := s.store.Update(ctx, ghost)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestDeleteOlderThan verifies retention honors both the cutoff and the
// status filter: ACTIVE alerts are never purged.
func (s *PostgresStoreSuite) TestDeleteOlderThan() {
	ctx := context.Background()
	r1 := s.createRule()
	r2 := s.createRule()
	r3 := s.createRule()

	old := time.Now().Add(-30 * 24 * time.Hour)

	resolved := newAlert(r1.ID, "policy-1")
	resolved.Status = alert.StatusResolved
	resolved.CreatedAt = old
	s.Require().NoError(s.store.Save(ctx, resolved))

	dismissed := newAlert(r2.ID, "policy-2")
	dismissed.Status = alert.StatusDismissed
	dismissed.CreatedAt = old
	s.Require().NoError(s.store.Save(ctx, dismissed))

	stillActive := newAlert(r3.ID, "policy-3")
	stillActive.CreatedAt = old
	s.Require().NoError(s.store.Save(ctx, stillActive))

	freshResolved := newAlert(r1.ID, "policy-4")
	freshResolved.Status = alert.StatusResolved
	s.Require().NoError(s.store.Save(ctx, freshResolved))

	deleted, err := s.store.DeleteOlderThan(ctx, time.Now().Add(-7*24*time.Hour),
		[]alert.Status{alert.StatusResolved, alert.StatusDismissed})
	s.Require().NoError(err)
	s.Equal(2, deleted)

	remaining, err := s.store.ListActive(ctx, "policy-3")
	s.Require().NoError(err)
	s.Len(remaining, 1)
}
