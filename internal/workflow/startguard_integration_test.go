//go:build integration

package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"govern/internal/workflow"
	"govern/pkg/domain"
	"govern/pkg/testutil/containers"
)

type RedisStartGuardSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	guard *workflow.RedisStartGuard
}

func TestRedisStartGuardSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStartGuardSuite))
}

func (s *RedisStartGuardSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.guard = workflow.NewRedisStartGuard(s.redis.Client, time.Minute)
}

func (s *RedisStartGuardSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestConcurrentAcquire verifies exactly one of many racing evaluators claims
// a start key.
func (s *RedisStartGuardSuite) TestConcurrentAcquire() {
	ctx := context.Background()
	key := workflow.StartKey(domain.NewTriggerRuleID(), "policy-1", workflow.TriggerOnUpdate)
	const goroutines = 50

	var wg sync.WaitGroup
	var acquiredCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			acquired, err := s.guard.Acquire(ctx, key)
			s.NoError(err)
			if acquired {
				acquiredCount.Add(1)
			}
		}()
	}

	wg.Wait()
	s.Equal(int32(1), acquiredCount.Load(), "exactly one acquire should win")
}

func (s *RedisStartGuardSuite) TestDistinctKeysAreIndependent() {
	ctx := context.Background()
	ruleID := domain.NewTriggerRuleID()

	acquired, err := s.guard.Acquire(ctx, workflow.StartKey(ruleID, "policy-1", workflow.TriggerOnUpdate))
	s.Require().NoError(err)
	s.True(acquired)

	acquired, err = s.guard.Acquire(ctx, workflow.StartKey(ruleID, "policy-2", workflow.TriggerOnUpdate))
	s.Require().NoError(err)
	s.True(acquired, "different entity must claim its own key")

	acquired, err = s.guard.Acquire(ctx, workflow.StartKey(ruleID, "policy-1", workflow.TriggerOnStatusChange))
	s.Require().NoError(err)
	s.True(acquired, "different trigger must claim its own key")

	acquired, err = s.guard.Acquire(ctx, workflow.StartKey(ruleID, "policy-1", workflow.TriggerOnUpdate))
	s.Require().NoError(err)
	s.False(acquired, "replay of a claimed key must be denied")
}

// TestReleaseReopensKey verifies a released claim can be re-acquired, so a
// failed workflow start does not lock the event out for the claim TTL.
func (s *RedisStartGuardSuite) TestReleaseReopensKey() {
	ctx := context.Background()
	key := workflow.StartKey(domain.NewTriggerRuleID(), "policy-1", workflow.TriggerOnUpdate)

	acquired, err := s.guard.Acquire(ctx, key)
	s.Require().NoError(err)
	s.True(acquired)

	s.Require().NoError(s.guard.Release(ctx, key))

	acquired, err = s.guard.Acquire(ctx, key)
	s.Require().NoError(err)
	s.True(acquired, "a released key must be claimable again")
}

func (s *RedisStartGuardSuite) TestReleaseUnclaimedKeyIsHarmless() {
	ctx := context.Background()
	key := workflow.StartKey(domain.NewTriggerRuleID(), "policy-1", workflow.TriggerOnUpdate)
	s.Require().NoError(s.guard.Release(ctx, key))
}

// TestAcquireExpires verifies claims lapse after the TTL so a crashed
// evaluator does not block the event forever.
func (s *RedisStartGuardSuite) TestAcquireExpires() {
	ctx := context.Background()
	guard := workflow.NewRedisStartGuard(s.redis.Client, 100*time.Millisecond)
	key := workflow.StartKey(domain.NewTriggerRuleID(), "policy-1", workflow.TriggerOnUpdate)

	acquired, err := guard.Acquire(ctx, key)
	s.Require().NoError(err)
	s.True(acquired)

	time.Sleep(200 * time.Millisecond)

	acquired, err = guard.Acquire(ctx, key)
	s.Require().NoError(err)
	s.True(acquired, "claim should lapse after the TTL")
}
