package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"govern/pkg/domain"
	"govern/pkg/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-process deployments.
// The dedup invariant is serialized under the store mutex.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[domain.AlertID]*Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[domain.AlertID]*Alert)}
}

func (s *MemoryStore) FindActive(_ context.Context, ruleID domain.RuleID, entityID string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.RuleID == ruleID && a.RelatedEntityID == entityID && a.Status == StatusActive {
			return cloneAlert(a), nil
		}
	}
	return nil, fmt.Errorf("find active alert for rule %s entity %s: %w", ruleID, entityID, sentinel.ErrNotFound)
}

func (s *MemoryStore) Save(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Status == StatusActive {
		for _, existing := range s.alerts {
			if existing.RuleID == a.RuleID && existing.RelatedEntityID == a.RelatedEntityID &&
				existing.Status == StatusActive && existing.ID != a.ID {
				return fmt.Errorf("save alert for rule %s entity %s: %w", a.RuleID, a.RelatedEntityID, sentinel.ErrConflict)
			}
		}
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context, entityID string) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, a := range s.alerts {
		if a.RelatedEntityID == entityID && a.Status == StatusActive {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; !exists {
		return fmt.Errorf("update alert %s: %w", a.ID, sentinel.ErrNotFound)
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time, statuses []Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}

	deleted := 0
	for id, a := range s.alerts {
		if allowed[a.Status] && a.CreatedAt.Before(cutoff) {
			delete(s.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

// All returns every stored alert, newest last. Test helper.
func (s *MemoryStore) All() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func cloneAlert(a *Alert) *Alert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
