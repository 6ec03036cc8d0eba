package rule

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
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[domain.RuleID]*Rule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[domain.RuleID]*Rule)}
}

func (s *MemoryStore) Create(_ context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return fmt.Errorf("create rule %s: %w", r.ID, sentinel.ErrConflict)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.RuleID) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("get rule %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneRule(r), nil
}

func (s *MemoryStore) Update(_ context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[r.ID]
	if !exists {
		return fmt.Errorf("update rule %s: %w", r.ID, sentinel.ErrNotFound)
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id domain.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("delete rule %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context, entityType string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if r.Active && r.EntityType == entityType {
			out = append(out, cloneRule(r))
		}
	}
	sortRules(out)
	return out, nil
}

func sortRules(rules []*Rule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

func cloneRule(r *Rule) *Rule {
	cp := *r
	if r.Filters != nil {
		cp.Filters = make(map[string]string, len(r.Filters))
		for k, v := range r.Filters {
			cp.Filters[k] = v
		}
	}
	return &cp
}
