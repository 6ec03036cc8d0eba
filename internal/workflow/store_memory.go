package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"govern/pkg/domain"
	"govern/pkg/sentinel"
)

// MemoryTriggerRuleStore is an in-memory TriggerRuleStore for tests and
// single-process deployments.
type MemoryTriggerRuleStore struct {
	mu    sync.RWMutex
	rules map[domain.TriggerRuleID]*TriggerRule
}

func NewMemoryTriggerRuleStore() *MemoryTriggerRuleStore {
	return &MemoryTriggerRuleStore{rules: make(map[domain.TriggerRuleID]*TriggerRule)}
}

func (s *MemoryTriggerRuleStore) Create(_ context.Context, r *TriggerRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return fmt.Errorf("create trigger rule %s: %w", r.ID, sentinel.ErrConflict)
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = cloneTriggerRule(r)
	return nil
}

func (s *MemoryTriggerRuleStore) Get(_ context.Context, id domain.TriggerRuleID) (*TriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("get trigger rule %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneTriggerRule(r), nil
}

func (s *MemoryTriggerRuleStore) Update(_ context.Context, r *TriggerRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[r.ID]
	if !exists {
		return fmt.Errorf("update trigger rule %s: %w", r.ID, sentinel.ErrNotFound)
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = cloneTriggerRule(r)
	return nil
}

func (s *MemoryTriggerRuleStore) Delete(_ context.Context, id domain.TriggerRuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("delete trigger rule %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryTriggerRuleStore) List(_ context.Context) ([]*TriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TriggerRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneTriggerRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryTriggerRuleStore) ListActive(_ context.Context, entityType string, trigger Trigger) ([]*TriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TriggerRule
	for _, r := range s.rules {
		if r.Active && r.EntityType == entityType && r.Trigger == trigger {
			out = append(out, cloneTriggerRule(r))
		}
	}
	sortByPriority(out)
	return out, nil
}

// sortByPriority orders rules priority-desc, rule ID asc on ties. This is the
// dispatch order for first-match-wins.
func sortByPriority(rules []*TriggerRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

func cloneTriggerRule(r *TriggerRule) *TriggerRule {
	cp := *r
	cp.Conditions = make([]Condition, len(r.Conditions))
	copy(cp.Conditions, r.Conditions)
	return &cp
}

// MemoryTemplateStore is an in-memory TemplateStore.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[domain.WorkflowID]*Template
}

func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[domain.WorkflowID]*Template)}
}

func (s *MemoryTemplateStore) Create(_ context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return fmt.Errorf("create template %s: %w", t.ID, sentinel.ErrConflict)
	}
	t.CreatedAt = time.Now()
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *MemoryTemplateStore) Get(_ context.Context, id domain.WorkflowID) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("get template %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneTemplate(t), nil
}

func (s *MemoryTemplateStore) List(_ context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func cloneTemplate(t *Template) *Template {
	cp := *t
	cp.Approvers = make([]domain.UserID, len(t.Approvers))
	copy(cp.Approvers, t.Approvers)
	return &cp
}

// MemoryExecutionStore is an in-memory ExecutionStore. Idempotency-key
// uniqueness is serialized under the store mutex.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[domain.ExecutionID]*Execution
	byKey      map[string]domain.ExecutionID
	byApproval map[domain.ApprovalID]domain.ExecutionID
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[domain.ExecutionID]*Execution),
		byKey:      make(map[string]domain.ExecutionID),
		byApproval: make(map[domain.ApprovalID]domain.ExecutionID),
	}
}

func (s *MemoryExecutionStore) Create(_ context.Context, e *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[e.ID]; exists {
		return fmt.Errorf("create execution %s: %w", e.ID, sentinel.ErrConflict)
	}
	if e.IdempotencyKey != "" {
		if _, exists := s.byKey[e.IdempotencyKey]; exists {
			return fmt.Errorf("create execution %s: %w", e.ID, sentinel.ErrConflict)
		}
	}

	s.executions[e.ID] = cloneExecution(e)
	if e.IdempotencyKey != "" {
		s.byKey[e.IdempotencyKey] = e.ID
	}
	for _, step := range e.Steps {
		s.byApproval[step.ID] = e.ID
	}
	return nil
}

func (s *MemoryExecutionStore) Get(_ context.Context, id domain.ExecutionID) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.executions[id]
	if !exists {
		return nil, fmt.Errorf("get execution %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneExecution(e), nil
}

func (s *MemoryExecutionStore) GetByApproval(_ context.Context, approvalID domain.ApprovalID) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execID, exists := s.byApproval[approvalID]
	if !exists {
		return nil, fmt.Errorf("get execution by approval %s: %w", approvalID, sentinel.ErrNotFound)
	}
	return cloneExecution(s.executions[execID]), nil
}

func (s *MemoryExecutionStore) UpdateStep(_ context.Context, step *ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execID, exists := s.byApproval[step.ID]
	if !exists {
		return fmt.Errorf("update step %s: %w", step.ID, sentinel.ErrNotFound)
	}

	e := s.executions[execID]
	for i := range e.Steps {
		if e.Steps[i].ID == step.ID {
			e.Steps[i] = *step
			return nil
		}
	}
	return fmt.Errorf("update step %s: %w", step.ID, sentinel.ErrNotFound)
}

func (s *MemoryExecutionStore) ListByEntity(_ context.Context, entityID string) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Execution
	for _, e := range s.executions {
		if e.EntityID == entityID {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func cloneExecution(e *Execution) *Execution {
	cp := *e
	cp.Steps = make([]ApprovalStep, len(e.Steps))
	copy(cp.Steps, e.Steps)
	for i := range cp.Steps {
		if e.Steps[i].DecidedAt != nil {
			decided := *e.Steps[i].DecidedAt
			cp.Steps[i].DecidedAt = &decided
		}
	}
	return &cp
}
