// Package workflow implements the workflow trigger engine: multi-condition
// trigger rules evaluated on entity-change events, first-match-wins dispatch,
// and the approval chain lifecycle of started executions.
package workflow

import (
	"fmt"
	"time"

	"govern/internal/rule"
	"govern/pkg/domain"
)

// Trigger is the entity-change event class a trigger rule listens on.
type Trigger string

const (
	TriggerOnCreate         Trigger = "on_create"
	TriggerOnUpdate         Trigger = "on_update"
	TriggerOnStatusChange   Trigger = "on_status_change"
	TriggerOnDeadlinePassed Trigger = "on_deadline_passed"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerOnCreate, TriggerOnUpdate, TriggerOnStatusChange, TriggerOnDeadlinePassed:
		return true
	}
	return false
}

// triggerOperators is the operator subset trigger-rule conditions may use.
// The time-based and null-check operators belong to the alerting side.
var triggerOperators = map[rule.Operator]bool{
	rule.OpEquals:      true,
	rule.OpNotEquals:   true,
	rule.OpContains:    true,
	rule.OpGreaterThan: true,
	rule.OpLessThan:    true,
	rule.OpIn:          true,
}

// Condition is one predicate of a trigger rule. All conditions of a rule are
// combined with AND.
type Condition struct {
	Field    string        `json:"field"`
	Operator rule.Operator `json:"operator"`
	Value    any           `json:"value"`
}

// TriggerRule starts a workflow when an entity-change event matches every one
// of its conditions. Overlapping rules are disambiguated by priority.
type TriggerRule struct {
	ID          domain.TriggerRuleID
	Name        string
	Description string
	EntityType  string
	Trigger     Trigger
	WorkflowID  domain.WorkflowID
	// Priority orders overlapping rules; the highest-priority match wins.
	Priority   int
	Active     bool
	Conditions []Condition
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate enforces authoring-time invariants on a trigger rule.
func (r *TriggerRule) Validate() error {
	if r.Name == "" {
		return &rule.ConfigError{Reason: "name is required"}
	}
	if r.EntityType == "" {
		return &rule.ConfigError{Reason: "entity type is required"}
	}
	if !r.Trigger.Valid() {
		return &rule.ConfigError{Reason: fmt.Sprintf("unknown trigger %q", r.Trigger)}
	}
	if r.WorkflowID.IsNil() {
		return &rule.ConfigError{Reason: "workflow id is required"}
	}
	if len(r.Conditions) == 0 {
		return &rule.ConfigError{Reason: "at least one condition is required"}
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return &rule.ConfigError{Reason: fmt.Sprintf("condition %d: field is required", i)}
		}
		if !triggerOperators[c.Operator] {
			return &rule.ConfigError{Reason: fmt.Sprintf("condition %d: operator %q not allowed in trigger rules", i, c.Operator)}
		}
	}
	return nil
}

// Template is a workflow definition: a named, ordered approver chain that
// started executions copy their steps from.
type Template struct {
	ID        domain.WorkflowID
	Name      string
	Approvers []domain.UserID
	CreatedAt time.Time
}

// Validate enforces template invariants.
func (t *Template) Validate() error {
	if t.Name == "" {
		return &rule.ConfigError{Reason: "template name is required"}
	}
	if len(t.Approvers) == 0 {
		return &rule.ConfigError{Reason: "template needs at least one approver"}
	}
	for i, a := range t.Approvers {
		if a.IsNil() {
			return &rule.ConfigError{Reason: fmt.Sprintf("approver %d: user id is required", i)}
		}
	}
	return nil
}

// StepStatus is the state of one approval step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// ExecutionStatus is the aggregate state of an execution, derived from its
// step statuses.
type ExecutionStatus string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusInProgress ExecutionStatus = "in_progress"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusCancelled  ExecutionStatus = "cancelled"
)

// ApprovalStep is one step of an execution's approval chain. Order is fixed
// when the execution starts.
type ApprovalStep struct {
	ID          domain.ApprovalID
	ExecutionID domain.ExecutionID
	Order       int
	ApproverID  domain.UserID
	Status      StepStatus
	Comments    string
	DecidedAt   *time.Time
}

// Execution is one started workflow instance bound to the triggering entity.
type Execution struct {
	ID            domain.ExecutionID
	WorkflowID    domain.WorkflowID
	TriggerRuleID domain.TriggerRuleID
	EntityID      string
	EntityType    string
	Trigger       Trigger
	// IdempotencyKey makes first-match-wins safe under concurrency: at most
	// one execution exists per (rule, entity, trigger event).
	IdempotencyKey string
	Cancelled      bool
	Steps          []ApprovalStep
	StartedAt      time.Time
}

// Status derives the aggregate execution state from the steps: failed on any
// rejection, completed once the final step is approved with no prior
// rejection, pending before any decision, in_progress otherwise.
func (e *Execution) Status() ExecutionStatus {
	if e.Cancelled {
		return StatusCancelled
	}

	decided := 0
	for _, s := range e.Steps {
		switch s.Status {
		case StepRejected:
			return StatusFailed
		case StepApproved:
			decided++
		}
	}
	if len(e.Steps) > 0 && decided == len(e.Steps) {
		return StatusCompleted
	}
	if decided == 0 {
		return StatusPending
	}
	return StatusInProgress
}

// StartKey is the idempotency key for starting a workflow off one event.
func StartKey(ruleID domain.TriggerRuleID, entityID string, trigger Trigger) string {
	return fmt.Sprintf("%s:%s:%s", ruleID, entityID, trigger)
}
