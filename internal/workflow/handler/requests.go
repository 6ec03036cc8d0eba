package handler

import (
	"strings"

	"govern/internal/entity"
	"govern/internal/rule"
	"govern/internal/workflow"
	"govern/pkg/domain"
	"govern/pkg/httputil"
)

// EventRequest is the HTTP request body for POST /events.
type EventRequest struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Trigger    string          `json:"trigger"`
	Data       entity.Snapshot `json:"data"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EventRequest) Validate() error {
	r.EntityType = strings.TrimSpace(r.EntityType)
	if r.EntityType == "" {
		return httputil.Validation("entity_type is required")
	}
	r.EntityID = strings.TrimSpace(r.EntityID)
	if r.EntityID == "" {
		return httputil.Validation("entity_id is required")
	}
	if !workflow.Trigger(r.Trigger).Valid() {
		return httputil.Validation("trigger is not a known event class")
	}
	if r.Data == nil {
		return httputil.Validation("data is required")
	}
	return nil
}

// Event converts the body to an engine event.
func (r *EventRequest) Event() workflow.Event {
	return workflow.Event{
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Trigger:    workflow.Trigger(r.Trigger),
		Data:       r.Data,
	}
}

// ApprovalRequest is the HTTP request body for POST /approvals/{approvalID}.
type ApprovalRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

func (r *ApprovalRequest) Validate() error {
	switch workflow.StepStatus(r.Decision) {
	case workflow.StepApproved, workflow.StepRejected:
		return nil
	}
	return httputil.Validation("decision must be approved or rejected")
}

// ConditionRequest is one condition of a trigger rule request.
type ConditionRequest struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// TriggerRuleRequest is the HTTP request body for creating or updating a
// trigger rule.
type TriggerRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	EntityType  string             `json:"entity_type"`
	Trigger     string             `json:"trigger"`
	WorkflowID  string             `json:"workflow_id"`
	Priority    int                `json:"priority"`
	Active      *bool              `json:"active"`
	Conditions  []ConditionRequest `json:"conditions"`

	parsedWorkflowID domain.WorkflowID
}

func (r *TriggerRuleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return httputil.Validation("name is required")
	}
	r.EntityType = strings.TrimSpace(r.EntityType)
	if r.EntityType == "" {
		return httputil.Validation("entity_type is required")
	}
	if !workflow.Trigger(r.Trigger).Valid() {
		return httputil.Validation("trigger is not a known event class")
	}
	if len(r.Conditions) == 0 {
		return httputil.Validation("at least one condition is required")
	}

	workflowID, err := domain.ParseWorkflowID(r.WorkflowID)
	if err != nil {
		return httputil.Validation("workflow_id must be a UUID")
	}
	r.parsedWorkflowID = workflowID
	return nil
}

// ToRule builds the domain trigger rule. Condition-level invariants (operator
// subset) are enforced by TriggerRule.Validate through the store.
func (r *TriggerRuleRequest) ToRule(id domain.TriggerRuleID) *workflow.TriggerRule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	out := &workflow.TriggerRule{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		EntityType:  r.EntityType,
		Trigger:     workflow.Trigger(r.Trigger),
		WorkflowID:  r.parsedWorkflowID,
		Priority:    r.Priority,
		Active:      active,
	}
	for _, c := range r.Conditions {
		out.Conditions = append(out.Conditions, workflow.Condition{
			Field:    c.Field,
			Operator: rule.Operator(c.Operator),
			Value:    c.Value,
		})
	}
	return out
}

// TemplateRequest is the HTTP request body for POST /workflows.
type TemplateRequest struct {
	Name      string   `json:"name"`
	Approvers []string `json:"approvers"`

	parsedApprovers []domain.UserID
}

func (r *TemplateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return httputil.Validation("name is required")
	}
	if len(r.Approvers) == 0 {
		return httputil.Validation("at least one approver is required")
	}
	for _, a := range r.Approvers {
		userID, err := domain.ParseUserID(a)
		if err != nil {
			return httputil.Validation("approvers must be UUIDs")
		}
		r.parsedApprovers = append(r.parsedApprovers, userID)
	}
	return nil
}

// ToTemplate builds the domain template.
func (r *TemplateRequest) ToTemplate(id domain.WorkflowID) *workflow.Template {
	return &workflow.Template{
		ID:        id,
		Name:      r.Name,
		Approvers: r.parsedApprovers,
	}
}
