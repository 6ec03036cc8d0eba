package handler

import (
	"time"

	"govern/internal/workflow"
)

// StepResponse is the wire shape of one approval step.
type StepResponse struct {
	ID         string     `json:"id"`
	Order      int        `json:"order"`
	ApproverID string     `json:"approver_id"`
	Status     string     `json:"status"`
	Comments   string     `json:"comments,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// ExecutionResponse is the wire shape of one workflow execution. Status is
// derived at render time.
type ExecutionResponse struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	TriggerRuleID string         `json:"trigger_rule_id"`
	EntityID      string         `json:"entity_id"`
	EntityType    string         `json:"entity_type"`
	Trigger       string         `json:"trigger"`
	Status        string         `json:"status"`
	Steps         []StepResponse `json:"steps"`
	StartedAt     time.Time      `json:"started_at"`
}

// EventResponse is the HTTP response for POST /events.
type EventResponse struct {
	Started   bool               `json:"started"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
}

// TriggerRuleResponse is the wire shape of one trigger rule.
type TriggerRuleResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	EntityType  string             `json:"entity_type"`
	Trigger     string             `json:"trigger"`
	WorkflowID  string             `json:"workflow_id"`
	Priority    int                `json:"priority"`
	Active      bool               `json:"active"`
	Conditions  []ConditionRequest `json:"conditions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TriggerRuleListResponse is the HTTP response for GET /trigger-rules.
type TriggerRuleListResponse struct {
	Rules []TriggerRuleResponse `json:"rules"`
}

// TemplateResponse is the wire shape of one workflow template.
type TemplateResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Approvers []string  `json:"approvers"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateListResponse is the HTTP response for GET /workflows.
type TemplateListResponse struct {
	Workflows []TemplateResponse `json:"workflows"`
}

func fromExecution(e *workflow.Execution) *ExecutionResponse {
	resp := &ExecutionResponse{
		ID:            e.ID.String(),
		WorkflowID:    e.WorkflowID.String(),
		TriggerRuleID: e.TriggerRuleID.String(),
		EntityID:      e.EntityID,
		EntityType:    e.EntityType,
		Trigger:       string(e.Trigger),
		Status:        string(e.Status()),
		StartedAt:     e.StartedAt,
	}
	for _, s := range e.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			ID:         s.ID.String(),
			Order:      s.Order,
			ApproverID: s.ApproverID.String(),
			Status:     string(s.Status),
			Comments:   s.Comments,
			DecidedAt:  s.DecidedAt,
		})
	}
	return resp
}

func fromTriggerRule(r *workflow.TriggerRule) TriggerRuleResponse {
	resp := TriggerRuleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		EntityType:  r.EntityType,
		Trigger:     string(r.Trigger),
		WorkflowID:  r.WorkflowID.String(),
		Priority:    r.Priority,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, c := range r.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionRequest{
			Field:    c.Field,
			Operator: string(c.Operator),
			Value:    c.Value,
		})
	}
	return resp
}

func fromTemplate(t *workflow.Template) TemplateResponse {
	resp := TemplateResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
	}
	for _, a := range t.Approvers {
		resp.Approvers = append(resp.Approvers, a.String())
	}
	return resp
}
