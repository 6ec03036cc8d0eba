package handler

import (
	"time"

	"govern/internal/rule"
)

// RuleResponse is the wire shape of one alerting rule.
type RuleResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Active         bool              `json:"active"`
	TriggerType    string            `json:"trigger_type"`
	EntityType     string            `json:"entity_type"`
	FieldName      string            `json:"field_name"`
	Condition      string            `json:"condition,omitempty"`
	ConditionValue string            `json:"condition_value,omitempty"`
	ThresholdValue float64           `json:"threshold_value"`
	SeverityScore  int               `json:"severity_score"`
	AlertMessage   string            `json:"alert_message,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ListResponse is the HTTP response for GET /rules.
type ListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

func fromRule(r *rule.Rule) RuleResponse {
	resp := RuleResponse{
		ID:             r.ID.String(),
		Name:           r.Name,
		Description:    r.Description,
		Active:         r.Active,
		TriggerType:    string(r.TriggerType),
		EntityType:     r.EntityType,
		FieldName:      r.FieldName,
		Condition:      string(r.Condition),
		ConditionValue: r.ConditionValue,
		ThresholdValue: r.ThresholdValue,
		SeverityScore:  r.SeverityScore,
		AlertMessage:   r.AlertMessage,
		Filters:        r.Filters,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if !r.CreatedBy.IsNil() {
		resp.CreatedBy = r.CreatedBy.String()
	}
	return resp
}

func fromRules(rules []*rule.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, fromRule(r))
	}
	return out
}
