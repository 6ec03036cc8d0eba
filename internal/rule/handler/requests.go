package handler

import (
	"strings"
	"time"

	"govern/internal/rule"
	"govern/pkg/domain"
	"govern/pkg/httputil"
)

// RuleRequest is the HTTP request body for creating or updating an alerting
// rule. Structural validation happens here; rule-level invariants are enforced
// by rule.Rule.Validate through the store.
type RuleRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Active         *bool             `json:"active"`
	TriggerType    string            `json:"trigger_type"`
	EntityType     string            `json:"entity_type"`
	FieldName      string            `json:"field_name"`
	Condition      string            `json:"condition"`
	ConditionValue string            `json:"condition_value"`
	ThresholdValue float64           `json:"threshold_value"`
	SeverityScore  int               `json:"severity_score"`
	AlertMessage   string            `json:"alert_message"`
	Filters        map[string]string `json:"filters"`
	CreatedBy      string            `json:"created_by"`

	parsedCreatedBy domain.UserID
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RuleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return httputil.Validation("name is required")
	}
	r.EntityType = strings.TrimSpace(r.EntityType)
	if r.EntityType == "" {
		return httputil.Validation("entity_type is required")
	}
	r.FieldName = strings.TrimSpace(r.FieldName)
	if r.FieldName == "" {
		return httputil.Validation("field_name is required")
	}
	if r.SeverityScore < 1 || r.SeverityScore > 4 {
		return httputil.Validation("severity_score must be between 1 and 4")
	}
	if r.Condition != "" && !rule.Operator(r.Condition).Valid() {
		return httputil.Validation("condition is not a known operator")
	}

	if r.CreatedBy != "" {
		userID, err := domain.ParseUserID(r.CreatedBy)
		if err != nil {
			return httputil.Validation("created_by must be a UUID")
		}
		r.parsedCreatedBy = userID
	}
	return nil
}

// ToRule builds the domain rule. A nil active flag defaults to true so newly
// authored rules take effect immediately.
func (r *RuleRequest) ToRule(id domain.RuleID, now time.Time) *rule.Rule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &rule.Rule{
		ID:             id,
		Name:           r.Name,
		Description:    r.Description,
		Active:         active,
		TriggerType:    rule.TriggerType(r.TriggerType),
		EntityType:     r.EntityType,
		FieldName:      r.FieldName,
		Condition:      rule.Operator(r.Condition),
		ConditionValue: r.ConditionValue,
		ThresholdValue: r.ThresholdValue,
		SeverityScore:  r.SeverityScore,
		AlertMessage:   r.AlertMessage,
		Filters:        r.Filters,
		CreatedBy:      r.parsedCreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
