// Package alert implements the alert rule engine: evaluation of governance
// entities against alerting rules, alert dedup, batch sweeps, and lifecycle
// maintenance (auto-resolve, retention cleanup).
package alert

import (
	"time"

	"govern/internal/rule"
	"govern/pkg/domain"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Status is the alert lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusResolved  Status = "RESOLVED"
	StatusDismissed Status = "DISMISSED"
)

// Type is the semantic alert category derived from the entity type.
type Type string

const (
	TypePolicyReviewOverdue      Type = "POLICY_REVIEW_OVERDUE"
	TypeControlAssessmentPastDue Type = "CONTROL_ASSESSMENT_PAST_DUE"
	TypeSOPExecutionFailure      Type = "SOP_EXECUTION_FAILURE"
	TypeCustom                   Type = "CUSTOM"
)

// Alert is a persisted notification that a governance entity has violated a
// rule. For a given (rule, entity) pair at most one alert is ACTIVE at any
// time; the stores enforce this.
type Alert struct {
	ID                domain.AlertID
	RuleID            domain.RuleID
	Type              Type
	Severity          Severity
	Status            Status
	Title             string
	RelatedEntityID   string
	RelatedEntityType string
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// SeverityFromScore maps a rule's severity score to an alert severity.
// Scores outside 1..4 are a configuration error: the engine fails closed and
// refuses to create an alert rather than silently defaulting to LOW.
func SeverityFromScore(score int) (Severity, error) {
	switch {
	case score >= 4:
		return SeverityCritical, nil
	case score == 3:
		return SeverityHigh, nil
	case score == 2:
		return SeverityMedium, nil
	case score == 1:
		return SeverityLow, nil
	default:
		return "", &rule.ConfigError{Reason: "severity score below 1 is unclassifiable"}
	}
}

// TypeForEntity maps an entity type to its semantic alert type. Unknown entity
// types produce CUSTOM alerts so new governance entity kinds work without
// engine changes.
func TypeForEntity(entityType string) Type {
	switch entityType {
	case "policy":
		return TypePolicyReviewOverdue
	case "control":
		return TypeControlAssessmentPastDue
	case "sop":
		return TypeSOPExecutionFailure
	default:
		return TypeCustom
	}
}
