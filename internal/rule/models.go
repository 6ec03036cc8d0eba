// Package rule defines alerting rules, the condition operator vocabulary, and
// the predicate evaluator shared by the alert engine and the workflow trigger
// engine.
package rule

import (
	"fmt"
	"time"

	"govern/pkg/domain"
)

// TriggerType selects the evaluation path for an alerting rule.
type TriggerType string

const (
	// TriggerTimeBased rules extract a date field and fire once the field is
	// more than ThresholdValue days in the past.
	TriggerTimeBased TriggerType = "TIME_BASED"
	// TriggerThresholdBased rules extract a numeric field and fire when the
	// value exceeds ThresholdValue. The comparison direction is fixed; rule
	// authors must choose fields whose "exceeds" semantics are the alerting
	// condition.
	TriggerThresholdBased TriggerType = "THRESHOLD_BASED"
)

// Operator is a predicate applied to one extracted field value.
type Operator string

const (
	OpEquals       Operator = "EQUALS"
	OpNotEquals    Operator = "NOT_EQUALS"
	OpGreaterThan  Operator = "GREATER_THAN"
	OpLessThan     Operator = "LESS_THAN"
	OpContains     Operator = "CONTAINS"
	OpNotContains  Operator = "NOT_CONTAINS"
	OpIsNull       Operator = "IS_NULL"
	OpIsNotNull    Operator = "IS_NOT_NULL"
	OpStatusEquals Operator = "STATUS_EQUALS"
	OpDaysOverdue  Operator = "DAYS_OVERDUE"
	OpIn           Operator = "IN"
)

var validOperators = map[Operator]bool{
	OpEquals:       true,
	OpNotEquals:    true,
	OpGreaterThan:  true,
	OpLessThan:     true,
	OpContains:     true,
	OpNotContains:  true,
	OpIsNull:       true,
	OpIsNotNull:    true,
	OpStatusEquals: true,
	OpDaysOverdue:  true,
	OpIn:           true,
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	return validOperators[op]
}

// Rule is an administrator-authored alerting rule. Rules are read by the
// engine; authoring happens through the store CRUD surface.
type Rule struct {
	ID          domain.RuleID
	Name        string
	Description string
	Active      bool
	TriggerType TriggerType
	// EntityType scopes the rule to one entity source ("policy", "control",
	// "sop", ...). Free-form by design: new governance entity kinds must not
	// require engine changes.
	EntityType string
	// FieldName is a dotted path into the entity snapshot.
	FieldName      string
	Condition      Operator
	ConditionValue string
	// ThresholdValue is a day count for TIME_BASED rules and a numeric cutoff
	// for THRESHOLD_BASED rules.
	ThresholdValue float64
	// SeverityScore maps to alert severity: 1 LOW, 2 MEDIUM, 3 HIGH, 4 CRITICAL.
	SeverityScore int
	// AlertMessage is an optional title template; {{field}} tokens are
	// substituted from the entity snapshot.
	AlertMessage string
	// Filters narrows which entities the rule applies to: every key is a field
	// path whose snapshot value must equal the filter value.
	Filters   map[string]string
	CreatedBy domain.UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces authoring-time invariants so misconfigured rules are
// rejected before the engine ever sees them.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return &ConfigError{RuleID: r.ID, Reason: "name is required"}
	}
	if r.EntityType == "" {
		return &ConfigError{RuleID: r.ID, Reason: "entity type is required"}
	}
	if r.FieldName == "" {
		return &ConfigError{RuleID: r.ID, Reason: "field name is required"}
	}
	switch r.TriggerType {
	case TriggerTimeBased, TriggerThresholdBased:
	default:
		return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("unknown trigger type %q", r.TriggerType)}
	}
	if r.SeverityScore < 1 || r.SeverityScore > 4 {
		return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("severity score %d outside 1..4", r.SeverityScore)}
	}
	if r.Condition != "" && !r.Condition.Valid() {
		return &ConfigError{RuleID: r.ID, Reason: fmt.Sprintf("unknown operator %q", r.Condition)}
	}
	return nil
}
