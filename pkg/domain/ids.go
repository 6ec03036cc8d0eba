package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Typed UUID identifiers for the governance domain. Construct via the Parse
// helpers at trust boundaries; direct casting bypasses validation.
type (
	RuleID        uuid.UUID
	AlertID       uuid.UUID
	TriggerRuleID uuid.UUID
	WorkflowID    uuid.UUID
	ExecutionID   uuid.UUID
	ApprovalID    uuid.UUID
	UserID        uuid.UUID
)

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", kind)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", kind, raw, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil UUID", kind)
	}
	return u, nil
}

func ParseRuleID(raw string) (RuleID, error) {
	u, err := parseUUID("rule id", raw)
	return RuleID(u), err
}

func ParseAlertID(raw string) (AlertID, error) {
	u, err := parseUUID("alert id", raw)
	return AlertID(u), err
}

func ParseTriggerRuleID(raw string) (TriggerRuleID, error) {
	u, err := parseUUID("trigger rule id", raw)
	return TriggerRuleID(u), err
}

func ParseWorkflowID(raw string) (WorkflowID, error) {
	u, err := parseUUID("workflow id", raw)
	return WorkflowID(u), err
}

func ParseExecutionID(raw string) (ExecutionID, error) {
	u, err := parseUUID("execution id", raw)
	return ExecutionID(u), err
}

func ParseApprovalID(raw string) (ApprovalID, error) {
	u, err := parseUUID("approval id", raw)
	return ApprovalID(u), err
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID("user id", raw)
	return UserID(u), err
}

func NewRuleID() RuleID               { return RuleID(uuid.New()) }
func NewAlertID() AlertID             { return AlertID(uuid.New()) }
func NewTriggerRuleID() TriggerRuleID { return TriggerRuleID(uuid.New()) }
func NewWorkflowID() WorkflowID       { return WorkflowID(uuid.New()) }
func NewExecutionID() ExecutionID     { return ExecutionID(uuid.New()) }
func NewApprovalID() ApprovalID       { return ApprovalID(uuid.New()) }
func NewUserID() UserID               { return UserID(uuid.New()) }

func (id RuleID) String() string        { return uuid.UUID(id).String() }
func (id AlertID) String() string       { return uuid.UUID(id).String() }
func (id TriggerRuleID) String() string { return uuid.UUID(id).String() }
func (id WorkflowID) String() string    { return uuid.UUID(id).String() }
func (id ExecutionID) String() string   { return uuid.UUID(id).String() }
func (id ApprovalID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }

func (id RuleID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id AlertID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id TriggerRuleID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id WorkflowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ExecutionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
