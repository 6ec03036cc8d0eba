package rule

import (
	"fmt"

	"govern/pkg/domain"
)

// ConfigError marks a rule misconfiguration: an unreadable field path bound to
// the wrong operator, a non-numeric comparison value, an out-of-range severity
// score. These are surfaced to the rule author and never silently defaulted.
type ConfigError struct {
	RuleID domain.RuleID
	Reason string
}

func (e *ConfigError) Error() string {
	if e.RuleID.IsNil() {
		return fmt.Sprintf("rule configuration: %s", e.Reason)
	}
	return fmt.Sprintf("rule %s configuration: %s", e.RuleID, e.Reason)
}

// EvalError marks an unexpected entity shape: a date field that does not
// parse, a numeric field holding a string. Batch evaluation isolates these per
// item; they never abort a batch.
type EvalError struct {
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation: %s", e.Reason)
}
