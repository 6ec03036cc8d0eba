package rule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"govern/internal/entity"
)

// Evaluate applies one operator to one extracted field value. It is total and
// side-effect-free: every input yields either a boolean or an error, never a
// panic. now is passed explicitly so callers pin the clock for a whole batch.
//
// Numeric operators return a *ConfigError when the comparison value is not
// numeric (the rule is wrong) and an *EvalError when the entity value is not
// numeric (the data is wrong). The distinction matters: config errors go to
// rule authors, eval errors are isolated per entity.
func Evaluate(now time.Time, value entity.Value, op Operator, compareTo any) (bool, error) {
	switch op {
	case OpEquals:
		return looseEquals(value, compareTo), nil

	case OpNotEquals:
		return !looseEquals(value, compareTo), nil

	case OpGreaterThan:
		v, c, err := numericOperands(value, compareTo)
		if err != nil {
			return false, err
		}
		return v > c, nil

	case OpLessThan:
		v, c, err := numericOperands(value, compareTo)
		if err != nil {
			return false, err
		}
		return v < c, nil

	case OpContains:
		return strings.Contains(value.String(), stringify(compareTo)), nil

	case OpNotContains:
		return !strings.Contains(value.String(), stringify(compareTo)), nil

	case OpIsNull:
		return value.IsNull(), nil

	case OpIsNotNull:
		return !value.IsNull(), nil

	case OpStatusEquals:
		// Status vocabularies vary in casing across entity sources, so this
		// comparison is case-insensitive, unlike EQUALS.
		return strings.EqualFold(value.String(), stringify(compareTo)), nil

	case OpDaysOverdue:
		return daysOverdue(now, value, compareTo)

	case OpIn:
		return memberOf(value, compareTo)

	default:
		return false, &ConfigError{Reason: fmt.Sprintf("unknown operator %q", op)}
	}
}

// looseEquals compares numerically when both operands are numbers and falls
// back to case-sensitive string comparison otherwise. Entity snapshots come
// from JSON, so 3 and 3.0 must compare equal.
func looseEquals(value entity.Value, compareTo any) bool {
	if v, ok := value.Float(); ok {
		if c, ok := toFloat(compareTo); ok {
			return v == c
		}
	}
	if value.IsNull() {
		return compareTo == nil
	}
	return value.String() == stringify(compareTo)
}

func numericOperands(value entity.Value, compareTo any) (float64, float64, error) {
	c, ok := toFloat(compareTo)
	if !ok {
		return 0, 0, &ConfigError{Reason: fmt.Sprintf("comparison value %v is not numeric", compareTo)}
	}
	v, ok := value.Float()
	if !ok {
		return 0, 0, &EvalError{Reason: fmt.Sprintf("value %v is not numeric", value.Raw())}
	}
	return v, c, nil
}

// daysOverdue reports whether the value date lies more than compareTo whole
// days in the past. A future date yields a negative elapsed count and never
// matches.
func daysOverdue(now time.Time, value entity.Value, compareTo any) (bool, error) {
	threshold, ok := toFloat(compareTo)
	if !ok {
		return false, &ConfigError{Reason: fmt.Sprintf("day threshold %v is not numeric", compareTo)}
	}
	t, ok := value.Time()
	if !ok {
		return false, &EvalError{Reason: fmt.Sprintf("value %v is not a date", value.Raw())}
	}
	elapsedDays := int(now.Sub(t).Hours() / 24)
	return float64(elapsedDays) > threshold, nil
}

// memberOf tests set membership with EQUALS semantics per element.
func memberOf(value entity.Value, compareTo any) (bool, error) {
	switch set := compareTo.(type) {
	case []any:
		for _, member := range set {
			if looseEquals(value, member) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, member := range set {
			if looseEquals(value, member) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &ConfigError{Reason: fmt.Sprintf("IN comparison value %v is not a list", compareTo)}
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
