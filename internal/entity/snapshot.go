// Package entity provides typed access to loosely-structured governance
// entity snapshots.
//
// The persistence layer hands the engine entity data as map[string]any (JSON
// decoded rows, API payloads). Rules address fields by dotted path. Snapshot
// wraps the map with an accessor that distinguishes "field missing" from
// "field present but null", which the IS_NULL / IS_NOT_NULL operators depend
// on.
package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a point-in-time view of one governance entity's data.
type Snapshot map[string]any

// Value is a single field value extracted from a snapshot.
type Value struct {
	raw any
}

// NewValue wraps a raw field value. Used by tests and by callers that already
// hold the extracted value.
func NewValue(raw any) Value {
	return Value{raw: raw}
}

// Get resolves a dotted path into the snapshot. The second return is false
// when any path segment is missing; a present-but-null field returns
// (Value{null}, true).
func (s Snapshot) Get(path string) (Value, bool) {
	if s == nil || path == "" {
		return Value{}, false
	}

	var current any = map[string]any(s)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return Value{}, false
		}
		current, ok = m[segment]
		if !ok {
			return Value{}, false
		}
	}
	return Value{raw: current}, true
}

// IsNull reports whether the field was present with an explicit null value.
func (v Value) IsNull() bool {
	return v.raw == nil
}

// Raw returns the underlying value.
func (v Value) Raw() any {
	return v.raw
}

// String renders the value for substring matching and template substitution.
// Null renders as the empty string.
func (v Value) String() string {
	if v.raw == nil {
		return ""
	}
	switch val := v.raw.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Float coerces the value to a float64. JSON decoding yields float64 for all
// numbers, but snapshots built in-process may carry native int types.
func (v Value) Float() (float64, bool) {
	switch val := v.raw.(type) {
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

// Time coerces the value to a time.Time. String values are parsed as RFC 3339
// with a date-only fallback, matching how entity services serialize dates.
func (v Value) Time() (time.Time, bool) {
	switch val := v.raw.(type) {
	case time.Time:
		return val, true
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
