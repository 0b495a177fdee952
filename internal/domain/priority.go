package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Priority orders issues by urgency: 0 is critical, 4 is deferred.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityMedium   Priority = 2
	PriorityLow      Priority = 3
	PriorityDeferred Priority = 4

	PriorityDefault = PriorityMedium
)

var priorityNames = map[string]Priority{
	"critical": PriorityCritical,
	"high":     PriorityHigh,
	"medium":   PriorityMedium,
	"normal":   PriorityMedium,
	"low":      PriorityLow,
	"deferred": PriorityDeferred,
}

// Valid reports whether p is within 0..4.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityDeferred
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityDeferred:
		return "deferred"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePriority accepts a case-insensitive name or a decimal integer.
func ParsePriority(s string) (Priority, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if p, ok := priorityNames[key]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("invalid priority value %q", s)}
	}
	p := Priority(n)
	if !p.Valid() {
		return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %d", n)}
	}
	return p, nil
}

// PriorityFromValue normalises a loosely typed value (JSON number, Go int or
// string name) into a Priority.
func PriorityFromValue(v any) (Priority, error) {
	switch val := v.(type) {
	case Priority:
		if !val.Valid() {
			return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %d", int(val))}
		}
		return val, nil
	case int:
		return PriorityFromValue(Priority(val))
	case int64:
		return PriorityFromValue(Priority(val))
	case float64:
		if val != math.Trunc(val) {
			return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be an integer, got %v", val)}
		}
		if math.Abs(val) > float64(PriorityDeferred) {
			return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("priority must be 0-4, got %v", val)}
		}
		return PriorityFromValue(Priority(int(val)))
	case json.Number:
		return ParsePriority(val.String())
	case string:
		return ParsePriority(val)
	default:
		return 0, ValidationError{Field: "priority", Msg: fmt.Sprintf("invalid priority type %T", v)}
	}
}

// UnmarshalJSON accepts both the integer encoding and the names.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
