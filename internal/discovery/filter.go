package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/signalcraft/beacon/internal/domain"
)

type Op int

const (
	OpEquals Op = iota
	OpGte
	OpLte
)

// Predicate is the closed union of property tests a filter may carry. A
// bare JSON literal means equality; an operator object selects one of the
// known comparisons. Unknown operators fail at parse time.
type Predicate struct {
	Op    Op
	Value any
}

func (p *Predicate) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	obj, isObject := raw.(map[string]any)
	if !isObject {
		p.Op = OpEquals
		p.Value = raw
		return nil
	}

	if len(obj) != 1 {
		return fmt.Errorf("predicate must hold exactly one operator, got %d", len(obj))
	}

	for op, value := range obj {
		switch op {
		case "$eq":
			p.Op = OpEquals
		case "$gte":
			p.Op = OpGte
		case "$lte":
			p.Op = OpLte
		default:
			return fmt.Errorf("unknown filter operator %q", op)
		}
		p.Value = value
	}

	return nil
}

// Matches evaluates the predicate against a single property value.
func (p Predicate) Matches(value any) bool {
	switch p.Op {
	case OpEquals:
		return scalarEqual(value, p.Value)
	case OpGte:
		a, b, ok := bothNumeric(value, p.Value)
		return ok && a >= b
	case OpLte:
		a, b, ok := bothNumeric(value, p.Value)
		return ok && a <= b
	}
	return false
}

// Filter selects a subset of a room's peers. Zero-value fields are
// wildcards.
type Filter struct {
	Role       string               `json:"role,omitempty"`
	Tags       []string             `json:"tags,omitempty"`
	Properties map[string]Predicate `json:"properties,omitempty"`
}

// ParseFilter decodes a raw filter object, rejecting unknown operators.
func ParseFilter(raw json.RawMessage) (Filter, error) {
	var f Filter
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return Filter{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return f, nil
}

func scalarEqual(a, b any) bool {
	if x, y, ok := bothNumeric(a, b); ok {
		return x == y
	}
	return a == b
}

func bothNumeric(a, b any) (float64, float64, bool) {
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	return x, y, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
