// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Type coercion for rule literals and customer attribute values.
 *
 * Implements the five semantic field types:
 *   - number:  Strict - float64/int/int64/json.Number and numeric strings, reject booleans
 *   - string:  Lenient - scalars auto-coerce to string, composites rejected
 *   - boolean: Strict - bool only (avoids "true" vs 1 ambiguity)
 *   - date:    time.Time, or ISO-8601 date / date-time strings
 *   - enum:    string only; declared-value check happens at validation
 *
 * Null vs coercion failure: nil input yields IsNull=true so the caller applies
 * missing-field semantics; a value of the wrong shape yields ErrCoercionFailed.
 * During evaluation both make a rule false (isEmpty aside), but at compile
 * time only the latter is a TypeMismatch.
 *
 * Rule literals additionally accept ISO-8601 durations for date fields
 * ("P30D"), resolved against the compile instant to the point in time that
 * lies that long before it.
 */

// dateLayouts are tried in order; the first is day precision.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // coerced value (valid only if !IsNull)
	IsNull bool // true if input was nil/null
}

// Coerce attempts to convert value to the expected field type.
// Returns CoercionResult with IsNull=true for nil input.
// Returns ErrCoercionFailed for impossible coercions.
func Coerce(value any, fieldType types.FieldType) (CoercionResult, error) {
	if value == nil {
		return CoercionResult{IsNull: true}, nil
	}

	switch fieldType {
	case types.FieldNumber:
		res, err := coerceNumeric(value)
		if err != nil {
			return res, err
		}
		// NaN and ±Inf parse but compare false against everything.
		if f := res.Value.(float64); math.IsNaN(f) || math.IsInf(f, 0) {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return res, nil
	case types.FieldString:
		return coerceText(value)
	case types.FieldBoolean:
		return coerceBoolean(value)
	case types.FieldDate:
		return coerceDate(value)
	case types.FieldEnum:
		return coerceEnum(value)
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceNumeric converts value to float64 for numeric comparison.
// Whitespace-only strings return ErrCoercionFailed.
func coerceNumeric(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case float64:
		return CoercionResult{Value: v}, nil
	case int:
		return CoercionResult{Value: float64(v)}, nil
	case int64:
		return CoercionResult{Value: float64(v)}, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return CoercionResult{Value: f}, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return CoercionResult{Value: f}, nil
	default:
		// Booleans included: no true->1 coercion
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceText converts scalar types to their string representation.
func coerceText(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case string:
		return CoercionResult{Value: v}, nil
	case float64:
		return CoercionResult{Value: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case int:
		return CoercionResult{Value: strconv.Itoa(v)}, nil
	case int64:
		return CoercionResult{Value: strconv.FormatInt(v, 10)}, nil
	case json.Number:
		return CoercionResult{Value: v.String()}, nil
	case bool:
		return CoercionResult{Value: strconv.FormatBool(v)}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceBoolean validates value is boolean type.
func coerceBoolean(value any) (CoercionResult, error) {
	if v, ok := value.(bool); ok {
		return CoercionResult{Value: v}, nil
	}
	return CoercionResult{}, types.ErrCoercionFailed
}

// coerceDate converts time.Time or ISO-8601 strings to time.Time (UTC).
func coerceDate(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case time.Time:
		return CoercionResult{Value: v.UTC()}, nil
	case string:
		t, _, ok := parseDate(v)
		if !ok {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return CoercionResult{Value: t}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceEnum accepts strings only; enum values are labels, not numbers.
func coerceEnum(value any) (CoercionResult, error) {
	if v, ok := value.(string); ok {
		return CoercionResult{Value: v}, nil
	}
	return CoercionResult{}, types.ErrCoercionFailed
}

// parseDate parses an ISO-8601 date or date-time. dayPrecision is true for
// date-only input, which is interpreted as midnight UTC.
func parseDate(s string) (t time.Time, dayPrecision bool, ok bool) {
	s = strings.TrimSpace(s)
	for i, layout := range dateLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			return parsed.UTC(), i == 0, true
		}
	}
	return time.Time{}, false, false
}

// truncateDay drops the clock part of a UTC instant.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// literal is a rule value coerced at compile time.
type literal struct {
	value        any   // scalar operand (folded string for contains)
	set          []any // operand list for in/notIn
	dayPrecision bool  // date compared at calendar-day granularity
}

// coerceLiteral converts a rule's value to the operand its operator needs.
// Error messages are user-facing; they end up in ValidationError.Message.
func coerceLiteral(r *types.Rule, f *Field, now time.Time) (literal, error) {
	switch r.Operator {
	case types.OpIsEmpty, types.OpIsNotEmpty:
		return literal{}, nil

	case types.OpIn, types.OpNotIn:
		elems, ok := asList(r.Value)
		if !ok {
			return literal{}, fmt.Errorf("operator %s requires an array value", r.Operator)
		}
		if len(elems) == 0 {
			return literal{}, fmt.Errorf("operator %s requires at least one value", r.Operator)
		}
		if len(elems) > types.MaxInOperatorValues {
			return literal{}, fmt.Errorf("operator %s accepts at most %d values, got %d",
				r.Operator, types.MaxInOperatorValues, len(elems))
		}
		set := make([]any, 0, len(elems))
		for i, e := range elems {
			lit, err := coerceScalarLiteral(e, f, now)
			if err != nil {
				return literal{}, fmt.Errorf("value[%d]: %w", i, err)
			}
			set = append(set, lit.value)
		}
		return literal{set: set}, nil

	case types.OpContains:
		lit, err := coerceScalarLiteral(r.Value, f, now)
		if err != nil {
			return literal{}, err
		}
		s, ok := lit.value.(string)
		if !ok || s == "" {
			return literal{}, fmt.Errorf("operator contains requires a non-empty string")
		}
		lit.value = foldCase(s)
		return lit, nil

	default:
		return coerceScalarLiteral(r.Value, f, now)
	}
}

// coerceScalarLiteral coerces one literal to the field type.
func coerceScalarLiteral(v any, f *Field, now time.Time) (literal, error) {
	if v == nil {
		return literal{}, fmt.Errorf("a %s value is required", f.Type)
	}
	if _, isList := asList(v); isList {
		return literal{}, fmt.Errorf("expected a single %s value, got an array", f.Type)
	}

	if f.Type == types.FieldDate {
		if s, ok := v.(string); ok {
			if rel, ok := parseRelativeDate(strings.TrimSpace(s)); ok {
				return literal{value: rel.before(now).UTC()}, nil
			}
			t, day, ok := parseDate(s)
			if !ok {
				return literal{}, fmt.Errorf("%q is not an ISO-8601 date, date-time or duration", s)
			}
			return literal{value: t, dayPrecision: day}, nil
		}
	}

	res, err := Coerce(v, f.Type)
	if err != nil {
		return literal{}, fmt.Errorf("%v is not a valid %s value", v, f.Type)
	}

	if f.Type == types.FieldEnum && !f.AllowsValue(res.Value.(string)) {
		return literal{}, fmt.Errorf("%q is not a declared value of %s", res.Value, f.Name)
	}
	return literal{value: res.Value}, nil
}

// asList reports whether v is an array literal and returns its elements.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
