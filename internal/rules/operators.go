// internal/rules/operators.go
package rules

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the closed operator set with type-aware comparison rules.
 * Values should already be coerced via Coerce() before reaching Compare():
 * float64 for numbers, string for string/enum, bool, time.Time for dates.
 *
 * Operators:
 *   - isEmpty/isNotEmpty: handled before coercion (see isEmptyValue)
 *   - equals/notEquals: equality; dates compare instants
 *   - greaterThan/lessThan/greaterOrEqual/lessOrEqual: numbers and dates only
 *   - contains: case-insensitive substring (Unicode case folding)
 *   - in/notIn: membership with equality semantics
 *
 * Incomparable operands make every ordering operator false; ordering never
 * falls back to string comparison.
 */

// Compare applies the operator to compare value against target.
// For in/notIn, target is the []any literal set.
func Compare(op types.Operator, value, target any) bool {
	switch op {
	case types.OpEquals:
		return compareEqual(value, target)
	case types.OpNotEquals:
		return !compareEqual(value, target)
	case types.OpGreaterThan:
		c, ok := compareOrdered(value, target)
		return ok && c > 0
	case types.OpLessThan:
		c, ok := compareOrdered(value, target)
		return ok && c < 0
	case types.OpGreaterOrEqual:
		c, ok := compareOrdered(value, target)
		return ok && c >= 0
	case types.OpLessOrEqual:
		c, ok := compareOrdered(value, target)
		return ok && c <= 0
	case types.OpContains:
		return compareContains(value, target)
	case types.OpIn:
		return compareIn(value, target)
	case types.OpNotIn:
		return !compareIn(value, target)
	case types.OpIsEmpty:
		return isEmptyValue(value)
	case types.OpIsNotEmpty:
		return !isEmptyValue(value)
	default:
		return false
	}
}

// compareEqual performs equality comparison; time.Time compares instants.
func compareEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return a == b
}

// compareOrdered performs three-way comparison of numbers or dates.
// ok=false for incomparable types.
func compareOrdered(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

// asNumbers attempts to convert both values to float64.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// compareContains checks whether value contains needle, ignoring case.
// needle is folded at compile time; value is folded here.
func compareContains(value, needle any) bool {
	vs, ok1 := value.(string)
	ns, ok2 := needle.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.Contains(foldCase(vs), ns)
}

// compareIn checks if value exists in set using equality semantics.
func compareIn(value, set any) bool {
	arr, ok := set.([]any)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}

// isEmptyValue reports whether a resolved attribute counts as empty:
// null, "", or an empty array/object.
func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// foldCase applies Unicode simple case folding.
// A cases.Caser is stateful, so one is created per call.
func foldCase(s string) string {
	return cases.Fold().String(s)
}
