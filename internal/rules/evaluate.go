// internal/rules/evaluate.go
package rules

import (
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Rule evaluation against one customer.
 *
 * Evaluation flow per rule:
 *   1. Resolve the catalog field path in the customer's attributes
 *   2. isEmpty/isNotEmpty answer directly from the resolved value
 *   3. Missing field: every other operator is false
 *   4. Coerce the value to the field type; failure makes the rule false
 *   5. Date literals of day precision compare calendar days (UTC)
 *   6. Compare against the compile-time literal
 *
 * A customer value that cannot be coerced ("n/a" in a number field) is data
 * the rule cannot speak about, so it never matches, including notEquals and
 * notIn. This mirrors the missing-field rule.
 */

// compiledRule is a validated rule with its literal pre-coerced.
type compiledRule struct {
	field *Field
	op    types.Operator
	lit   literal
}

// evaluate reports whether customer c satisfies the rule.
func (r *compiledRule) evaluate(c types.Customer) bool {
	resolved := ResolveField(r.field, c)

	switch r.op {
	case types.OpIsEmpty:
		return !resolved.Found || isEmptyValue(resolved.Value)
	case types.OpIsNotEmpty:
		return resolved.Found && !isEmptyValue(resolved.Value)
	}

	if !resolved.Found {
		return false
	}

	coerced, err := Coerce(resolved.Value, r.field.Type)
	if err != nil || coerced.IsNull {
		return false
	}

	value := coerced.Value
	if r.lit.dayPrecision {
		if t, ok := value.(time.Time); ok {
			value = truncateDay(t)
		}
	}

	if r.op == types.OpIn || r.op == types.OpNotIn {
		return Compare(r.op, value, r.lit.set)
	}
	return Compare(r.op, value, r.lit.value)
}
