// internal/rules/cost.go
package rules

import "github.com/solatis/campaignkeeper/internal/types"

/*
 * Cost model for rule evaluation.
 *
 * Cost formula per rule: lookup_cost * path_segments + (operator_cost * type_multiplier)
 * For in/notIn the operator cost also scales with the size of the literal set.
 *
 * The summed cost of a tree is a budget, not an ordering hint: children are
 * always evaluated in the order the author wrote them, so a tree's meaning and
 * its short-circuit behaviour stay predictable. Trees above Options.MaxCost are
 * rejected as MalformedTree because evaluating them across a full population
 * would be unbounded work per customer.
 */

const (
	// Operator base costs
	CostIsEmpty  = 1
	CostEquals   = 5
	CostOrdering = 7
	CostIn       = 8
	CostContains = 10

	// Field lookup cost per path segment
	CostLookupPerSegment = 128

	// Field type multipliers
	MultiplierBoolean = 1
	MultiplierEnum    = 2
	MultiplierNumber  = 4
	MultiplierDate    = 4
	MultiplierString  = 48

	// inValuesPerUnit is how many in/notIn literals one CostIn covers.
	inValuesPerUnit = 16
)

// CalculateRuleCost computes cost for a single compiled rule.
func CalculateRuleCost(f *Field, op types.Operator, setSize int) int {
	lookup := CostLookupPerSegment * len(f.path)

	opCost := operatorCost(op)
	if op == types.OpIn || op == types.OpNotIn {
		units := (setSize + inValuesPerUnit - 1) / inValuesPerUnit
		if units < 1 {
			units = 1
		}
		opCost *= units
	}

	return lookup + opCost*typeMultiplier(f.Type)
}

// operatorCost returns base cost for operator execution.
func operatorCost(op types.Operator) int {
	switch op {
	case types.OpIsEmpty, types.OpIsNotEmpty:
		return CostIsEmpty
	case types.OpEquals, types.OpNotEquals:
		return CostEquals
	case types.OpGreaterThan, types.OpLessThan, types.OpGreaterOrEqual, types.OpLessOrEqual:
		return CostOrdering
	case types.OpIn, types.OpNotIn:
		return CostIn
	case types.OpContains:
		return CostContains
	default:
		return CostEquals
	}
}

// typeMultiplier returns cost multiplier based on field type complexity.
// Strings cost most: contains folds case per customer.
func typeMultiplier(ft types.FieldType) int {
	switch ft {
	case types.FieldBoolean:
		return MultiplierBoolean
	case types.FieldEnum:
		return MultiplierEnum
	case types.FieldNumber:
		return MultiplierNumber
	case types.FieldDate:
		return MultiplierDate
	case types.FieldString:
		return MultiplierString
	default:
		return MultiplierString
	}
}
