// internal/rules/describe.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/campaignkeeper/internal/types"
)

// operatorPhrases render operators for audit and preview text.
var operatorPhrases = map[types.Operator]string{
	types.OpEquals:         "equals",
	types.OpNotEquals:      "does not equal",
	types.OpContains:       "contains",
	types.OpGreaterThan:    "is greater than",
	types.OpLessThan:       "is less than",
	types.OpGreaterOrEqual: "is greater than or equal to",
	types.OpLessOrEqual:    "is less than or equal to",
	types.OpIn:             "is one of",
	types.OpNotIn:          "is not one of",
	types.OpIsEmpty:        "is empty",
	types.OpIsNotEmpty:     "is not empty",
}

// Describe renders a tree as text using the default empty-group policies,
// e.g. `spend is greater than 500 AND (city equals "Paris" OR city equals "Lyon")`.
func Describe(tree types.Node) string {
	return describer{root: PolicyMatchAll, group: PolicyIdentity}.node(tree, 1)
}

type describer struct {
	root, group EmptyGroupPolicy
}

// node renders n; depth stops runaway recursion on cyclic trees, which
// Compile rejects but Describe may still be handed.
func (d describer) node(n types.Node, depth int) string {
	if depth > types.MaxTreeDepth {
		return "..."
	}
	switch v := n.(type) {
	case *types.Rule:
		if v == nil {
			return "?"
		}
		return d.rule(v)
	case *types.RuleGroup:
		if v == nil {
			return "?"
		}
		return d.groupText(v, depth)
	default:
		return "?"
	}
}

func (d describer) rule(r *types.Rule) string {
	phrase, ok := operatorPhrases[r.Operator]
	if !ok {
		phrase = string(r.Operator)
	}
	if r.Operator == types.OpIsEmpty || r.Operator == types.OpIsNotEmpty {
		return r.Field + " " + phrase
	}
	return fmt.Sprintf("%s %s %s", r.Field, phrase, formatValue(r.Value))
}

func (d describer) groupText(g *types.RuleGroup, depth int) string {
	if len(g.Children) == 0 {
		policy := d.group
		if depth == 1 {
			policy = d.root
		}
		switch {
		case policy == PolicyMatchAll,
			policy == PolicyIdentity && g.Logic != types.LogicOr:
			return "all customers"
		default:
			return "no customers"
		}
	}

	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		text := d.node(child, depth+1)
		if sub, ok := child.(*types.RuleGroup); ok && sub != nil && len(sub.Children) > 1 {
			text = "(" + text + ")"
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "+string(g.Logic)+" ")
}

// formatValue renders a literal: strings quoted, numbers plain, durations as "<P..> ago".
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		if _, ok := parseRelativeDate(x); ok {
			return x + " ago"
		}
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		if list, ok := asList(v); ok {
			items := make([]string, len(list))
			for i, item := range list {
				items[i] = formatValue(item)
			}
			return "[" + strings.Join(items, ", ") + "]"
		}
		return fmt.Sprint(v)
	}
}
