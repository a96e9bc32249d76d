package rules

import (
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// fixedNow anchors relative-date literals in tests.
var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testCatalog() *Catalog {
	return MustCatalog([]types.FieldDescriptor{
		{Name: "spend", Type: types.FieldNumber},
		{Name: "lastOrder", Type: types.FieldDate},
		{Name: "city", Type: types.FieldString},
		{Name: "email", Type: types.FieldString, Operators: []types.Operator{types.OpContains, types.OpIsEmpty, types.OpIsNotEmpty}},
		{Name: "vip", Type: types.FieldBoolean},
		{Name: "tier", Type: types.FieldEnum, Values: []string{"bronze", "silver", "gold"}},
		{Name: "address.country", Type: types.FieldString},
	})
}

func rule(id, field string, op types.Operator, value any) *types.Rule {
	return &types.Rule{ID: id, Field: field, Operator: op, Value: value}
}

func and(id string, children ...types.Node) *types.RuleGroup {
	return &types.RuleGroup{ID: id, Logic: types.LogicAnd, Children: children}
}

func or(id string, children ...types.Node) *types.RuleGroup {
	return &types.RuleGroup{ID: id, Logic: types.LogicOr, Children: children}
}

func customer(id string, attrs map[string]any) types.Customer {
	return types.Customer{ID: types.CustomerID(id), Attributes: attrs}
}

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format(time.RFC3339)
}

func compileTest(tree types.Node) (*Segment, error) {
	return Compile(tree, testCatalog(), Options{Now: fixedNow})
}
