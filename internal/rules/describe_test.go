package rules

import (
	"testing"

	"github.com/solatis/campaignkeeper/internal/types"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		tree types.Node
		want string
	}{
		{
			name: "nested groups parenthesized",
			tree: and("root",
				rule("r1", "spend", types.OpGreaterThan, 500.0),
				or("g1",
					rule("r2", "city", types.OpEquals, "Paris"),
					rule("r3", "city", types.OpEquals, "Lyon"),
				),
			),
			want: `spend is greater than 500 AND (city equals "Paris" OR city equals "Lyon")`,
		},
		{
			name: "single-child group not parenthesized",
			tree: and("root", or("g1", rule("r1", "vip", types.OpEquals, true))),
			want: "vip equals true",
		},
		{
			name: "relative date and lists",
			tree: and("root",
				rule("r1", "lastOrder", types.OpGreaterOrEqual, "P30D"),
				rule("r2", "tier", types.OpIn, []any{"gold", "silver"}),
				rule("r3", "email", types.OpIsEmpty, nil),
			),
			want: `lastOrder is greater than or equal to P30D ago AND tier is one of ["gold", "silver"] AND email is empty`,
		},
		{
			name: "empty root",
			tree: and("root"),
			want: "all customers",
		},
		{
			name: "empty nested OR",
			tree: and("root", rule("r1", "vip", types.OpEquals, false), or("g")),
			want: "vip equals false AND no customers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.tree); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribe_CompiledUsesPolicy(t *testing.T) {
	seg, err := Compile(or("root"), testCatalog(), Options{Now: fixedNow, RootPolicy: PolicyMatchNone})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if seg.Description != "no customers" {
		t.Errorf("Description = %q, want %q", seg.Description, "no customers")
	}
}

func TestDescribe_CycleTerminates(t *testing.T) {
	g := and("loop", rule("r", "spend", types.OpEquals, 1.0))
	g.Children = append(g.Children, g)

	if got := Describe(g); got == "" {
		t.Errorf("Describe() = %q, want non-empty text", got)
	}
}
