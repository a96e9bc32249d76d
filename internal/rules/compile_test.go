package rules

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/solatis/campaignkeeper/internal/types"
)

func TestCompile_SimpleRule(t *testing.T) {
	seg, err := compileTest(rule("r1", "spend", types.OpGreaterThan, 500.0))
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	if got := seg.Description; got != "spend is greater than 500" {
		t.Errorf("Description = %q, want %q", got, "spend is greater than 500")
	}
	if !slices.Equal(seg.Fields, []string{"spend"}) {
		t.Errorf("Fields = %v, want [spend]", seg.Fields)
	}
	want := CostLookupPerSegment + CostOrdering*MultiplierNumber
	if seg.Cost != want {
		t.Errorf("Cost = %v, want %v", seg.Cost, want)
	}
	if !seg.CompiledAt.Equal(fixedNow) {
		t.Errorf("CompiledAt = %v, want %v", seg.CompiledAt, fixedNow)
	}
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	tree := and("root",
		rule("r1", "shoeSize", types.OpEquals, 42.0),
		or("g1",
			rule("r2", "spend", types.OpContains, "5"),
			rule("r3", "lastOrder", types.OpGreaterThan, "not-a-date"),
		),
		rule("r4", "city", types.OpEquals, "Paris"),
	)

	_, err := compileTest(tree)

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Compile() error = %v, want ValidationErrors", err)
	}

	wantKinds := []ErrorKind{KindUnknownField, KindOperatorNotAllowed, KindTypeMismatch}
	if !slices.Equal(verrs.Kinds(), wantKinds) {
		t.Fatalf("Kinds() = %v, want %v", verrs.Kinds(), wantKinds)
	}

	wantIDs := []string{"r1", "r2", "r3"}
	wantPaths := []string{"$.children[0]", "$.children[1].children[0]", "$.children[1].children[1]"}
	for i, e := range verrs {
		if e.NodeID != wantIDs[i] {
			t.Errorf("errs[%d].NodeID = %v, want %v", i, e.NodeID, wantIDs[i])
		}
		if e.Path != wantPaths[i] {
			t.Errorf("errs[%d].Path = %v, want %v", i, e.Path, wantPaths[i])
		}
	}
}

func TestCompile_ValidationKinds(t *testing.T) {
	tests := []struct {
		name string
		tree types.Node
		want ErrorKind
	}{
		{"unknown field", rule("r", "age", types.OpEquals, 3.0), KindUnknownField},
		{"empty field", rule("r", "", types.OpEquals, 3.0), KindUnknownField},
		{"unknown operator", rule("r", "spend", "startsWith", 3.0), KindOperatorNotAllowed},
		{"operator not allowed for type", rule("r", "vip", types.OpGreaterThan, true), KindOperatorNotAllowed},
		{"operator narrowed by descriptor", rule("r", "email", types.OpEquals, "a@b.c"), KindOperatorNotAllowed},
		{"literal wrong type", rule("r", "spend", types.OpEquals, "many"), KindTypeMismatch},
		{"declared type differs", &types.Rule{ID: "r", Field: "spend", Operator: types.OpEquals, Value: 1.0, Type: types.FieldString}, KindTypeMismatch},
		{"enum value undeclared", rule("r", "tier", types.OpEquals, "platinum"), KindTypeMismatch},
		{"bad logic", &types.RuleGroup{ID: "g", Logic: "XOR", Children: []types.Node{rule("r", "spend", types.OpEquals, 1.0)}}, KindMalformedTree},
		{"nil node", nil, KindMalformedTree},
		{"nil child", and("g", (*types.Rule)(nil)), KindMalformedTree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileTest(tt.tree)
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Compile() error = %v, want ValidationErrors", err)
			}
			if len(verrs) != 1 || verrs[0].Kind != tt.want {
				t.Errorf("Kinds() = %v, want [%v]", verrs.Kinds(), tt.want)
			}
		})
	}
}

func TestCompile_EmptyGroupPolicies(t *testing.T) {
	anyone := customer("c1", map[string]any{"spend": 10.0})

	tests := []struct {
		name      string
		tree      types.Node
		opts      Options
		wantMatch bool
		wantErr   bool
	}{
		{"root default matches all", and("root"), Options{}, true, false},
		{"root OR default matches all", or("root"), Options{}, true, false},
		{"root match none", and("root"), Options{RootPolicy: PolicyMatchNone}, false, false},
		{"root identity OR", or("root"), Options{RootPolicy: PolicyIdentity}, false, false},
		{"root reject", and("root"), Options{RootPolicy: PolicyReject}, false, true},
		{"nested AND identity", and("root", and("g")), Options{}, true, false},
		{"nested OR identity", and("root", or("g")), Options{}, false, false},
		{"nested OR identity under OR", or("root", or("g"), rule("r", "spend", types.OpEquals, 10.0)), Options{}, true, false},
		{"nested match all", and("root", or("g")), Options{GroupPolicy: PolicyMatchAll}, true, false},
		{"nested reject", and("root", and("g")), Options{GroupPolicy: PolicyReject}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Now = fixedNow
			seg, err := Compile(tt.tree, testCatalog(), opts)
			if tt.wantErr {
				var verrs ValidationErrors
				if !errors.As(err, &verrs) || verrs[0].Kind != KindMalformedTree {
					t.Fatalf("Compile() error = %v, want MalformedTree", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got := seg.Match(anyone); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestCompile_CycleRejected(t *testing.T) {
	g := and("loop", rule("r", "spend", types.OpEquals, 1.0))
	g.Children = append(g.Children, g)

	_, err := compileTest(g)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Compile() error = %v, want ValidationErrors", err)
	}
	if verrs[0].Kind != KindMalformedTree || !strings.Contains(verrs[0].Message, "cyclic") {
		t.Errorf("errs[0] = %v, want cyclic MalformedTree", verrs[0])
	}
}

func TestCompile_SharedSubtreeAllowed(t *testing.T) {
	shared := or("shared", rule("r1", "city", types.OpEquals, "Paris"), rule("r2", "city", types.OpEquals, "Lyon"))
	tree := and("root", shared, shared)

	if _, err := compileTest(tree); err != nil {
		t.Errorf("Compile() error = %v, want nil for shared (acyclic) subtree", err)
	}
}

func TestCompile_DepthLimit(t *testing.T) {
	var tree types.Node = rule("leaf", "spend", types.OpEquals, 1.0)
	for i := 0; i < types.MaxTreeDepth; i++ {
		tree = and("g", tree)
	}

	_, err := compileTest(tree)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Kind != KindMalformedTree {
		t.Fatalf("Compile() error = %v, want MalformedTree for depth %d", err, types.MaxTreeDepth+1)
	}

	// One level shallower fits.
	if _, err := compileTest(tree.(*types.RuleGroup).Children[0]); err != nil {
		t.Errorf("Compile() error = %v at depth %d, want nil", err, types.MaxTreeDepth)
	}
}

func TestCompile_CostLimit(t *testing.T) {
	tree := and("root",
		rule("r1", "city", types.OpContains, "par"),
		rule("r2", "city", types.OpContains, "lyo"),
	)

	_, err := Compile(tree, testCatalog(), Options{Now: fixedNow, MaxCost: 100})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Compile() error = %v, want ValidationErrors", err)
	}
	if verrs[0].Kind != KindMalformedTree || verrs[0].Path != "$" {
		t.Errorf("errs[0] = %v, want MalformedTree at $", verrs[0])
	}
}

func TestCompile_CustomChecks(t *testing.T) {
	noCity := func(rc *RuleContext) *ValidationError {
		if rc.Rule.Field == "city" {
			return rc.fail(KindOperatorNotAllowed, "city targeting is disabled")
		}
		return nil
	}
	opts := Options{Now: fixedNow, Checks: append(slices.Clone(DefaultRuleChecks), noCity)}

	_, err := Compile(rule("r", "city", types.OpEquals, "Paris"), testCatalog(), opts)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Message != "city targeting is disabled" {
		t.Fatalf("Compile() error = %v, want custom check failure", err)
	}

	// Guards still hold when the caller drops the default checks.
	_, err = Compile(rule("r", "nope", types.OpEquals, "x"), testCatalog(), Options{Now: fixedNow, Checks: []RuleCheck{}})
	if !errors.As(err, &verrs) || verrs[0].Kind != KindUnknownField {
		t.Fatalf("Compile() error = %v, want UnknownField without checks", err)
	}
}

func TestParseEmptyGroupPolicy(t *testing.T) {
	for _, in := range []string{"", "match_all", "MATCH_NONE", " identity ", "reject"} {
		if _, err := ParseEmptyGroupPolicy(in); err != nil {
			t.Errorf("ParseEmptyGroupPolicy(%q) error = %v", in, err)
		}
	}
	if _, err := ParseEmptyGroupPolicy("sometimes"); err == nil {
		t.Errorf("ParseEmptyGroupPolicy(sometimes) error = nil, want error")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	verrs := ValidationErrors{
		{Kind: KindUnknownField, Path: "$.children[0]", Field: "age", Message: "field \"age\" is not in the catalog"},
		{Kind: KindMalformedTree, Path: "$", Message: "group has no children"},
	}
	got := verrs.Error()
	for _, want := range []string{"UnknownField at $.children[0]", "MalformedTree at $: group has no children"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, want substring %q", got, want)
		}
	}
}
