package rules

import (
	"slices"
	"testing"

	"github.com/solatis/campaignkeeper/internal/types"
)

func TestNewCatalog_Defaults(t *testing.T) {
	c := testCatalog()

	if c.Len() != 7 {
		t.Fatalf("Len() = %v, want 7", c.Len())
	}

	spend, ok := c.Lookup("spend")
	if !ok {
		t.Fatalf("Lookup(spend) found = false, want true")
	}
	if !spend.Allows(types.OpGreaterThan) {
		t.Errorf("spend.Allows(greaterThan) = false, want true")
	}
	if spend.Allows(types.OpContains) {
		t.Errorf("spend.Allows(contains) = true, want false")
	}

	email, _ := c.Lookup("email")
	if email.Allows(types.OpEquals) {
		t.Errorf("narrowed email.Allows(equals) = true, want false")
	}

	tier, _ := c.Lookup("tier")
	if !tier.AllowsValue("gold") || tier.AllowsValue("platinum") {
		t.Errorf("tier.AllowsValue gold/platinum = %v/%v, want true/false",
			tier.AllowsValue("gold"), tier.AllowsValue("platinum"))
	}

	if _, ok := c.Lookup("unknown"); ok {
		t.Errorf("Lookup(unknown) found = true, want false")
	}
}

func TestNewCatalog_DescriptorsOrder(t *testing.T) {
	c := testCatalog()
	var names []string
	for _, d := range c.Descriptors() {
		names = append(names, d.Name)
	}
	want := []string{"spend", "lastOrder", "city", "email", "vip", "tier", "address.country"}
	if !slices.Equal(names, want) {
		t.Errorf("Descriptors() names = %v, want %v", names, want)
	}

	city := c.Descriptors()[2]
	if !slices.Equal(city.Operators, DefaultOperators(types.FieldString)) {
		t.Errorf("city operators = %v, want string defaults", city.Operators)
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		descs []types.FieldDescriptor
	}{
		{"empty name", []types.FieldDescriptor{{Type: types.FieldString}}},
		{"duplicate", []types.FieldDescriptor{{Name: "a", Type: types.FieldString}, {Name: "a", Type: types.FieldNumber}}},
		{"unknown type", []types.FieldDescriptor{{Name: "a", Type: "uuid"}}},
		{"widened operators", []types.FieldDescriptor{{Name: "a", Type: types.FieldNumber, Operators: []types.Operator{types.OpContains}}}},
		{"values on string", []types.FieldDescriptor{{Name: "a", Type: types.FieldString, Values: []string{"x"}}}},
		{"empty segment", []types.FieldDescriptor{{Name: "a..b", Type: types.FieldString}}},
		{"too deep", []types.FieldDescriptor{{Name: "a.b.c.d.e.f.g.h.i", Type: types.FieldString}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.descs); err == nil {
				t.Errorf("NewCatalog() error = nil, want error")
			}
		})
	}
}
