package rules

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestResolve(t *testing.T) {
	attrs := map[string]any{
		"city":  "Paris",
		"empty": nil,
		"address": map[string]any{
			"country": "FR",
			"geo":     map[string]any{"lat": 48.85},
		},
	}

	tests := []struct {
		name      string
		path      []string
		wantValue any
		wantFound bool
	}{
		{"top-level", []string{"city"}, "Paris", true},
		{"nested", []string{"address", "country"}, "FR", true},
		{"deeply nested", []string{"address", "geo", "lat"}, 48.85, true},
		{"missing key", []string{"zip"}, nil, false},
		{"null value", []string{"empty"}, nil, false},
		{"scalar mid-path", []string{"city", "name"}, nil, false},
		{"missing nested", []string{"address", "zip"}, nil, false},
		{"empty path", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.path, attrs)
			if got.Found != tt.wantFound {
				t.Errorf("Resolve() Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Resolve() Value = %v, want %v", got.Value, tt.wantValue)
			}
		})
	}
}

func TestResolve_NilAttributes(t *testing.T) {
	if got := Resolve([]string{"city"}, nil); got.Found {
		t.Errorf("Resolve(nil attrs) Found = true, want false")
	}
}

// Property-based test: a value nested at any depth within the limit resolves
func TestResolve_PropertyNestedDepth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("value nested n levels deep resolves through n segments", prop.ForAll(
		func(depth int, value string) bool {
			path := strings.Split(strings.Repeat("k.", depth)+"leaf", ".")
			var attrs any = value
			for i := len(path) - 1; i >= 0; i-- {
				attrs = map[string]any{path[i]: attrs}
			}

			got := Resolve(path, attrs.(map[string]any))
			return got.Found && got.Value == value
		},
		gen.IntRange(0, 7),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
