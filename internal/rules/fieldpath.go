// internal/rules/fieldpath.go
package rules

import (
	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Field path resolution for customer attributes.
 *
 * Catalog field names may be dotted ("address.city"); each segment selects a
 * key of a nested attribute object. The path is split once when the catalog
 * is built, so evaluation only walks maps.
 *
 * Missing vs null: a key that is absent and a key mapped to JSON null both
 * resolve to Found=false. Rules treat the two the same way (a missing field),
 * so there is no reason to distinguish them here.
 */

// ResolveResult contains the resolved attribute value.
type ResolveResult struct {
	Value any  // resolved value (nil if not found)
	Found bool // true if every segment resolved to a non-null value
}

// Resolve walks attrs following path segments.
func Resolve(path []string, attrs map[string]any) ResolveResult {
	if len(path) == 0 || len(path) > types.MaxFieldPathDepth {
		return ResolveResult{}
	}
	return resolveRecursive(path, attrs)
}

// ResolveField resolves a catalog field against a customer.
func ResolveField(f *Field, c types.Customer) ResolveResult {
	return Resolve(f.path, c.Attributes)
}

// resolveRecursive descends one nested object per segment.
func resolveRecursive(path []string, current map[string]any) ResolveResult {
	if current == nil {
		return ResolveResult{}
	}

	val, ok := current[path[0]]
	if !ok || val == nil {
		return ResolveResult{}
	}

	if len(path) == 1 {
		return ResolveResult{Value: val, Found: true}
	}

	next, ok := val.(map[string]any)
	if !ok {
		// Scalar value but path continues
		return ResolveResult{}
	}
	return resolveRecursive(path[1:], next)
}
