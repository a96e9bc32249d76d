// internal/rules/catalog.go
package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Field catalog.
 *
 * Declares which customer attributes rules may reference and their semantic
 * types. Built once at process start from configuration and never mutated,
 * so one *Catalog is shared by every concurrent compile.
 *
 * Default operator sets per type:
 *   - string:  equals, notEquals, contains, in, notIn, isEmpty, isNotEmpty
 *   - number:  equals, notEquals, ordering, in, notIn, isEmpty, isNotEmpty
 *   - date:    equals, notEquals, ordering, isEmpty, isNotEmpty
 *   - boolean: equals, notEquals, isEmpty, isNotEmpty
 *   - enum:    equals, notEquals, in, notIn, isEmpty, isNotEmpty
 *
 * A descriptor may narrow its set but never widen it: "contains" on a number
 * field has no meaning regardless of configuration.
 */

var defaultOperators = map[types.FieldType][]types.Operator{
	types.FieldString: {
		types.OpEquals, types.OpNotEquals, types.OpContains,
		types.OpIn, types.OpNotIn, types.OpIsEmpty, types.OpIsNotEmpty,
	},
	types.FieldNumber: {
		types.OpEquals, types.OpNotEquals,
		types.OpGreaterThan, types.OpLessThan, types.OpGreaterOrEqual, types.OpLessOrEqual,
		types.OpIn, types.OpNotIn, types.OpIsEmpty, types.OpIsNotEmpty,
	},
	types.FieldDate: {
		types.OpEquals, types.OpNotEquals,
		types.OpGreaterThan, types.OpLessThan, types.OpGreaterOrEqual, types.OpLessOrEqual,
		types.OpIsEmpty, types.OpIsNotEmpty,
	},
	types.FieldBoolean: {
		types.OpEquals, types.OpNotEquals, types.OpIsEmpty, types.OpIsNotEmpty,
	},
	types.FieldEnum: {
		types.OpEquals, types.OpNotEquals, types.OpIn, types.OpNotIn,
		types.OpIsEmpty, types.OpIsNotEmpty,
	},
}

// DefaultOperators returns the operator set of a field type.
func DefaultOperators(ft types.FieldType) []types.Operator {
	return slices.Clone(defaultOperators[ft])
}

// Field is a catalog entry with its resolved operator set and path.
type Field struct {
	types.FieldDescriptor
	path      []string
	operators map[types.Operator]bool
	values    map[string]bool
}

// Allows reports whether op may be used with this field.
func (f *Field) Allows(op types.Operator) bool {
	return f.operators[op]
}

// AllowsValue reports whether v is a declared value of an enum field.
// Enum fields without declared values accept any string.
func (f *Field) AllowsValue(v string) bool {
	if len(f.values) == 0 {
		return true
	}
	return f.values[v]
}

// Catalog is an immutable set of queryable fields.
type Catalog struct {
	fields map[string]*Field
	order  []string
}

// NewCatalog validates descriptors and builds a Catalog.
// Rejects empty or duplicate names, unknown types, operators outside the
// type's default set, and values on non-enum fields.
func NewCatalog(descriptors []types.FieldDescriptor) (*Catalog, error) {
	c := &Catalog{fields: make(map[string]*Field, len(descriptors))}

	for i, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("catalog field %d: name is required", i)
		}
		if _, dup := c.fields[d.Name]; dup {
			return nil, fmt.Errorf("catalog field %q: duplicate name", d.Name)
		}
		if !d.Type.Valid() {
			return nil, fmt.Errorf("catalog field %q: unknown type %q", d.Name, d.Type)
		}

		path := strings.Split(d.Name, ".")
		if len(path) > types.MaxFieldPathDepth {
			return nil, fmt.Errorf("catalog field %q: path deeper than %d", d.Name, types.MaxFieldPathDepth)
		}
		for _, seg := range path {
			if seg == "" {
				return nil, fmt.Errorf("catalog field %q: empty path segment", d.Name)
			}
		}

		allowed := defaultOperators[d.Type]
		ops := d.Operators
		if len(ops) == 0 {
			ops = allowed
		}
		f := &Field{
			FieldDescriptor: d,
			path:            path,
			operators:       make(map[types.Operator]bool, len(ops)),
		}
		f.FieldDescriptor.Operators = slices.Clone(ops)
		for _, op := range ops {
			if !slices.Contains(allowed, op) {
				return nil, fmt.Errorf("catalog field %q: operator %q not valid for type %s", d.Name, op, d.Type)
			}
			f.operators[op] = true
		}

		if len(d.Values) > 0 {
			if d.Type != types.FieldEnum {
				return nil, fmt.Errorf("catalog field %q: values only apply to enum fields", d.Name)
			}
			f.values = make(map[string]bool, len(d.Values))
			for _, v := range d.Values {
				f.values[v] = true
			}
		}

		c.fields[d.Name] = f
		c.order = append(c.order, d.Name)
	}

	return c, nil
}

// MustCatalog is NewCatalog for static descriptor lists; it panics on error.
func MustCatalog(descriptors []types.FieldDescriptor) *Catalog {
	c, err := NewCatalog(descriptors)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the field with the given name.
func (c *Catalog) Lookup(name string) (*Field, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// Descriptors returns the catalog's descriptors in declaration order.
func (c *Catalog) Descriptors() []types.FieldDescriptor {
	out := make([]types.FieldDescriptor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.fields[name].FieldDescriptor)
	}
	return out
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	return len(c.order)
}
