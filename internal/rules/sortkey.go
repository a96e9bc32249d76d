// internal/rules/sortkey.go
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// SortKey orders customers by a catalog field. The zero SortKey orders
// nothing; callers fall back to customer id.
type SortKey struct {
	field      *Field
	Descending bool
}

// SortKey builds a key for the named field. Returns ErrInvalidSortKey for
// unknown fields.
func (c *Catalog) SortKey(name string, descending bool) (SortKey, error) {
	f, ok := c.Lookup(name)
	if !ok {
		return SortKey{}, fmt.Errorf("%w: %q is not in the catalog", types.ErrInvalidSortKey, name)
	}
	return SortKey{field: f, Descending: descending}, nil
}

// ParseSortKey accepts "field" or "-field" (descending).
func (c *Catalog) ParseSortKey(s string) (SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortKey{}, nil
	}
	if strings.HasPrefix(s, "-") {
		return c.SortKey(s[1:], true)
	}
	return c.SortKey(s, false)
}

// IsZero reports whether the key orders nothing.
func (k SortKey) IsZero() bool {
	return k.field == nil
}

// Field returns the field name, or "" for the zero key.
func (k SortKey) Field() string {
	if k.field == nil {
		return ""
	}
	return k.field.Name
}

// Compare orders a and b by the key's field. Customers whose value is
// missing or not coercible sort after every customer that has one, in both
// directions. Returns 0 on ties; callers break ties by customer id.
func (k SortKey) Compare(a, b types.Customer) int {
	if k.field == nil {
		return 0
	}

	va, oka := k.value(a)
	vb, okb := k.value(b)
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return 1
	case !okb:
		return -1
	}

	c := compareValues(va, vb)
	if k.Descending {
		return -c
	}
	return c
}

func (k SortKey) value(c types.Customer) (any, bool) {
	resolved := ResolveField(k.field, c)
	if !resolved.Found {
		return nil, false
	}
	coerced, err := Coerce(resolved.Value, k.field.Type)
	if err != nil || coerced.IsNull {
		return nil, false
	}
	return coerced.Value, true
}

// compareValues is a total order over coerced values of one field type.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		y, _ := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		y, _ := b.(string)
		return strings.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	default:
		return 0
	}
}
