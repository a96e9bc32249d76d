// internal/types/segment.go
package types

import (
	"encoding/json"
	"fmt"
)

/*
 * Domain types for audience segmentation.
 *
 * A segment is a nested AND/OR tree. Node is a closed sum type: only *Rule
 * (leaf) and *RuleGroup (internal node) implement it, so the compiler can
 * switch on the concrete type once and evaluation never re-inspects shapes.
 *
 * JSON form:
 *   group: {"id": "g1", "logic": "AND", "children": [...]}
 *   rule:  {"id": "r1", "field": "spend", "operator": "greaterThan", "value": 500, "type": "number"}
 *
 * DecodeNode discriminates on the presence of "children"/"logic" vs "field".
 * Rule values keep their encoding/json shape (float64, string, bool, []any);
 * coercion to the field's semantic type happens in internal/rules.
 */

// FieldType is the semantic type of a catalog field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldEnum    FieldType = "enum"
)

// Valid reports whether ft is one of the closed set of field types.
func (ft FieldType) Valid() bool {
	switch ft {
	case FieldString, FieldNumber, FieldDate, FieldBoolean, FieldEnum:
		return true
	default:
		return false
	}
}

// Operator is a rule comparison operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpContains       Operator = "contains"
	OpGreaterThan    Operator = "greaterThan"
	OpLessThan       Operator = "lessThan"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessOrEqual    Operator = "lessOrEqual"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notIn"
	OpIsEmpty        Operator = "isEmpty"
	OpIsNotEmpty     Operator = "isNotEmpty"
)

// Valid reports whether op is one of the closed set of operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains,
		OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
		OpIn, OpNotIn, OpIsEmpty, OpIsNotEmpty:
		return true
	default:
		return false
	}
}

// Logic joins the children of a RuleGroup.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// FieldDescriptor declares one queryable customer attribute.
// Operators narrows the type's default operator set when non-empty.
// Values lists the permitted literals of an enum field.
type FieldDescriptor struct {
	Name      string     `json:"name" mapstructure:"name"`
	Type      FieldType  `json:"type" mapstructure:"type"`
	Operators []Operator `json:"operators,omitempty" mapstructure:"operators"`
	Values    []string   `json:"values,omitempty" mapstructure:"values"`
}

// Node is a rule tree node: *Rule or *RuleGroup.
type Node interface {
	NodeID() string
	node()
}

// Rule is a single field comparison (tree leaf).
// Type is optional; when present it must equal the catalog field type.
type Rule struct {
	ID       string    `json:"id"`
	Field    string    `json:"field"`
	Operator Operator  `json:"operator"`
	Value    any       `json:"value,omitempty"`
	Type     FieldType `json:"type,omitempty"`
}

// RuleGroup joins ordered children with AND/OR logic.
type RuleGroup struct {
	ID       string `json:"id"`
	Logic    Logic  `json:"logic"`
	Children []Node `json:"children"`
}

// NodeID returns the rule's client-assigned id.
func (r *Rule) NodeID() string { return r.ID }

// NodeID returns the group's client-assigned id.
func (g *RuleGroup) NodeID() string { return g.ID }

func (*Rule) node() {}

func (*RuleGroup) node() {}

// DecodeNode parses one rule tree node from JSON.
// Returns ErrMalformedNode when the object is neither a rule nor a group.
func DecodeNode(data []byte) (Node, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: null node", ErrMalformedNode)
	}

	_, hasChildren := probe["children"]
	_, hasLogic := probe["logic"]
	_, hasField := probe["field"]

	switch {
	case hasChildren || hasLogic:
		if hasField {
			return nil, fmt.Errorf("%w: node has both field and children", ErrMalformedNode)
		}
		g := &RuleGroup{}
		if err := json.Unmarshal(data, g); err != nil {
			return nil, err
		}
		return g, nil
	case hasField:
		r := &Rule{}
		if err := json.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: node has neither field nor children", ErrMalformedNode)
	}
}

// UnmarshalJSON decodes children through DecodeNode.
func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string            `json:"id"`
		Logic    Logic             `json:"logic"`
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}

	g.ID = raw.ID
	g.Logic = raw.Logic
	g.Children = make([]Node, 0, len(raw.Children))
	for _, c := range raw.Children {
		child, err := DecodeNode(c)
		if err != nil {
			return err
		}
		g.Children = append(g.Children, child)
	}
	return nil
}
