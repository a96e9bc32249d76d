// internal/rules/validate.go
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Rule validation.
 *
 * Validation is an explicit ordered list of checks (RuleChecks) run against
 * every leaf. For one rule, checks stop at the first failure since later
 * checks depend on earlier ones (no operator check without a known field).
 * Across rules nothing stops: Compile reports every problem in tree order.
 *
 * Callers compose their own list through Options.Checks, typically
 * DefaultRuleChecks plus product-specific restrictions.
 */

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	KindUnknownField       ErrorKind = "UnknownField"
	KindOperatorNotAllowed ErrorKind = "OperatorNotAllowed"
	KindTypeMismatch       ErrorKind = "TypeMismatch"
	KindMalformedTree      ErrorKind = "MalformedTree"
)

// ValidationError describes one problem in a rule tree.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	NodeID  string    `json:"nodeId,omitempty"`
	Path    string    `json:"path"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s at %s (field %q): %s", e.Kind, e.Path, e.Field, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
}

// ValidationErrors is the full list of problems found in one tree.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("rule tree invalid: %s", strings.Join(msgs, "; "))
}

// Kinds returns the error kinds in order, for compact assertions and logs.
func (v ValidationErrors) Kinds() []ErrorKind {
	out := make([]ErrorKind, len(v))
	for i, e := range v {
		out[i] = e.Kind
	}
	return out
}

// RuleContext is what a RuleCheck inspects.
type RuleContext struct {
	Rule  *types.Rule
	Path  string
	Field *Field // nil when the rule references an unknown field
	Now   time.Time
}

// fail builds a ValidationError for the rule under inspection.
func (rc *RuleContext) fail(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		NodeID:  rc.Rule.ID,
		Path:    rc.Path,
		Field:   rc.Rule.Field,
		Message: fmt.Sprintf(format, args...),
	}
}

// RuleCheck validates one rule; nil means the rule passed.
type RuleCheck func(rc *RuleContext) *ValidationError

// DefaultRuleChecks is the standard validation order.
var DefaultRuleChecks = []RuleCheck{
	CheckField,
	CheckOperator,
	CheckDeclaredType,
	CheckValue,
}

// CheckField fails with UnknownField when the field is not in the catalog.
func CheckField(rc *RuleContext) *ValidationError {
	if rc.Rule.Field == "" {
		return rc.fail(KindUnknownField, "field is required")
	}
	if rc.Field == nil {
		return rc.fail(KindUnknownField, "field %q is not in the catalog", rc.Rule.Field)
	}
	return nil
}

// CheckOperator fails with OperatorNotAllowed for unknown operators and
// operators outside the field's allowed set.
func CheckOperator(rc *RuleContext) *ValidationError {
	if !rc.Rule.Operator.Valid() {
		return rc.fail(KindOperatorNotAllowed, "unknown operator %q", rc.Rule.Operator)
	}
	if rc.Field != nil && !rc.Field.Allows(rc.Rule.Operator) {
		return rc.fail(KindOperatorNotAllowed, "operator %s is not allowed for %s field %s",
			rc.Rule.Operator, rc.Field.Type, rc.Field.Name)
	}
	return nil
}

// CheckDeclaredType fails with TypeMismatch when the rule declares a type
// that differs from the catalog's.
func CheckDeclaredType(rc *RuleContext) *ValidationError {
	if rc.Rule.Type == "" || rc.Field == nil {
		return nil
	}
	if rc.Rule.Type != rc.Field.Type {
		return rc.fail(KindTypeMismatch, "rule declares type %s but field %s is %s",
			rc.Rule.Type, rc.Field.Name, rc.Field.Type)
	}
	return nil
}

// CheckValue fails with TypeMismatch when the literal cannot be coerced to
// the field type in the shape the operator needs.
func CheckValue(rc *RuleContext) *ValidationError {
	if rc.Field == nil {
		return nil
	}
	if _, err := coerceLiteral(rc.Rule, rc.Field, rc.Now); err != nil {
		return rc.fail(KindTypeMismatch, "%v", err)
	}
	return nil
}

// runChecks applies checks in order and returns the first failure.
func runChecks(checks []RuleCheck, rc *RuleContext) *ValidationError {
	for _, check := range checks {
		if verr := check(rc); verr != nil {
			return verr
		}
	}
	return nil
}
