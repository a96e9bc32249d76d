// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Rule tree compilation and validation.
 *
 * Compiles a types.Node tree into a Segment: an executable Predicate plus its
 * description, cost and referenced fields.
 *
 * Compilation workflow (single walk):
 *   1. Structural checks per node: nil nodes, unknown logic, depth, cycles
 *   2. Per rule: ordered RuleChecks, then literal coercion
 *   3. Per group: children combined with AND/OR, short-circuit left to right;
 *      empty groups become a constant decided by the empty-group policy
 *   4. Total cost checked against Options.MaxCost
 *
 * Errors never stop the walk: every problem in the tree is collected and
 * returned as ValidationErrors, and no Predicate is produced.
 *
 * Empty groups: the constant an empty group compiles to is an explicit policy.
 * Defaults are MatchAll at the root and Identity below it (vacuous AND is
 * true, vacuous OR is false). Reject turns an empty group into MalformedTree.
 *
 * Relative dates ("P30D") resolve against Options.Now once, at compile time,
 * so one Segment answers consistently for every customer it is applied to.
 */

// Predicate is a compiled, side-effect-free test over one customer.
type Predicate func(types.Customer) bool

// EmptyGroupPolicy decides what an empty RuleGroup compiles to.
type EmptyGroupPolicy string

const (
	PolicyMatchAll  EmptyGroupPolicy = "match_all"
	PolicyMatchNone EmptyGroupPolicy = "match_none"
	PolicyIdentity  EmptyGroupPolicy = "identity" // AND -> all, OR -> none
	PolicyReject    EmptyGroupPolicy = "reject"
)

// ParseEmptyGroupPolicy converts a configuration string to a policy.
// Empty input returns the zero policy, which Options resolves to a default.
func ParseEmptyGroupPolicy(s string) (EmptyGroupPolicy, error) {
	switch p := EmptyGroupPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyMatchAll, PolicyMatchNone, PolicyIdentity, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown empty group policy %q", s)
	}
}

// Options control compilation.
type Options struct {
	RootPolicy  EmptyGroupPolicy // default PolicyMatchAll
	GroupPolicy EmptyGroupPolicy // default PolicyIdentity
	MaxCost     int              // default types.MaxTreeCost
	Now         time.Time        // default time.Now() at compile
	Checks      []RuleCheck      // default DefaultRuleChecks
}

func (o Options) withDefaults() Options {
	if o.RootPolicy == "" {
		o.RootPolicy = PolicyMatchAll
	}
	if o.GroupPolicy == "" {
		o.GroupPolicy = PolicyIdentity
	}
	if o.MaxCost <= 0 {
		o.MaxCost = types.MaxTreeCost
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Checks == nil {
		o.Checks = DefaultRuleChecks
	}
	return o
}

// Segment is a compiled rule tree. The tree stays the durable source of
// truth; a Segment is derived and rebuilt on demand, never persisted.
type Segment struct {
	Predicate   Predicate
	Description string
	Cost        int
	Fields      []string // distinct catalog fields referenced, sorted
	CompiledAt  time.Time
}

// Match applies the segment's predicate to one customer.
func (s *Segment) Match(c types.Customer) bool {
	return s.Predicate(c)
}

var (
	matchAll  Predicate = func(types.Customer) bool { return true }
	matchNone Predicate = func(types.Customer) bool { return false }
)

// Compile validates tree against catalog and builds its Segment.
// Returns ValidationErrors listing every problem when the tree is invalid.
func Compile(tree types.Node, catalog *Catalog, opts Options) (*Segment, error) {
	opts = opts.withDefaults()

	c := &compiler{
		catalog:   catalog,
		opts:      opts,
		ancestors: make(map[*types.RuleGroup]bool),
		fields:    make(map[string]bool),
	}

	pred := c.node(tree, "$", 1, true)

	if c.cost > opts.MaxCost {
		c.errs = append(c.errs, ValidationError{
			Kind:    KindMalformedTree,
			NodeID:  nodeID(tree),
			Path:    "$",
			Message: fmt.Sprintf("tree cost %d exceeds limit %d", c.cost, opts.MaxCost),
		})
	}

	if len(c.errs) > 0 {
		return nil, c.errs
	}

	fields := make([]string, 0, len(c.fields))
	for f := range c.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	return &Segment{
		Predicate:   pred,
		Description: describer{root: opts.RootPolicy, group: opts.GroupPolicy}.node(tree, 1),
		Cost:        c.cost,
		Fields:      fields,
		CompiledAt:  opts.Now,
	}, nil
}

// compiler carries state for one Compile walk.
type compiler struct {
	catalog   *Catalog
	opts      Options
	ancestors map[*types.RuleGroup]bool
	fields    map[string]bool
	cost      int
	errs      ValidationErrors
}

func (c *compiler) malformed(id, path, format string, args ...any) Predicate {
	c.errs = append(c.errs, ValidationError{
		Kind:    KindMalformedTree,
		NodeID:  id,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
	return matchNone
}

// node compiles one node. The returned Predicate is meaningless once c.errs
// is non-empty; Compile discards it in that case.
func (c *compiler) node(n types.Node, path string, depth int, root bool) Predicate {
	if depth > types.MaxTreeDepth {
		return c.malformed(nodeID(n), path, "tree deeper than %d levels", types.MaxTreeDepth)
	}

	switch v := n.(type) {
	case *types.Rule:
		if v == nil {
			return c.malformed("", path, "null rule")
		}
		return c.rule(v, path)
	case *types.RuleGroup:
		if v == nil {
			return c.malformed("", path, "null group")
		}
		return c.group(v, path, depth, root)
	default:
		return c.malformed("", path, "node is neither a rule nor a group")
	}
}

func (c *compiler) group(g *types.RuleGroup, path string, depth int, root bool) Predicate {
	if c.ancestors[g] {
		return c.malformed(g.ID, path, "cyclic reference to group %q", g.ID)
	}
	c.ancestors[g] = true
	defer delete(c.ancestors, g)

	if g.Logic != types.LogicAnd && g.Logic != types.LogicOr {
		c.malformed(g.ID, path, "logic must be AND or OR, got %q", g.Logic)
	}

	if len(g.Children) == 0 {
		policy := c.opts.GroupPolicy
		if root {
			policy = c.opts.RootPolicy
		}
		return c.emptyGroup(g, path, policy)
	}

	preds := make([]Predicate, 0, len(g.Children))
	for i, child := range g.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		preds = append(preds, c.node(child, childPath, depth+1, false))
	}

	if len(preds) == 1 {
		return preds[0]
	}
	if g.Logic == types.LogicOr {
		return anyOf(preds)
	}
	return allOf(preds)
}

func (c *compiler) emptyGroup(g *types.RuleGroup, path string, policy EmptyGroupPolicy) Predicate {
	switch policy {
	case PolicyMatchAll:
		return matchAll
	case PolicyMatchNone:
		return matchNone
	case PolicyIdentity:
		if g.Logic == types.LogicOr {
			return matchNone
		}
		return matchAll
	default:
		return c.malformed(g.ID, path, "group has no children")
	}
}

func (c *compiler) rule(r *types.Rule, path string) Predicate {
	rc := &RuleContext{Rule: r, Path: path, Now: c.opts.Now}
	if f, ok := c.catalog.Lookup(r.Field); ok {
		rc.Field = f
	}

	if verr := runChecks(c.opts.Checks, rc); verr != nil {
		c.errs = append(c.errs, *verr)
		return matchNone
	}

	// Guards for caller-composed check lists that skip a default check.
	if rc.Field == nil {
		c.errs = append(c.errs, *rc.fail(KindUnknownField, "field %q is not in the catalog", r.Field))
		return matchNone
	}
	if !rc.Field.Allows(r.Operator) {
		c.errs = append(c.errs, *rc.fail(KindOperatorNotAllowed, "operator %s is not allowed for field %s", r.Operator, r.Field))
		return matchNone
	}
	lit, err := coerceLiteral(r, rc.Field, c.opts.Now)
	if err != nil {
		c.errs = append(c.errs, *rc.fail(KindTypeMismatch, "%v", err))
		return matchNone
	}

	c.fields[rc.Field.Name] = true
	c.cost += CalculateRuleCost(rc.Field, r.Operator, len(lit.set))

	cr := &compiledRule{field: rc.Field, op: r.Operator, lit: lit}
	return cr.evaluate
}

// allOf is AND with left-to-right short-circuit.
func allOf(preds []Predicate) Predicate {
	return func(c types.Customer) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// anyOf is OR with left-to-right short-circuit.
func anyOf(preds []Predicate) Predicate {
	return func(c types.Customer) bool {
		for _, p := range preds {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// nodeID returns n's id, tolerating nil and foreign nodes.
func nodeID(n types.Node) string {
	switch v := n.(type) {
	case *types.Rule:
		if v != nil {
			return v.ID
		}
	case *types.RuleGroup:
		if v != nil {
			return v.ID
		}
	}
	return ""
}
