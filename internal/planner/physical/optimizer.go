package physical

// OptimizationFlags toggles individual plan rewrites. Every rewrite is
// semantics-preserving: collecting with any combination of flags returns the
// same rows as collecting the unoptimized plan.
//
// TypeCoercion is consumed during expression resolution rather than during
// optimization; it is part of this struct because callers configure all
// toggles in one place.
type OptimizationFlags struct {
	TypeCoercion       bool
	PredicatePushdown  bool
	ProjectionPushdown bool
	SimplifyExpression bool
	SlicePushdown      bool
	CommSubplanElim    bool
	CommSubexprElim    bool
	Streaming          bool
}

// DefaultFlags returns the flags used when the caller does not choose
// otherwise: all rewrites enabled, streaming off.
func DefaultFlags() OptimizationFlags {
	return OptimizationFlags{
		TypeCoercion:       true,
		PredicatePushdown:  true,
		ProjectionPushdown: true,
		SimplifyExpression: true,
		SlicePushdown:      true,
		CommSubplanElim:    true,
		CommSubexprElim:    true,
	}
}

// Optimize rewrites the plan in place according to the enabled flags and
// returns it. Rule-based passes run first, bottom-up and at most a few
// iterations each; the whole-plan analyses (projection pushdown and the two
// sharing passes) follow, and a final walk refreshes the derived node
// schemas.
func Optimize(p *Plan, flags OptimizationFlags) *Plan {
	p, _ = OptimizeWithStats(p, flags)
	return p
}

// OptimizationStats reports how often each rule-based pass changed the plan
// during one Optimize call. The whole-plan analyses are not counted.
type OptimizationStats struct {
	RuleApplications map[string]int
}

// OptimizeWithStats is [Optimize], additionally reporting per-pass rule
// application counts.
func OptimizeWithStats(p *Plan, flags OptimizationFlags) (*Plan, OptimizationStats) {
	stats := OptimizationStats{RuleApplications: make(map[string]int)}

	root, err := p.Root()
	if err != nil {
		return p, stats
	}

	var passes []*optimization
	if flags.SimplifyExpression {
		passes = append(passes, newOptimization("SimplifyExpressions", p).withRules(
			&simplifyExpressions{plan: p},
			&removeNoopFilter{plan: p},
		))
	}
	if flags.PredicatePushdown {
		passes = append(passes, newOptimization("PredicatePushdown", p).withRules(
			&mergeFilters{plan: p},
			&predicatePushdown{plan: p},
			&removeNoopFilter{plan: p},
		))
	}
	if flags.SlicePushdown {
		passes = append(passes, newOptimization("SlicePushdown", p).withRules(
			&slicePushdown{plan: p},
		))
	}
	newOptimizer(p, passes).optimize(root)
	for _, pass := range passes {
		stats.RuleApplications[pass.name] = pass.applications
	}

	if flags.ProjectionPushdown {
		pushProjections(p)
	}
	if flags.CommSubplanElim {
		eliminateCommonSubplans(p)
	}
	if flags.CommSubexprElim {
		eliminateCommonSubexprs(p)
	}
	refreshSchemas(p)
	return p, stats
}

// A rule is a transformation that can be applied on a Node.
type rule interface {
	// apply tries to apply the transformation on the node.
	// It returns a boolean indicating whether the transformation has been
	// applied.
	apply(Node) bool
}

// removeNoopFilter is a rule that removes Filter nodes without predicates.
type removeNoopFilter struct {
	plan *Plan
}

// apply implements rule.
func (r *removeNoopFilter) apply(node Node) bool {
	changed := false
	switch node := node.(type) {
	case *Filter:
		if len(node.Predicates) == 0 {
			r.plan.eliminateNode(node)
			changed = true
		}
	}
	return changed
}

var _ rule = (*removeNoopFilter)(nil)

// mergeFilters is a rule that folds a filter's direct filter child into it,
// since consecutive filters apply the conjunction of their predicates.
type mergeFilters struct {
	plan *Plan
}

// apply implements rule.
func (r *mergeFilters) apply(node Node) bool {
	f, ok := node.(*Filter)
	if !ok {
		return false
	}
	children := r.plan.Children(f)
	if len(children) != 1 {
		return false
	}
	child, ok := children[0].(*Filter)
	if !ok || len(r.plan.Parents(child)) != 1 {
		// A shared filter feeds other consumers and must stay.
		return false
	}
	f.Predicates = append(f.Predicates, child.Predicates...)
	r.plan.eliminateNode(child)
	return true
}

var _ rule = (*mergeFilters)(nil)

// optimization represents a single optimization pass and can hold multiple
// rules.
type optimization struct {
	plan  *Plan
	name  string
	rules []rule

	// applications counts how many rule invocations changed the plan.
	applications int
}

func newOptimization(name string, plan *Plan) *optimization {
	return &optimization{
		name: name,
		plan: plan,
	}
}

func (o *optimization) withRules(rules ...rule) *optimization {
	o.rules = append(o.rules, rules...)
	return o
}

func (o *optimization) optimize(node Node) {
	iterations, maxIterations := 0, 3

	for iterations < maxIterations {
		iterations++

		if !o.applyRules(node) {
			// Stop immediately if an optimization pass produced no changes.
			break
		}

		// Rules may eliminate the node we started from, e.g. when a filter
		// at the root ends up with every predicate pushed down.
		if root, err := o.plan.Root(); err == nil {
			node = root
		}
	}
}

func (o *optimization) applyRules(node Node) bool {
	anyChanged := false

	for _, child := range o.plan.Children(node) {
		changed := o.applyRules(child)
		if changed {
			anyChanged = true
		}
	}

	for _, rule := range o.rules {
		changed := rule.apply(node)
		if changed {
			o.applications++
			anyChanged = true
		}
	}

	return anyChanged
}

// The optimizer can optimize physical plans using the provided optimization
// passes.
type optimizer struct {
	plan   *Plan
	passes []*optimization
}

func newOptimizer(plan *Plan, passes []*optimization) *optimizer {
	return &optimizer{plan: plan, passes: passes}
}

func (o *optimizer) optimize(node Node) {
	for _, pass := range o.passes {
		pass.optimize(node)
		if root, err := o.plan.Root(); err == nil {
			node = root
		}
	}
}
