package physical

import (
	"slices"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/dag"
)

// predicatePushdown is a rule that moves filter predicates toward the scans
// so rows are dropped as early as possible. A predicate only crosses a node
// when the rows it drops cannot change what that node computes;
// length-sensitive expressions such as aggregations, cumulative functions
// and user functions act as barriers.
type predicatePushdown struct {
	plan *Plan
}

// apply implements rule.
func (r *predicatePushdown) apply(node Node) bool {
	f, ok := node.(*Filter)
	if !ok {
		return false
	}
	children := r.plan.Children(f)
	if len(children) != 1 {
		return false
	}

	changed := false
	for i := 0; i < len(f.Predicates); i++ {
		// A predicate that is itself length-sensitive selects different
		// rows when evaluated at a different point of the plan.
		if !IsElementwise(f.Predicates[i]) {
			continue
		}
		if r.sink(children[0], f.Predicates[i]) {
			f.Predicates = slices.Delete(f.Predicates, i, i+1)
			i--
			changed = true
		}
	}
	return changed
}

var _ rule = (*predicatePushdown)(nil)

// sink places the predicate below n, descending as far as the plan allows,
// and reports whether it was placed. The caller removes an accepted
// predicate from the originating filter.
func (r *predicatePushdown) sink(n Node, pred Expression) bool {
	if len(r.plan.Parents(n)) > 1 {
		// Rewiring the input of a shared node would leak the predicate
		// into its other consumers.
		return false
	}
	switch n := n.(type) {
	case *Filter:
		n.Predicates = append(n.Predicates, pred)
		return true

	case *Projection:
		mapped, ok := rewriteThroughProjection(pred, n)
		if !ok {
			return false
		}
		r.sinkBelow(n, mapped)
		return true

	case *Sort:
		r.sinkBelow(n, pred)
		return true

	case *Reverse:
		r.sinkBelow(n, pred)
		return true

	case *HashAggregate:
		mapped, ok := rewriteThroughAggregate(pred, n)
		if !ok {
			return false
		}
		r.sinkBelow(n, mapped)
		return true

	case *HashJoin:
		return r.sinkIntoJoin(n, pred)

	case *Union:
		for _, child := range r.plan.Children(n) {
			if !r.sink(child, pred) {
				r.insertFilter(n, child, pred)
			}
		}
		return true

	default:
		// TableScan, Limit and Cache stop the descent: scans do not
		// evaluate predicates, slicing below a filter selects different
		// rows, and a cached result must stay valid for every consumer.
		return false
	}
}

// sinkBelow pushes the predicate past n, continuing through its input when
// possible and otherwise inserting a filter directly underneath.
func (r *predicatePushdown) sinkBelow(n Node, pred Expression) {
	child := r.plan.Children(n)[0]
	if r.sink(child, pred) {
		return
	}
	r.insertFilter(n, child, pred)
}

func (r *predicatePushdown) insertFilter(parent, child Node, pred Expression) {
	f := &Filter{Predicates: []Expression{pred}, schema: child.Schema()}
	r.plan.addNode(f)
	_ = r.plan.redirectEdge(parent, child, f)
	_ = r.plan.addEdge(dag.Edge[Node]{Parent: f, Child: child})
}

func (r *predicatePushdown) sinkIntoJoin(n *HashJoin, pred Expression) bool {
	children := r.plan.Children(n)
	if len(children) != 2 || children[0] == children[1] {
		// Redirecting one input of a self join would touch both sides.
		return false
	}
	left, right := children[0], children[1]

	leftNames := make(map[string]struct{}, len(left.Schema().Fields))
	for _, f := range left.Schema().Fields {
		leftNames[f.Name] = struct{}{}
	}
	rightSources := make(map[string]string, len(n.RightColumns))
	for _, jc := range n.RightColumns {
		rightSources[jc.OutName] = jc.Name
	}

	fromLeft, fromRight := false, false
	for _, name := range columnNames(pred) {
		if _, ok := leftNames[name]; ok {
			fromLeft = true
		} else if _, ok := rightSources[name]; ok {
			fromRight = true
		} else {
			return false
		}
	}
	if fromLeft == fromRight {
		return false
	}

	// Left-side predicates cross inner and left joins: every output row
	// carries its left row's values unchanged. Right-side predicates only
	// cross inner joins, since a left join materializes nulls for
	// unmatched rows that no input filter could produce.
	switch {
	case fromLeft:
		if !r.sink(left, pred) {
			r.insertFilter(n, left, pred)
		}
		return true
	case fromRight && n.How == logical.JoinTypeInner:
		mapped := transform(pred, func(e Expression) Expression {
			if col, ok := e.(*ColumnExpr); ok {
				if src, ok := rightSources[col.Name]; ok {
					return &ColumnExpr{Name: src, Dtype: col.Dtype}
				}
			}
			return e
		})
		if !r.sink(right, mapped) {
			r.insertFilter(n, right, mapped)
		}
		return true
	}
	return false
}

// rewriteThroughProjection maps a predicate over a projection's output onto
// the projection's input. It fails when any projected expression is
// length-sensitive, or when a referenced column is not a plain passthrough.
func rewriteThroughProjection(pred Expression, proj *Projection) (Expression, bool) {
	for _, col := range proj.Columns {
		if !IsElementwise(col.Expression) {
			return nil, false
		}
	}

	switch proj.Mode {
	case ProjectExtend:
		computed := make(map[string]struct{}, len(proj.Columns))
		for _, col := range proj.Columns {
			computed[col.Name] = struct{}{}
		}
		for _, name := range columnNames(pred) {
			if _, ok := computed[name]; ok {
				return nil, false
			}
		}
		return pred, true

	case ProjectSelect:
		sources := make(map[string]*ColumnExpr, len(proj.Columns))
		for _, col := range proj.Columns {
			if src, ok := col.Expression.(*ColumnExpr); ok {
				sources[col.Name] = src
			}
		}
		for _, name := range columnNames(pred) {
			if _, ok := sources[name]; !ok {
				return nil, false
			}
		}
		mapped := transform(pred, func(e Expression) Expression {
			if col, ok := e.(*ColumnExpr); ok {
				if src, ok := sources[col.Name]; ok {
					return src
				}
			}
			return e
		})
		return mapped, true
	}
	return nil, false
}

// rewriteThroughAggregate maps a predicate over grouped output onto the
// aggregation input. Only predicates over plain column group keys cross:
// dropping whole groups early leaves every surviving group's rows intact.
func rewriteThroughAggregate(pred Expression, agg *HashAggregate) (Expression, bool) {
	sources := make(map[string]*ColumnExpr, len(agg.Keys))
	for _, key := range agg.Keys {
		if src, ok := key.Expression.(*ColumnExpr); ok {
			sources[key.Name] = src
		}
	}
	for _, name := range columnNames(pred) {
		if _, ok := sources[name]; !ok {
			return nil, false
		}
	}
	mapped := transform(pred, func(e Expression) Expression {
		if col, ok := e.(*ColumnExpr); ok {
			if src, ok := sources[col.Name]; ok {
				return src
			}
		}
		return e
	})
	return mapped, true
}

// slicePushdown is a rule that moves row slices toward the scans so that
// upstream nodes produce fewer rows. A slice only crosses length-preserving
// row-wise nodes.
type slicePushdown struct {
	plan *Plan
}

// apply implements rule.
func (r *slicePushdown) apply(node Node) bool {
	l, ok := node.(*Limit)
	if !ok {
		return false
	}
	children := r.plan.Children(l)
	if len(children) != 1 {
		return false
	}
	if r.sink(children[0], l.Skip, l.Fetch) {
		r.plan.eliminateNode(l)
		return true
	}
	if u, ok := children[0].(*Union); ok {
		return r.boundUnion(u, l)
	}
	return false
}

var _ rule = (*slicePushdown)(nil)

// sink absorbs the slice below n and reports whether the originating limit
// node can go away.
func (r *slicePushdown) sink(n Node, skip, fetch int64) bool {
	if len(r.plan.Parents(n)) > 1 {
		return false
	}
	switch n := n.(type) {
	case *TableScan:
		n.Offset, n.Limit = composeSlice(n.Offset, n.Limit, skip, fetch)
		return true

	case *Limit:
		n.Skip, n.Fetch = composeSlice(n.Skip, n.Fetch, skip, fetch)
		return true

	case *Projection:
		for _, col := range n.Columns {
			if !IsElementwise(col.Expression) {
				return false
			}
		}
		child := r.plan.Children(n)[0]
		if !r.sink(child, skip, fetch) {
			r.insertLimit(n, child, skip, fetch)
		}
		return true

	default:
		return false
	}
}

// boundUnion copies a pure head bound into every concat branch: taking the
// first fetch rows of a concat needs at most fetch rows from each input.
// The outer limit stays, since the branches together still produce too many
// rows.
func (r *slicePushdown) boundUnion(u *Union, l *Limit) bool {
	if l.Skip != 0 || l.Fetch < 0 || len(r.plan.Parents(u)) > 1 {
		return false
	}
	changed := false
	for _, branch := range r.plan.Children(u) {
		switch b := branch.(type) {
		case *Limit:
			if b.Skip == 0 && b.Fetch >= 0 && b.Fetch <= l.Fetch {
				continue
			}
		case *TableScan:
			// An inserted bound may have been absorbed by the scan already.
			if b.Limit >= 0 && b.Limit <= l.Fetch {
				continue
			}
		}
		r.insertLimit(u, branch, 0, l.Fetch)
		changed = true
	}
	return changed
}

func (r *slicePushdown) insertLimit(parent, child Node, skip, fetch int64) {
	l := &Limit{Skip: skip, Fetch: fetch, schema: child.Schema()}
	r.plan.addNode(l)
	_ = r.plan.redirectEdge(parent, child, l)
	_ = r.plan.addEdge(dag.Edge[Node]{Parent: l, Child: child})
}

// composeSlice applies a second slice (skip, fetch) on top of an existing
// one (offset, limit). A negative limit or fetch reads all remaining rows.
func composeSlice(offset, limit, skip, fetch int64) (int64, int64) {
	newOffset := offset + skip
	newLimit := fetch
	if limit >= 0 {
		remaining := limit - skip
		if remaining < 0 {
			remaining = 0
		}
		if fetch < 0 || fetch > remaining {
			newLimit = remaining
		}
	}
	return newOffset, newLimit
}

// IsElementwise reports whether the expression produces each output row from
// the matching input row alone, so that dropping or slicing rows before
// evaluation leaves the surviving values unchanged.
func IsElementwise(e Expression) bool {
	switch e := e.(type) {
	case NamedExpression:
		return IsElementwise(e.Expression)
	case *ColumnExpr, *LiteralExpr:
		return true
	case *UnaryExpr:
		return IsElementwise(e.Input)
	case *CastExpr:
		return IsElementwise(e.Input)
	case *BinaryExpr:
		return IsElementwise(e.Left) && IsElementwise(e.Right)
	case *TernaryExpr:
		return IsElementwise(e.Predicate) && IsElementwise(e.Truthy) && IsElementwise(e.Falsy)
	case *HorizontalExpr:
		return allElementwise(e.Inputs)
	case *FuncExpr:
		switch e.Op {
		case types.FunctionKindFillNull, types.FunctionKindFromEpoch, types.FunctionKindArcTan2:
			return allElementwise(e.Inputs)
		}
		return false
	default:
		// Aggregations, cumulative and sorting functions, folds and user
		// functions see the whole column.
		return false
	}
}

func allElementwise(exprs []Expression) bool {
	for _, e := range exprs {
		if !IsElementwise(e) {
			return false
		}
	}
	return true
}

// pushProjections narrows table scans to the columns actually referenced
// above them, and drops join output columns nothing reads. Other nodes keep
// their expressions and have their schemas refreshed afterwards.
func pushProjections(p *Plan) {
	root, err := p.Root()
	if err != nil {
		return
	}

	required := make(map[Node]map[string]struct{}, p.Len())
	demand := func(n Node, names ...string) {
		set, ok := required[n]
		if !ok {
			set = make(map[string]struct{})
			required[n] = set
		}
		for _, name := range names {
			set[name] = struct{}{}
		}
	}

	for _, f := range root.Schema().Fields {
		demand(root, f.Name)
	}

	// Parents come before children, so each node sees its full demand
	// before propagating it.
	for _, n := range topoOrder(p, root) {
		req := required[n]
		switch n := n.(type) {
		case *TableScan:
			// Leaf; handled below.

		case *Projection:
			child := p.Children(n)[0]
			demand(child)
			switch n.Mode {
			case ProjectSelect:
				for _, col := range n.Columns {
					demand(child, columnNames(col.Expression)...)
				}
			case ProjectExtend:
				computed := make(map[string]struct{}, len(n.Columns))
				for _, col := range n.Columns {
					computed[col.Name] = struct{}{}
					demand(child, columnNames(col.Expression)...)
				}
				for name := range req {
					if _, ok := computed[name]; !ok {
						demand(child, name)
					}
				}
			}

		case *Filter:
			child := p.Children(n)[0]
			demand(child)
			for name := range req {
				demand(child, name)
			}
			for _, pred := range n.Predicates {
				demand(child, columnNames(pred)...)
			}

		case *Sort:
			child := p.Children(n)[0]
			demand(child)
			for name := range req {
				demand(child, name)
			}
			for _, by := range n.By {
				demand(child, columnNames(by)...)
			}

		case *HashAggregate:
			child := p.Children(n)[0]
			demand(child)
			for _, key := range n.Keys {
				demand(child, columnNames(key.Expression)...)
			}
			for _, agg := range n.Aggs {
				demand(child, columnNames(agg.Expression)...)
			}

		case *HashJoin:
			children := p.Children(n)
			if len(children) != 2 {
				continue
			}
			left, right := children[0], children[1]
			demand(left)
			demand(right)
			for _, key := range n.LeftKeys {
				demand(left, columnNames(key)...)
			}
			for _, key := range n.RightKeys {
				demand(right, columnNames(key)...)
			}
			leftNames := make(map[string]struct{}, len(left.Schema().Fields))
			for _, f := range left.Schema().Fields {
				leftNames[f.Name] = struct{}{}
			}
			for name := range req {
				if _, ok := leftNames[name]; ok {
					demand(left, name)
				}
			}
			// Output columns no parent reads are dropped from the join
			// itself, so the narrowed right side stays consistent with it.
			kept := make([]JoinColumn, 0, len(n.RightColumns))
			for _, jc := range n.RightColumns {
				if _, ok := req[jc.OutName]; ok {
					kept = append(kept, jc)
					demand(right, jc.Name)
				}
			}
			n.RightColumns = kept

		default:
			// Limit, Reverse, Cache and Union pass rows through without
			// touching columns.
			for _, child := range p.Children(n) {
				demand(child)
				for name := range req {
					demand(child, name)
				}
			}
		}
	}

	for _, n := range p.Nodes() {
		scan, ok := n.(*TableScan)
		if !ok {
			continue
		}
		req, ok := required[scan]
		if !ok {
			continue
		}
		cols := make([]string, 0, len(req))
		for _, f := range scan.Schema().Fields {
			if _, need := req[f.Name]; need {
				cols = append(cols, f.Name)
			}
		}
		// Literal-only queries reference no columns at all, but the scan
		// must still produce row counts for broadcasting; keep one column.
		if len(cols) == 0 && len(scan.Schema().Fields) > 0 {
			cols = append(cols, scan.Schema().Fields[0].Name)
		}
		if len(cols) < len(scan.Schema().Fields) {
			scan.Projections = cols
		}
	}
}

// topoOrder returns the nodes reachable from root with every node before
// its inputs.
func topoOrder(p *Plan, root Node) []Node {
	var order []Node
	_ = p.Walk(root, func(n Node) error {
		order = append(order, n)
		return nil
	}, dag.PostOrderWalk)
	slices.Reverse(order)
	return order
}

// refreshSchemas recomputes node schemas bottom-up after the plan graph has
// been rewritten: scans narrow to their projections and schema-derived
// nodes follow their inputs.
func refreshSchemas(p *Plan) {
	root, err := p.Root()
	if err != nil {
		return
	}
	_ = p.Walk(root, func(n Node) error {
		switch n := n.(type) {
		case *TableScan:
			if n.Projections == nil {
				return nil
			}
			keep := make(map[string]struct{}, len(n.Projections))
			for _, name := range n.Projections {
				keep[name] = struct{}{}
			}
			fields := make([]types.Field, 0, len(n.Projections))
			for _, f := range n.schema.Fields {
				if _, ok := keep[f.Name]; ok {
					fields = append(fields, f)
				}
			}
			n.schema = types.NewSchema(fields...)

		case *Projection:
			child := p.Children(n)[0]
			if n.Mode == ProjectSelect {
				n.schema = selectSchema(n.Columns)
			} else {
				n.schema = extendSchema(child.Schema(), n.Columns)
			}

		case *Filter:
			n.schema = p.Children(n)[0].Schema()

		case *Sort:
			n.schema = p.Children(n)[0].Schema()

		case *Limit:
			n.schema = p.Children(n)[0].Schema()

		case *Reverse:
			n.schema = p.Children(n)[0].Schema()

		case *Cache:
			n.schema = p.Children(n)[0].Schema()

		case *Union:
			n.schema = p.Children(n)[0].Schema()

		case *HashJoin:
			children := p.Children(n)
			if len(children) != 2 {
				return nil
			}
			left, right := children[0], children[1]
			rightTypes := make(map[string]types.DataType, len(right.Schema().Fields))
			for _, f := range right.Schema().Fields {
				rightTypes[f.Name] = f.Type
			}
			fields := append([]types.Field(nil), left.Schema().Fields...)
			for _, jc := range n.RightColumns {
				fields = append(fields, types.Field{Name: jc.OutName, Type: rightTypes[jc.Name]})
			}
			n.schema = types.NewSchema(fields...)

		case *HashAggregate:
			// Keys and aggs fully determine the schema; nothing to do.
		}
		return nil
	}, dag.PostOrderWalk)
}
