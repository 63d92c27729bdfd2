package physical

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/dag"
)

// Planner creates an executable physical plan from a logical plan. Planning
// performs the whole resolution step in one pass: selectors expand, output
// names are fixed, and every expression receives its output type, inserting
// casts where the coercion lattice allows. The resulting plan is correct but
// naive; [Optimize] rewrites it afterwards.
//
// Logical plans are persistent values, so two frames derived from the same
// prefix share plan nodes by pointer. The planner memoizes on node identity,
// which turns such shared prefixes into shared subplans in the physical
// graph.
type Planner struct {
	flags OptimizationFlags
	plan  *Plan
	memo  map[logical.Plan]Node
}

// NewPlanner creates a planner instance. The flags take part in resolution:
// with type coercion disabled, plans requiring implicit casts fail to build.
func NewPlanner(flags OptimizationFlags) *Planner {
	return &Planner{flags: flags}
}

// Build converts a logical plan into a physical plan and returns an error if
// the conversion fails.
func (p *Planner) Build(lp logical.Plan) (*Plan, error) {
	p.plan = &Plan{}
	p.memo = make(map[logical.Plan]Node)
	if _, err := p.process(lp); err != nil {
		return nil, err
	}
	return p.plan, nil
}

// process converts a logical plan node into a physical [Node], reusing the
// result for plan nodes encountered before.
func (p *Planner) process(lp logical.Plan) (Node, error) {
	if node, ok := p.memo[lp]; ok {
		return node, nil
	}

	var (
		node Node
		err  error
	)
	switch lp := lp.(type) {
	case *logical.MakeTable:
		node, err = p.processMakeTable(lp)
	case *logical.Projection:
		node, err = p.processProjection(lp.Input, lp.Exprs, ProjectSelect)
	case *logical.WithColumns:
		node, err = p.processProjection(lp.Input, lp.Exprs, ProjectExtend)
	case *logical.Rename:
		node, err = p.processRename(lp)
	case *logical.Filter:
		node, err = p.processFilter(lp)
	case *logical.Aggregate:
		node, err = p.processAggregate(lp)
	case *logical.Join:
		node, err = p.processJoin(lp)
	case *logical.Union:
		node, err = p.processUnion(lp)
	case *logical.Sort:
		node, err = p.processSort(lp)
	case *logical.Slice:
		node, err = p.processSlice(lp)
	case *logical.Reverse:
		node, err = p.processReverse(lp)
	case *logical.Cache:
		node, err = p.processCache(lp)
	default:
		return nil, fmt.Errorf("%w: plan node %s", errors.ErrNotImplemented, lp.Type())
	}
	if err != nil {
		return nil, err
	}

	p.memo[lp] = node
	return node, nil
}

// processInput converts the child plan and connects it below the parent.
func (p *Planner) processInput(parent Node, lp logical.Plan) (Node, error) {
	child, err := p.process(lp)
	if err != nil {
		return nil, err
	}
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: parent, Child: child}); err != nil {
		return nil, err
	}
	return child, nil
}

func (p *Planner) processMakeTable(lp *logical.MakeTable) (Node, error) {
	schema, err := lp.Source.Schema()
	if err != nil {
		return nil, fmt.Errorf("resolving schema of table %q: %w", lp.Source.Name(), err)
	}
	node := &TableScan{
		Source: lp.Source,
		Offset: 0,
		Limit:  -1,
		schema: schema,
	}
	p.plan.addNode(node)
	return node, nil
}

func (p *Planner) processProjection(input logical.Plan, exprs []logical.Expr, mode ProjectionMode) (Node, error) {
	child, err := p.process(input)
	if err != nil {
		return nil, err
	}

	r := &resolver{schema: child.Schema(), flags: p.flags}
	columns, err := r.resolveExprs(exprs)
	if err != nil {
		return nil, err
	}

	var schema types.Schema
	if mode == ProjectSelect {
		schema = selectSchema(columns)
	} else {
		schema = extendSchema(child.Schema(), columns)
	}

	node := &Projection{Columns: columns, Mode: mode, schema: schema}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

// selectSchema builds the schema of a select-mode projection from its
// column list.
func selectSchema(columns []NamedExpression) types.Schema {
	fields := make([]types.Field, len(columns))
	for i, col := range columns {
		fields[i] = types.Field{Name: col.Name, Type: col.DataType()}
	}
	return types.NewSchema(fields...)
}

// extendSchema overlays the projected columns onto the input schema:
// matching names replace the existing field in place, new names append in
// expression order.
func extendSchema(input types.Schema, columns []NamedExpression) types.Schema {
	fields := append([]types.Field(nil), input.Fields...)
	for _, col := range columns {
		field := types.Field{Name: col.Name, Type: col.DataType()}
		if idx := input.Index(col.Name); idx >= 0 {
			fields[idx] = field
			continue
		}
		fields = append(fields, field)
	}
	return types.Schema{Fields: fields}
}

// processRename lowers a rename to a select-mode projection of plain column
// references, so the optimizer needs no dedicated node for it.
func (p *Planner) processRename(lp *logical.Rename) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}

	input := child.Schema()
	mapping := make(map[string]string, len(lp.Old))
	for i, old := range lp.Old {
		if input.Index(old) < 0 {
			return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, old)
		}
		mapping[old] = lp.New[i]
	}

	columns := make([]NamedExpression, input.Len())
	seen := make(map[string]struct{}, input.Len())
	for i, f := range input.Fields {
		name := f.Name
		if to, ok := mapping[f.Name]; ok {
			name = to
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: the name %q is duplicate", errors.ErrDuplicate, name)
		}
		seen[name] = struct{}{}
		columns[i] = NamedExpression{Name: name, Expression: &ColumnExpr{Name: f.Name, Dtype: f.Type}}
	}

	node := &Projection{Columns: columns, Mode: ProjectSelect, schema: selectSchema(columns)}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) processFilter(lp *logical.Filter) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}

	expanded, err := expandExprs(child.Schema(), []logical.Expr{lp.Predicate})
	if err != nil {
		return nil, err
	}
	r := &resolver{schema: child.Schema(), flags: p.flags}
	predicates := make([]Expression, 0, len(expanded))
	for _, e := range expanded {
		pred, err := r.resolve(e)
		if err != nil {
			return nil, err
		}
		if t := pred.DataType(); !t.Equal(types.Bool) && !t.IsNull() {
			return nil, fmt.Errorf("%w: filter predicate must be of type bool, got %s", errors.ErrCompute, t)
		}
		predicates = append(predicates, castTo(pred, types.Bool))
	}

	node := &Filter{Predicates: predicates, schema: child.Schema()}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) processAggregate(lp *logical.Aggregate) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}

	r := &resolver{schema: child.Schema(), flags: p.flags}
	keys, err := r.resolveExprs(lp.Keys)
	if err != nil {
		return nil, err
	}
	aggs, err := r.resolveExprs(lp.Aggs)
	if err != nil {
		return nil, err
	}

	fields := make([]types.Field, 0, len(keys)+len(aggs))
	seen := make(map[string]struct{}, len(keys)+len(aggs))
	for _, col := range append(append([]NamedExpression(nil), keys...), aggs...) {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("%w: the name %q is duplicate", errors.ErrDuplicate, col.Name)
		}
		seen[col.Name] = struct{}{}
		fields = append(fields, types.Field{Name: col.Name, Type: col.DataType()})
	}

	node := &HashAggregate{
		Keys:          keys,
		Aggs:          aggs,
		MaintainOrder: lp.MaintainOrder,
		schema:        types.NewSchema(fields...),
	}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) processJoin(lp *logical.Join) (Node, error) {
	if len(lp.LeftOn) == 0 || len(lp.RightOn) == 0 {
		return nil, fmt.Errorf("%w: join requires at least one key", errors.ErrInvalidParameter)
	}
	if len(lp.LeftOn) != len(lp.RightOn) {
		return nil, fmt.Errorf("%w: left_on (%d) and right_on (%d) must have the same length",
			errors.ErrInvalidParameter, len(lp.LeftOn), len(lp.RightOn))
	}

	node := &HashJoin{How: lp.How, Suffix: lp.Suffix}
	if node.Suffix == "" {
		node.Suffix = "_right"
	}
	p.plan.addNode(node)

	left, err := p.processInput(node, lp.Left)
	if err != nil {
		return nil, err
	}
	right, err := p.processInput(node, lp.Right)
	if err != nil {
		return nil, err
	}

	lr := &resolver{schema: left.Schema(), flags: p.flags}
	rr := &resolver{schema: right.Schema(), flags: p.flags}
	for i := range lp.LeftOn {
		lk, err := lr.resolve(lp.LeftOn[i])
		if err != nil {
			return nil, err
		}
		rk, err := rr.resolve(lp.RightOn[i])
		if err != nil {
			return nil, err
		}
		common, err := lr.commonType(lk.DataType(), rk.DataType())
		if err != nil {
			return nil, err
		}
		node.LeftKeys = append(node.LeftKeys, castTo(lk, common))
		node.RightKeys = append(node.RightKeys, castTo(rk, common))
	}

	// Right key columns referenced by name coalesce into the left ones and
	// are dropped from the output.
	dropped := make(map[string]struct{})
	for _, rk := range node.RightKeys {
		if col, ok := unwrapColumn(rk); ok {
			dropped[col.Name] = struct{}{}
		}
	}

	fields := append([]types.Field(nil), left.Schema().Fields...)
	taken := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		taken[f.Name] = struct{}{}
	}
	for _, f := range right.Schema().Fields {
		if _, skip := dropped[f.Name]; skip {
			continue
		}
		name := f.Name
		if _, clash := taken[name]; clash {
			name += node.Suffix
		}
		if _, clash := taken[name]; clash {
			return nil, fmt.Errorf("%w: the name %q is duplicate", errors.ErrDuplicate, name)
		}
		taken[name] = struct{}{}
		node.RightColumns = append(node.RightColumns, JoinColumn{Name: f.Name, OutName: name})
		fields = append(fields, types.Field{Name: name, Type: f.Type})
	}
	node.schema = types.NewSchema(fields...)
	return node, nil
}

// unwrapColumn looks through casts for a plain column reference.
func unwrapColumn(e Expression) (*ColumnExpr, bool) {
	for {
		switch v := e.(type) {
		case *ColumnExpr:
			return v, true
		case *CastExpr:
			e = v.Input
		default:
			return nil, false
		}
	}
}

func (p *Planner) processUnion(lp *logical.Union) (Node, error) {
	node := &Union{}
	p.plan.addNode(node)

	var schema types.Schema
	for i, input := range lp.Plans {
		child, err := p.processInput(node, input)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			schema = child.Schema()
			continue
		}
		if err := checkConcatSchema(schema, child.Schema()); err != nil {
			return nil, err
		}
	}
	node.schema = schema
	return node, nil
}

// checkConcatSchema verifies that two frames can be stacked vertically.
// Width and name mismatches are shape errors, type mismatches are compute
// errors.
func checkConcatSchema(want, got types.Schema) error {
	if want.Len() != got.Len() {
		return fmt.Errorf("%w: cannot vstack frames of width %d and %d", errors.ErrShape, want.Len(), got.Len())
	}
	for i := range want.Fields {
		if want.Fields[i].Name != got.Fields[i].Name {
			return fmt.Errorf("%w: column %d name mismatch: %q != %q",
				errors.ErrShape, i, want.Fields[i].Name, got.Fields[i].Name)
		}
		if !want.Fields[i].Type.Equal(got.Fields[i].Type) {
			return fmt.Errorf("%w: column %q type mismatch: %s != %s",
				errors.ErrCompute, want.Fields[i].Name, want.Fields[i].Type, got.Fields[i].Type)
		}
	}
	return nil
}

func (p *Planner) processSort(lp *logical.Sort) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}

	r := &resolver{schema: child.Schema(), flags: p.flags}
	resolved, err := r.resolveExprs(lp.By)
	if err != nil {
		return nil, err
	}
	by := make([]Expression, len(resolved))
	for i, col := range resolved {
		by[i] = col.Expression
	}

	descending, err := spreadDescending(lp.Descending, len(by))
	if err != nil {
		return nil, err
	}

	node := &Sort{By: by, Descending: descending, NullsLast: lp.NullsLast, schema: child.Schema()}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

// spreadDescending broadcasts the per-column sort directions to the sort
// expression count. An empty slice means ascending everywhere, a single
// value applies to every column.
func spreadDescending(desc []bool, n int) ([]bool, error) {
	switch len(desc) {
	case 0:
		return make([]bool, n), nil
	case 1:
		out := make([]bool, n)
		for i := range out {
			out[i] = desc[0]
		}
		return out, nil
	case n:
		return append([]bool(nil), desc...), nil
	default:
		return nil, fmt.Errorf("%w: the length of `descending` (%d) does not match the length of `by` (%d)",
			errors.ErrInvalidParameter, len(desc), n)
	}
}

func (p *Planner) processSlice(lp *logical.Slice) (Node, error) {
	if lp.Offset < 0 {
		return nil, fmt.Errorf("%w: negative slice offset %d", errors.ErrInvalidParameter, lp.Offset)
	}
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}
	node := &Limit{Skip: lp.Offset, Fetch: lp.Len, schema: child.Schema()}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) processReverse(lp *logical.Reverse) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}
	node := &Reverse{schema: child.Schema()}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Planner) processCache(lp *logical.Cache) (Node, error) {
	child, err := p.process(lp.Input)
	if err != nil {
		return nil, err
	}
	node := &Cache{CacheID: lp.ID, schema: child.Schema()}
	p.plan.addNode(node)
	if err := p.plan.addEdge(dag.Edge[Node]{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	node.Key = fingerprintNode(p.plan, child)
	return node, nil
}
