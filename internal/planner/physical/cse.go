package physical

import (
	"fmt"
	"sort"

	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/dag"
)

// eliminateCommonSubplans deduplicates structurally identical subplans and
// shares the result of any subplan consumed more than once through a cache
// node, so it is computed a single time per collect.
func eliminateCommonSubplans(p *Plan) {
	root, err := p.Root()
	if err != nil {
		return
	}

	// Children come first, so by the time a node is fingerprinted its
	// duplicated inputs have already been redirected onto their canonical
	// instances and equal subplans hash equal.
	var order []Node
	_ = p.Walk(root, func(n Node) error {
		order = append(order, n)
		return nil
	}, dag.PostOrderWalk)

	canonical := make(map[uint64]Node, len(order))
	for _, n := range order {
		fp := fingerprintNode(p, n)
		canon, ok := canonical[fp]
		if !ok {
			canonical[fp] = n
			continue
		}
		if canon == n {
			continue
		}
		for _, parent := range append([]Node(nil), p.Parents(n)...) {
			_ = p.redirectEdge(parent, n, canon)
		}
	}
	p.prune()

	// Wrap shared subplans in cache nodes so their batches are computed
	// once and replayed for every consumer.
	for _, n := range append([]Node(nil), p.Nodes()...) {
		if _, ok := n.(*Cache); ok {
			continue
		}
		parents := append([]Node(nil), p.Parents(n)...)
		if len(parents) < 2 {
			continue
		}
		cached := false
		for _, parent := range parents {
			if _, ok := parent.(*Cache); ok {
				cached = true
				break
			}
		}
		if cached {
			continue
		}
		cache := &Cache{
			Key:     fingerprintNode(p, n),
			CacheID: fmt.Sprintf("shared:%s", n.ID()),
			schema:  n.Schema(),
		}
		p.addNode(cache)
		for _, parent := range parents {
			_ = p.redirectEdge(parent, n, cache)
		}
		_ = p.addEdge(dag.Edge[Node]{Parent: cache, Child: n})
	}
}

// eliminateCommonSubexprs factors subexpressions computed more than once
// within a select into a temporary column evaluated a single time in an
// extend projection underneath.
func eliminateCommonSubexprs(p *Plan) {
	root, err := p.Root()
	if err != nil {
		return
	}
	var projections []*Projection
	_ = p.Walk(root, func(n Node) error {
		if proj, ok := n.(*Projection); ok && proj.Mode == ProjectSelect {
			projections = append(projections, proj)
		}
		return nil
	}, dag.PreOrderWalk)

	for _, proj := range projections {
		factorSubexprs(p, proj)
	}
}

type subexpr struct {
	fp    uint64
	expr  Expression
	count int
	size  int
}

func factorSubexprs(p *Plan, proj *Projection) {
	// Count structurally identical hoistable subexpressions across all
	// columns, in first-seen order for deterministic temp naming.
	var candidates []*subexpr
	byFP := make(map[uint64]*subexpr)
	for _, col := range proj.Columns {
		walkExpr(col.Expression, func(e Expression) {
			if !hoistable(e) {
				return
			}
			fp := fingerprintExpr(e)
			if c, ok := byFP[fp]; ok {
				c.count++
				return
			}
			c := &subexpr{fp: fp, expr: e, count: 1, size: exprSize(e)}
			byFP[fp] = c
			candidates = append(candidates, c)
		})
	}

	shared := candidates[:0]
	for _, c := range candidates {
		if c.count >= 2 {
			shared = append(shared, c)
		}
	}
	if len(shared) == 0 {
		return
	}
	sort.SliceStable(shared, func(i, j int) bool { return shared[i].size > shared[j].size })

	// Drop candidates nested inside a larger chosen one: their occurrences
	// disappear with the enclosing expression, and keeping them would make
	// the bottom-up rewrite miss the outer match.
	nested := make(map[uint64]struct{})
	for _, c := range shared {
		if _, ok := nested[c.fp]; ok {
			continue
		}
		walkExpr(c.expr, func(e Expression) {
			if e == c.expr || !hoistable(e) {
				return
			}
			nested[fingerprintExpr(e)] = struct{}{}
		})
	}

	taken := make(map[string]struct{})
	child := p.Children(proj)[0]
	for _, f := range child.Schema().Fields {
		taken[f.Name] = struct{}{}
	}
	for _, col := range proj.Columns {
		taken[col.Name] = struct{}{}
	}

	temps := make([]NamedExpression, 0, len(shared))
	names := make(map[uint64]string, len(shared))
	seq := 0
	for _, c := range shared {
		if _, ok := nested[c.fp]; ok {
			continue
		}
		name := fmt.Sprintf("__cse_%d", seq)
		for {
			if _, clash := taken[name]; !clash {
				break
			}
			seq++
			name = fmt.Sprintf("__cse_%d", seq)
		}
		taken[name] = struct{}{}
		seq++
		names[c.fp] = name
		temps = append(temps, NamedExpression{Name: name, Expression: c.expr})
	}
	if len(temps) == 0 {
		return
	}

	lower := &Projection{
		Columns: temps,
		Mode:    ProjectExtend,
		schema:  extendSchema(child.Schema(), temps),
	}
	p.addNode(lower)
	_ = p.redirectEdge(proj, child, lower)
	_ = p.addEdge(dag.Edge[Node]{Parent: lower, Child: child})

	for i, col := range proj.Columns {
		proj.Columns[i].Expression = transform(col.Expression, func(e Expression) Expression {
			if !hoistable(e) {
				return e
			}
			if name, ok := names[fingerprintExpr(e)]; ok {
				return &ColumnExpr{Name: name, Dtype: e.DataType()}
			}
			return e
		})
	}
}

// hoistable reports whether a subexpression may be factored into an extend
// projection. The replacement column must be length-preserving, so scalar
// producers and length changers stay put, and user functions are kept out
// of sharing entirely since their bodies are opaque.
func hoistable(e Expression) bool {
	switch e.(type) {
	case *ColumnExpr, *LiteralExpr:
		// Trivial; sharing saves nothing.
		return false
	}
	ok := true
	walkExpr(e, func(e Expression) {
		switch e := e.(type) {
		case *AggExpr, *MapExpr, *FoldExpr:
			ok = false
		case *FuncExpr:
			if e.Op == types.FunctionKindHead || e.Op == types.FunctionKindTail {
				ok = false
			}
		}
	})
	return ok
}

func exprSize(e Expression) int {
	size := 0
	walkExpr(e, func(Expression) { size++ })
	return size
}
