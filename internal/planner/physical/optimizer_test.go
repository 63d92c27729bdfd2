package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/dag"
)

func gt(name string, v int64) logical.Expr {
	return &logical.BinaryExpr{
		Op:   types.BinOpKindGt,
		Left: logical.NewColumnRef(name),
		Right: logical.NewTypedLiteral(
			types.NewTypedLiteral(types.Int64, v),
		),
	}
}

// chain returns the nodes from the root downward, following single inputs.
func chain(t *testing.T, p *Plan) []Node {
	t.Helper()
	root, err := p.Root()
	require.NoError(t, err)
	out := []Node{root}
	for {
		children := p.Children(out[len(out)-1])
		if len(children) != 1 {
			return out
		}
		out = append(out, children[0])
	}
}

func chainTypes(t *testing.T, p *Plan) []NodeType {
	t.Helper()
	nodes := chain(t, p)
	out := make([]NodeType, len(nodes))
	for i, n := range nodes {
		out[i] = n.Type()
	}
	return out
}

func runPass(t *testing.T, p *Plan, pass *optimization) {
	t.Helper()
	root, err := p.Root()
	require.NoError(t, err)
	pass.optimize(root)
}

func predicatePass(p *Plan) *optimization {
	return newOptimization("PredicatePushdown", p).withRules(
		&mergeFilters{plan: p},
		&predicatePushdown{plan: p},
		&removeNoopFilter{plan: p},
	)
}

func slicePass(p *Plan) *optimization {
	return newOptimization("SlicePushdown", p).withRules(
		&slicePushdown{plan: p},
	)
}

func simplifyPass(p *Plan) *optimization {
	return newOptimization("SimplifyExpressions", p).withRules(
		&simplifyExpressions{plan: p},
		&removeNoopFilter{plan: p},
	)
}

func TestRemoveNoopFilter(t *testing.T) {
	src := testTable(t)
	schema, err := src.Schema()
	require.NoError(t, err)

	p := &Plan{}
	scan := p.addNode(&TableScan{Source: src, Limit: -1, schema: schema})
	filter := p.addNode(&Filter{schema: schema})
	require.NoError(t, p.addEdge(dag.Edge[Node]{Parent: filter, Child: scan}))

	runPass(t, p, newOptimization("noop", p).withRules(&removeNoopFilter{plan: p}))

	root, err := p.Root()
	require.NoError(t, err)
	require.Same(t, scan, root)
	require.Equal(t, 1, p.Len())
}

func TestMergeFilters(t *testing.T) {
	table := logical.NewMakeTable(testTable(t))
	p := buildPlan(t, logical.NewFilter(logical.NewFilter(table, gt("a", 1)), gt("b", 10)))

	runPass(t, p, newOptimization("merge", p).withRules(&mergeFilters{plan: p}))

	nodes := chain(t, p)
	require.Equal(t, []NodeType{NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
	filter := nodes[0].(*Filter)
	require.Len(t, filter.Predicates, 2)
	require.Equal(t, `GT(col("b"), 10)`, filter.Predicates[0].String())
	require.Equal(t, `GT(col("a"), 1)`, filter.Predicates[1].String())
}

func TestPredicatePushdown(t *testing.T) {
	src := testTable(t)

	t.Run("moves below sorts", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		sorted := logical.NewSort(table, []logical.Expr{col("a")}, nil, false)
		p := buildPlan(t, logical.NewFilter(sorted, gt("a", 2)))

		runPass(t, p, predicatePass(p))

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeSort, NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
		require.Equal(t, `GT(col("a"), 2)`, nodes[1].(*Filter).Predicates[0].String())
	})

	t.Run("crosses extended columns", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		extended := logical.NewWithColumns(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, col("b"), lit(t, int64(2))), "b2"),
		})
		p := buildPlan(t, logical.NewFilter(extended, gt("a", 1)))

		runPass(t, p, predicatePass(p))

		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("blocked by replaced columns", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		extended := logical.NewWithColumns(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, col("a"), lit(t, int64(2))), "a"),
		})
		p := buildPlan(t, logical.NewFilter(extended, gt("a", 1)))

		runPass(t, p, predicatePass(p))

		require.Equal(t, []NodeType{NodeTypeFilter, NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("follows renames through selects", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		selected := logical.NewProjection(table, []logical.Expr{alias(col("a"), "x"), col("b")})
		p := buildPlan(t, logical.NewFilter(selected, gt("x", 2)))

		runPass(t, p, predicatePass(p))

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
		require.Equal(t, `GT(col("a"), 2)`, nodes[1].(*Filter).Predicates[0].String())
	})

	t.Run("length-sensitive predicates stay put", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		sorted := logical.NewSort(table, []logical.Expr{col("a")}, nil, false)
		pred := &logical.BinaryExpr{
			Op:    types.BinOpKindGt,
			Left:  logical.NewFunction(types.FunctionKindCumSum, []logical.Expr{col("a")}),
			Right: lit(t, int64(3)),
		}
		p := buildPlan(t, logical.NewFilter(sorted, pred))

		runPass(t, p, predicatePass(p))

		require.Equal(t, []NodeType{NodeTypeFilter, NodeTypeSort, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("stops at row limits", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewFilter(logical.NewSlice(table, 0, 2), gt("a", 1)))

		runPass(t, p, predicatePass(p))

		require.Equal(t, []NodeType{NodeTypeFilter, NodeTypeLimit, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("enters the left join side", func(t *testing.T) {
		left := logical.NewMakeTable(src)
		right := logical.NewMakeTable(src)
		joined := logical.NewJoin(left, right, []logical.Expr{col("a")}, []logical.Expr{col("a")}, logical.JoinTypeLeft)
		p := buildPlan(t, logical.NewFilter(joined, gt("b", 15)))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeHashJoin, root.Type())
		children := p.Children(root)
		require.Equal(t, NodeTypeFilter, children[0].Type())
		require.Equal(t, NodeTypeTableScan, children[1].Type())
		require.Equal(t, `GT(col("b"), 15)`, children[0].(*Filter).Predicates[0].String())
	})

	t.Run("right side crosses inner joins unmapped", func(t *testing.T) {
		left := logical.NewMakeTable(src)
		right := logical.NewMakeTable(src)
		joined := logical.NewJoin(left, right, []logical.Expr{col("a")}, []logical.Expr{col("a")}, logical.JoinTypeInner)
		p := buildPlan(t, logical.NewFilter(joined, gt("b_right", 15)))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeHashJoin, root.Type())
		children := p.Children(root)
		require.Equal(t, NodeTypeTableScan, children[0].Type())
		require.Equal(t, NodeTypeFilter, children[1].Type())
		require.Equal(t, `GT(col("b"), 15)`, children[1].(*Filter).Predicates[0].String())
	})

	t.Run("right side stays above left joins", func(t *testing.T) {
		left := logical.NewMakeTable(src)
		right := logical.NewMakeTable(src)
		joined := logical.NewJoin(left, right, []logical.Expr{col("a")}, []logical.Expr{col("a")}, logical.JoinTypeLeft)
		p := buildPlan(t, logical.NewFilter(joined, gt("b_right", 15)))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeFilter, root.Type())
	})

	t.Run("self joins block both sides", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		joined := logical.NewJoin(table, table, []logical.Expr{col("a")}, []logical.Expr{col("a")}, logical.JoinTypeInner)
		p := buildPlan(t, logical.NewFilter(joined, gt("b", 15)))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeFilter, root.Type())
	})

	t.Run("crosses group keys", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		grouped := logical.NewAggregate(table,
			[]logical.Expr{col("g")},
			[]logical.Expr{alias(logical.NewAgg(types.AggKindSum, col("a")), "total")},
		)
		pred := &logical.BinaryExpr{Op: types.BinOpKindEq, Left: col("g"), Right: lit(t, "p")}
		p := buildPlan(t, logical.NewFilter(grouped, pred))

		runPass(t, p, predicatePass(p))

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeHashAggregate, NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
		require.Equal(t, `EQ(col("g"), "p")`, nodes[1].(*Filter).Predicates[0].String())
	})

	t.Run("aggregated outputs stay above", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		grouped := logical.NewAggregate(table,
			[]logical.Expr{col("g")},
			[]logical.Expr{alias(logical.NewAgg(types.AggKindSum, col("a")), "total")},
		)
		p := buildPlan(t, logical.NewFilter(grouped, gt("total", 5)))

		runPass(t, p, predicatePass(p))

		require.Equal(t, []NodeType{NodeTypeFilter, NodeTypeHashAggregate, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("copies into concat branches", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewFilter(logical.NewUnion([]logical.Plan{table, table}), gt("a", 2)))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeUnion, root.Type())
		for _, branch := range p.Children(root) {
			filter, ok := branch.(*Filter)
			require.True(t, ok)
			require.Equal(t, `GT(col("a"), 2)`, filter.Predicates[0].String())
		}
	})

	t.Run("shared nodes are left alone", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		sorted := logical.NewSort(table, []logical.Expr{col("a")}, nil, false)
		p := buildPlan(t, logical.NewUnion([]logical.Plan{
			logical.NewFilter(sorted, gt("a", 1)),
			sorted,
		}))

		runPass(t, p, predicatePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		children := p.Children(root)
		filter, ok := children[0].(*Filter)
		require.True(t, ok)
		require.Len(t, filter.Predicates, 1)
	})
}

func TestSlicePushdown(t *testing.T) {
	t.Run("merges into the scan", func(t *testing.T) {
		table := logical.NewMakeTable(testTable(t))
		p := buildPlan(t, logical.NewSlice(table, 0, 2))

		runPass(t, p, slicePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		scan, ok := root.(*TableScan)
		require.True(t, ok)
		require.Equal(t, int64(0), scan.Offset)
		require.Equal(t, int64(2), scan.Limit)
	})

	t.Run("stacked slices compose", func(t *testing.T) {
		table := logical.NewMakeTable(testTable(t))
		p := buildPlan(t, logical.NewSlice(logical.NewSlice(table, 2, 5), 1, 2))

		runPass(t, p, slicePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		scan, ok := root.(*TableScan)
		require.True(t, ok)
		require.Equal(t, int64(3), scan.Offset)
		require.Equal(t, int64(2), scan.Limit)
	})

	t.Run("crosses row-wise projections", func(t *testing.T) {
		table := logical.NewMakeTable(testTable(t))
		selected := logical.NewProjection(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, col("a"), lit(t, int64(2))), "x"),
		})
		p := buildPlan(t, logical.NewSlice(selected, 0, 2))

		runPass(t, p, slicePass(p))

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))
		require.Equal(t, int64(2), nodes[1].(*TableScan).Limit)
	})

	t.Run("blocked by sorts", func(t *testing.T) {
		table := logical.NewMakeTable(testTable(t))
		sorted := logical.NewSort(table, []logical.Expr{col("a")}, nil, false)
		p := buildPlan(t, logical.NewSlice(sorted, 0, 2))

		runPass(t, p, slicePass(p))

		require.Equal(t, []NodeType{NodeTypeLimit, NodeTypeSort, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("blocked by length-sensitive projections", func(t *testing.T) {
		table := logical.NewMakeTable(testTable(t))
		selected := logical.NewProjection(table, []logical.Expr{
			logical.NewFunction(types.FunctionKindCumSum, []logical.Expr{col("a")}),
		})
		p := buildPlan(t, logical.NewSlice(selected, 0, 2))

		runPass(t, p, slicePass(p))

		require.Equal(t, []NodeType{NodeTypeLimit, NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("bounds concat branches", func(t *testing.T) {
		union := logical.NewUnion([]logical.Plan{
			logical.NewMakeTable(testTable(t)),
			logical.NewMakeTable(testTable(t)),
		})
		p := buildPlan(t, logical.NewSlice(union, 0, 2))

		runPass(t, p, slicePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeLimit, root.Type())
		union2 := p.Children(root)[0]
		require.Equal(t, NodeTypeUnion, union2.Type())
		for _, branch := range p.Children(union2) {
			scan, ok := branch.(*TableScan)
			require.True(t, ok)
			require.Equal(t, int64(2), scan.Limit)
		}
	})

	t.Run("offset slices keep concat intact", func(t *testing.T) {
		union := logical.NewUnion([]logical.Plan{
			logical.NewMakeTable(testTable(t)),
			logical.NewMakeTable(testTable(t)),
		})
		p := buildPlan(t, logical.NewSlice(union, 1, 2))

		runPass(t, p, slicePass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeLimit, root.Type())
		for _, branch := range p.Children(p.Children(root)[0]) {
			scan, ok := branch.(*TableScan)
			require.True(t, ok)
			require.Equal(t, int64(-1), scan.Limit)
		}
	})
}

func TestComposeSlice(t *testing.T) {
	for _, tt := range []struct {
		offset, limit int64
		skip, fetch   int64
		wantOffset    int64
		wantLimit     int64
	}{
		{0, -1, 2, 5, 2, 5},
		{2, 5, 1, 2, 3, 2},
		{2, 5, 4, -1, 6, 1},
		{2, 5, 7, 3, 9, 0},
		{0, -1, 0, -1, 0, -1},
		{5, -1, 3, 2, 8, 2},
	} {
		gotOffset, gotLimit := composeSlice(tt.offset, tt.limit, tt.skip, tt.fetch)
		require.Equal(t, tt.wantOffset, gotOffset)
		require.Equal(t, tt.wantLimit, gotLimit)
	}
}

func TestSimplifyExpressions(t *testing.T) {
	src := testTable(t)
	isNullA := &logical.UnaryExpr{Op: types.UnaryOpKindIsNull, Input: col("a")}

	for _, tt := range []struct {
		name string
		expr logical.Expr
		want string
	}{
		{
			name: "constant arithmetic folds",
			expr: binary(types.BinOpKindAdd, lit(t, int64(2)), lit(t, int64(3))),
			want: "5",
		},
		{
			name: "constant comparison folds",
			expr: binary(types.BinOpKindGt, lit(t, int64(3)), lit(t, int64(2))),
			want: "true",
		},
		{
			name: "null comparison yields null",
			expr: binary(types.BinOpKindGt,
				logical.NewTypedLiteral(types.NewTypedLiteral(types.Int64, nil)),
				lit(t, int64(2))),
			want: "null",
		},
		{
			name: "true conjunct drops away",
			expr: binary(types.BinOpKindAnd, lit(t, true), isNullA),
			want: `IS_NULL(col("a"))`,
		},
		{
			name: "false conjunct wins",
			expr: binary(types.BinOpKindAnd, lit(t, false), isNullA),
			want: "false",
		},
		{
			name: "true disjunct wins",
			expr: binary(types.BinOpKindOr, isNullA, lit(t, true)),
			want: "true",
		},
		{
			name: "double negation cancels",
			expr: &logical.UnaryExpr{Op: types.UnaryOpKindNot, Input: &logical.UnaryExpr{Op: types.UnaryOpKindNot, Input: isNullA}},
			want: `IS_NULL(col("a"))`,
		},
		{
			name: "literal branch selection",
			expr: &logical.TernaryExpr{
				Predicate: binary(types.BinOpKindGt, lit(t, int64(3)), lit(t, int64(2))),
				Truthy:    col("a"),
				Falsy:     col("b"),
			},
			want: `col("a")`,
		},
		{
			name: "literal casts fold",
			expr: &logical.CastExpr{Input: lit(t, int64(1)), To: types.Float64},
			want: "1",
		},
		{
			name: "floored division by zero is null",
			expr: binary(types.BinOpKindFloorDiv, lit(t, int64(7)), lit(t, int64(0))),
			want: "null",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			table := logical.NewMakeTable(src)
			p := buildPlan(t, logical.NewProjection(table, []logical.Expr{alias(tt.expr, "out")}))

			runPass(t, p, simplifyPass(p))

			root, err := p.Root()
			require.NoError(t, err)
			proj := root.(*Projection)
			require.Equal(t, tt.want, proj.Columns[0].Expression.String())
		})
	}

	t.Run("tautological filters disappear", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		pred := binary(types.BinOpKindGt, lit(t, int64(3)), lit(t, int64(2)))
		p := buildPlan(t, logical.NewFilter(table, pred))

		runPass(t, p, simplifyPass(p))

		root, err := p.Root()
		require.NoError(t, err)
		require.Equal(t, NodeTypeTableScan, root.Type())
	})
}

func TestPushProjections(t *testing.T) {
	src := testTable(t)

	t.Run("narrows scans to referenced columns", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{col("a")}))

		pushProjections(p)
		refreshSchemas(p)

		nodes := chain(t, p)
		scan := nodes[1].(*TableScan)
		require.Equal(t, []string{"a"}, scan.Projections)
		require.Equal(t, []string{"a"}, scan.Schema().Names())
	})

	t.Run("keeps filter and sort dependencies", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		filtered := logical.NewFilter(table, gt("b", 10))
		sorted := logical.NewSort(filtered, []logical.Expr{col("f")}, nil, false)
		p := buildPlan(t, logical.NewProjection(sorted, []logical.Expr{col("a")}))

		pushProjections(p)
		refreshSchemas(p)

		nodes := chain(t, p)
		scan := nodes[3].(*TableScan)
		require.Equal(t, []string{"a", "b", "f"}, scan.Projections)
	})

	t.Run("keeps one column for literal-only queries", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{lit(t, int64(1))}))

		pushProjections(p)
		refreshSchemas(p)

		nodes := chain(t, p)
		scan := nodes[1].(*TableScan)
		require.Equal(t, []string{"a"}, scan.Projections)
	})

	t.Run("leaves full-width scans alone", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{logical.NewWildcard()}))

		pushProjections(p)
		refreshSchemas(p)

		nodes := chain(t, p)
		scan := nodes[1].(*TableScan)
		require.Nil(t, scan.Projections)
		require.Equal(t, []string{"a", "b", "f", "s", "g"}, scan.Schema().Names())
	})

	t.Run("narrows each join side separately", func(t *testing.T) {
		left := logical.NewMakeTable(src)
		right := logical.NewMakeTable(src)
		joined := logical.NewJoin(left, right, []logical.Expr{col("a")}, []logical.Expr{col("a")}, logical.JoinTypeInner)
		p := buildPlan(t, logical.NewProjection(joined, []logical.Expr{col("b"), col("f_right")}))

		pushProjections(p)
		refreshSchemas(p)

		root, err := p.Root()
		require.NoError(t, err)
		join := p.Children(root)[0]
		children := p.Children(join)
		require.Equal(t, []string{"a", "b"}, children[0].(*TableScan).Projections)
		require.Equal(t, []string{"a", "f"}, children[1].(*TableScan).Projections)
		require.Equal(t, []string{"b", "f_right"}, root.Schema().Names())
	})
}

func TestEliminateCommonSubplans(t *testing.T) {
	src := testTable(t)

	t.Run("identical branches collapse behind one cache", func(t *testing.T) {
		// Two separately constructed but structurally equal branches.
		p := buildPlan(t, logical.NewUnion([]logical.Plan{
			logical.NewFilter(logical.NewMakeTable(src), gt("a", 1)),
			logical.NewFilter(logical.NewMakeTable(src), gt("a", 1)),
		}))

		eliminateCommonSubplans(p)

		scans, filters, caches := countNodes(p)
		require.Equal(t, 1, scans)
		require.Equal(t, 1, filters)
		require.Equal(t, 1, caches)

		root, err := p.Root()
		require.NoError(t, err)
		children := p.Children(root)
		require.Len(t, children, 2)
		require.Same(t, children[0], children[1])
		cache, ok := children[0].(*Cache)
		require.True(t, ok)
		require.Contains(t, cache.CacheID, "shared:")
		require.Equal(t, NodeTypeFilter, p.Children(cache)[0].Type())
	})

	t.Run("different predicates stay separate", func(t *testing.T) {
		p := buildPlan(t, logical.NewUnion([]logical.Plan{
			logical.NewFilter(logical.NewMakeTable(src), gt("a", 1)),
			logical.NewFilter(logical.NewMakeTable(src), gt("a", 2)),
		}))

		eliminateCommonSubplans(p)

		// The scans below the filters are still identical and shared once.
		scans, filters, caches := countNodes(p)
		require.Equal(t, 1, scans)
		require.Equal(t, 2, filters)
		require.Equal(t, 1, caches)
	})

	t.Run("distinct sources are never shared", func(t *testing.T) {
		p := buildPlan(t, logical.NewUnion([]logical.Plan{
			logical.NewFilter(logical.NewMakeTable(testTable(t)), gt("a", 1)),
			logical.NewFilter(logical.NewMakeTable(testTable(t)), gt("a", 1)),
		}))

		eliminateCommonSubplans(p)

		scans, filters, caches := countNodes(p)
		require.Equal(t, 2, scans)
		require.Equal(t, 2, filters)
		require.Equal(t, 0, caches)
	})

	t.Run("wrapping is idempotent", func(t *testing.T) {
		shared := logical.NewFilter(logical.NewMakeTable(src), gt("a", 1))
		p := buildPlan(t, logical.NewUnion([]logical.Plan{shared, shared}))

		eliminateCommonSubplans(p)
		eliminateCommonSubplans(p)

		_, _, caches := countNodes(p)
		require.Equal(t, 1, caches)
	})
}

func countNodes(p *Plan) (scans, filters, caches int) {
	for _, n := range p.Nodes() {
		switch n.(type) {
		case *TableScan:
			scans++
		case *Filter:
			filters++
		case *Cache:
			caches++
		}
	}
	return scans, filters, caches
}

func TestEliminateCommonSubexprs(t *testing.T) {
	src := testTable(t)
	sum := func() logical.Expr { return binary(types.BinOpKindAdd, col("a"), col("b")) }

	t.Run("factors repeated computations", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, sum(), lit(t, int64(2))), "x"),
			alias(binary(types.BinOpKindAdd, sum(), lit(t, int64(1))), "y"),
		}))

		eliminateCommonSubexprs(p)

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))

		lower := nodes[1].(*Projection)
		require.Equal(t, ProjectExtend, lower.Mode)
		require.Len(t, lower.Columns, 1)
		require.Equal(t, "__cse_0", lower.Columns[0].Name)
		require.Equal(t, `ADD(col("a"), col("b"))`, lower.Columns[0].Expression.String())

		upper := nodes[0].(*Projection)
		require.Equal(t, `MUL(col("__cse_0"), 2)`, upper.Columns[0].Expression.String())
		require.Equal(t, `ADD(col("__cse_0"), 1)`, upper.Columns[1].Expression.String())
	})

	t.Run("single occurrences stay inline", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, sum(), lit(t, int64(2))), "x"),
			alias(binary(types.BinOpKindMul, col("a"), lit(t, int64(2))), "y"),
		}))

		eliminateCommonSubexprs(p)

		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))
	})

	t.Run("nested repeats factor once", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		doubled := func() logical.Expr {
			return binary(types.BinOpKindMul, sum(), lit(t, int64(2)))
		}
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{
			alias(doubled(), "x"),
			alias(binary(types.BinOpKindAdd, doubled(), lit(t, int64(1))), "y"),
		}))

		eliminateCommonSubexprs(p)

		nodes := chain(t, p)
		lower := nodes[1].(*Projection)
		require.Len(t, lower.Columns, 1)
		require.Equal(t, `MUL(ADD(col("a"), col("b")), 2)`, lower.Columns[0].Expression.String())

		upper := nodes[0].(*Projection)
		require.Equal(t, `col("__cse_0")`, upper.Columns[0].Expression.String())
		require.Equal(t, `ADD(col("__cse_0"), 1)`, upper.Columns[1].Expression.String())
	})

	t.Run("aggregations are not hoisted", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		mean := func() logical.Expr { return logical.NewAgg(types.AggKindMean, col("f")) }
		p := buildPlan(t, logical.NewProjection(table, []logical.Expr{
			alias(binary(types.BinOpKindSub, col("f"), mean()), "x"),
			alias(binary(types.BinOpKindDiv, col("f"), mean()), "y"),
		}))

		eliminateCommonSubexprs(p)

		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeTableScan}, chainTypes(t, p))
	})
}

func TestOptimize(t *testing.T) {
	src := testTable(t)

	t.Run("full pipeline", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		extended := logical.NewWithColumns(table, []logical.Expr{
			alias(binary(types.BinOpKindMul, col("b"), lit(t, int64(2))), "b2"),
		})
		pred := binary(types.BinOpKindAnd, gt("a", 1), lit(t, true))
		sorted := logical.NewSort(logical.NewFilter(extended, pred), []logical.Expr{col("b2")}, nil, false)
		p := buildPlan(t, logical.NewSlice(sorted, 0, 3))

		Optimize(p, DefaultFlags())

		nodes := chain(t, p)
		require.Equal(t, []NodeType{
			NodeTypeLimit, NodeTypeSort, NodeTypeProjection, NodeTypeFilter, NodeTypeTableScan,
		}, chainTypes(t, p))
		filter := nodes[3].(*Filter)
		require.Len(t, filter.Predicates, 1)
		require.Equal(t, `GT(col("a"), 1)`, filter.Predicates[0].String())
	})

	t.Run("schemas follow narrowed scans", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		filtered := logical.NewFilter(table, gt("b", 10))
		p := buildPlan(t, logical.NewProjection(filtered, []logical.Expr{col("a")}))

		Optimize(p, DefaultFlags())

		nodes := chain(t, p)
		require.Equal(t, []NodeType{NodeTypeProjection, NodeTypeFilter, NodeTypeTableScan}, chainTypes(t, p))
		require.Equal(t, []string{"a", "b"}, nodes[2].(*TableScan).Projections)
		require.Equal(t, []string{"a", "b"}, nodes[1].Schema().Names())
		require.Equal(t, []string{"a"}, nodes[0].Schema().Names())
	})

	t.Run("disabled flags leave the plan alone", func(t *testing.T) {
		table := logical.NewMakeTable(src)
		sorted := logical.NewSort(table, []logical.Expr{col("a")}, nil, false)
		p := buildPlan(t, logical.NewFilter(sorted, gt("a", 2)))
		before := PrintAsTree(p)

		out := Optimize(p, OptimizationFlags{TypeCoercion: true})

		require.Same(t, p, out)
		require.Equal(t, before, PrintAsTree(p))
	})
}
