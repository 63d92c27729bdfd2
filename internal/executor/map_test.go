package executor

import (
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/arrowtest"
)

func retType(dt types.DataType) *types.DataType { return &dt }

// sumBatch reduces the first column to a single-row total, skipping nulls.
func sumBatch(alloc memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
	vals, ok := cols[0].(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("expected int64 column, got %s", cols[0].DataType())
	}
	var total int64
	for i := 0; i < vals.Len(); i++ {
		if vals.IsNull(i) {
			continue
		}
		total += vals.Value(i)
	}
	b := array.NewInt64Builder(alloc)
	defer b.Release()
	b.Append(total)
	return b.NewArray(), nil
}

func TestMapBatches(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("a", types.Int64),
		field("b", types.Int64),
	}, nil)
	data := arrowtest.Rows{
		{"a": int64(1), "b": int64(10)},
		{"a": int64(2), "b": int64(20)},
		{"a": nil, "b": int64(30)},
	}

	t.Run("batch function sees whole aligned columns", func(t *testing.T) {
		addFn := func(alloc memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			return AddArrays(alloc, cols[0], cols[1])
		}
		got := selectOne(t, schema, data, &logical.MapExpr{
			Mode:    logical.MapModeBatches,
			Inputs:  []logical.Expr{col("a"), col("b")},
			BatchFn: addFn,
		})
		require.Equal(t, []any{int64(11), int64(22), nil}, got)
	})

	t.Run("declared return dtype casts the result", func(t *testing.T) {
		got := selectOne(t, schema, data, &logical.MapExpr{
			Mode:        logical.MapModeBatches,
			Inputs:      []logical.Expr{col("a")},
			BatchFn:     sumBatch,
			ReturnDtype: retType(types.Float64),
		})
		require.Equal(t, []any{3.0}, got)
	})

	t.Run("result that cannot cast to the declared dtype fails", func(t *testing.T) {
		tagFn := func(alloc memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			b := array.NewStringBuilder(alloc)
			defer b.Release()
			for i := 0; i < cols[0].Len(); i++ {
				b.Append("x")
			}
			return b.NewArray(), nil
		}
		err := selectOneErr(t, schema, data, &logical.MapExpr{
			Mode:        logical.MapModeBatches,
			Inputs:      []logical.Expr{col("a")},
			BatchFn:     tagFn,
			ReturnDtype: retType(types.Int64),
		})
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "strict conversion")
	})

	t.Run("batch function errors surface as compute errors", func(t *testing.T) {
		failFn := func(memory.Allocator, []arrow.Array) (arrow.Array, error) {
			return nil, fmt.Errorf("bad batch")
		}
		err := selectOneErr(t, schema, data, &logical.MapExpr{
			Mode:    logical.MapModeBatches,
			Inputs:  []logical.Expr{col("a")},
			BatchFn: failFn,
		})
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "map function")
		require.ErrorContains(t, err, "bad batch")
	})

	t.Run("single-row result broadcasts against full columns", func(t *testing.T) {
		alloc := checkedAllocator(t)

		table := memTable(t, alloc, "t", schema, data)
		plan := logical.NewProjection(table, []logical.Expr{
			col("a"),
			alias(&logical.MapExpr{
				Mode:    logical.MapModeBatches,
				Inputs:  []logical.Expr{col("a")},
				BatchFn: sumBatch,
			}, "total"),
		})

		got := collect(t, alloc, plan)
		require.Equal(t, arrowtest.Rows{
			{"a": int64(1), "total": int64(3)},
			{"a": int64(2), "total": int64(3)},
			{"a": nil, "total": int64(3)},
		}, got)
	})

	t.Run("agg_list packs the whole column into one list value", func(t *testing.T) {
		countList := func(alloc memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			list, ok := cols[0].(*array.List)
			if !ok {
				return nil, fmt.Errorf("expected list column, got %s", cols[0].DataType())
			}
			b := array.NewInt64Builder(alloc)
			defer b.Release()
			b.Append(int64(list.ListValues().Len()))
			return b.NewArray(), nil
		}
		got := selectOne(t, schema, data, &logical.MapExpr{
			Mode:    logical.MapModeBatches,
			Inputs:  []logical.Expr{col("a")},
			BatchFn: countList,
			AggList: true,
		})
		require.Equal(t, []any{int64(3)}, got)
	})

	t.Run("empty input list fails", func(t *testing.T) {
		err := selectOneErr(t, schema, data, &logical.MapExpr{
			Mode:    logical.MapModeBatches,
			BatchFn: sumBatch,
		})
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
		require.ErrorContains(t, err, "requires at least one input")
	})
}

func TestMapElements(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{field("v", types.Int64)}, nil)
	data := arrowtest.Rows{
		{"v": int64(1)},
		{"v": nil},
		{"v": int64(3)},
	}

	elements := func(fn logical.ElementFunction, opts func(*logical.MapExpr)) logical.Expr {
		e := &logical.MapExpr{
			Mode:      logical.MapModeElements,
			Inputs:    []logical.Expr{col("v")},
			ElemFn:    fn,
			SkipNulls: true,
			Strategy:  logical.StrategyThreadLocal,
		}
		if opts != nil {
			opts(e)
		}
		return e
	}

	t.Run("element function maps each row", func(t *testing.T) {
		times10 := func(call logical.ElementCall) (any, error) {
			return call.Value.(int64) * 10, nil
		}
		got := selectOne(t, schema, data, elements(times10, nil))
		require.Equal(t, []any{int64(10), nil, int64(30)}, got)
	})

	t.Run("skip_nulls false invokes the function on every row", func(t *testing.T) {
		constant := func(logical.ElementCall) (any, error) { return int64(7), nil }
		got := selectOne(t, schema, data, elements(constant, func(e *logical.MapExpr) {
			e.SkipNulls = false
		}))
		require.Equal(t, []any{int64(7), int64(7), int64(7)}, got)
	})

	t.Run("declared dtype guides the output column", func(t *testing.T) {
		times10 := func(call logical.ElementCall) (any, error) {
			return call.Value.(int64) * 10, nil
		}
		got := selectOne(t, schema, data, elements(times10, func(e *logical.MapExpr) {
			e.ReturnDtype = retType(types.Float64)
		}))
		require.Equal(t, []any{10.0, nil, 30.0}, got)
	})

	t.Run("output type inferred from first non-null result", func(t *testing.T) {
		halve := func(call logical.ElementCall) (any, error) {
			v := call.Value.(int64)
			if v == 1 {
				return nil, nil
			}
			return float64(v) / 2, nil
		}
		got := selectOne(t, schema, data, elements(halve, nil))
		require.Equal(t, []any{nil, nil, 1.5}, got)
	})

	t.Run("all-null results produce a null column", func(t *testing.T) {
		drop := func(logical.ElementCall) (any, error) { return nil, nil }
		got := selectOne(t, schema, data, elements(drop, nil))
		require.Equal(t, []any{nil, nil, nil}, got)
	})

	t.Run("ints widen into an inferred float column", func(t *testing.T) {
		mixed := func(call logical.ElementCall) (any, error) {
			if call.Value.(int64) == 1 {
				return 1.5, nil
			}
			return int64(2), nil
		}
		got := selectOne(t, schema, data, elements(mixed, nil))
		require.Equal(t, []any{1.5, nil, 2.0}, got)
	})

	t.Run("inconsistent result types fail", func(t *testing.T) {
		mixed := func(call logical.ElementCall) (any, error) {
			if call.Value.(int64) == 1 {
				return int64(1), nil
			}
			return "x", nil
		}
		err := selectOneErr(t, schema, data, elements(mixed, nil))
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "does not fit output dtype")
	})

	t.Run("element function errors surface as compute errors", func(t *testing.T) {
		failFn := func(logical.ElementCall) (any, error) {
			return nil, fmt.Errorf("bad element")
		}
		err := selectOneErr(t, schema, data, elements(failFn, nil))
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "bad element")
	})

	t.Run("pass_name exposes the source column name", func(t *testing.T) {
		echoName := func(call logical.ElementCall) (any, error) { return call.Name, nil }
		got := selectOne(t, schema, data, elements(echoName, func(e *logical.MapExpr) {
			e.PassName = true
		}))
		require.Equal(t, []any{"v", nil, "v"}, got)
	})

	t.Run("threading strategy preserves row order", func(t *testing.T) {
		bigData := arrowtest.Rows{
			{"v": int64(1)}, {"v": int64(2)}, {"v": int64(3)},
			{"v": int64(4)}, {"v": int64(5)},
		}
		double := func(call logical.ElementCall) (any, error) {
			return call.Value.(int64) * 2, nil
		}
		got := selectOne(t, schema, bigData, elements(double, func(e *logical.MapExpr) {
			e.Strategy = logical.StrategyThreading
		}))
		require.Equal(t, []any{int64(2), int64(4), int64(6), int64(8), int64(10)}, got)
	})

	t.Run("unknown strategy fails", func(t *testing.T) {
		identity := func(call logical.ElementCall) (any, error) { return call.Value, nil }
		err := selectOneErr(t, schema, data, elements(identity, func(e *logical.MapExpr) {
			e.Strategy = "fleet"
		}))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
		require.ErrorContains(t, err, "strategy")
	})
}

func TestMapGroups(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("g", types.String),
		field("v", types.Int64),
	}, nil)
	data := arrowtest.Rows{
		{"g": "a", "v": int64(1)},
		{"g": "a", "v": int64(2)},
		{"g": "b", "v": int64(10)},
		{"g": "a", "v": int64(3)},
		{"g": "b", "v": nil},
	}

	t.Run("group function reduces each group to one row", func(t *testing.T) {
		alloc := checkedAllocator(t)

		table := memTable(t, alloc, "t", schema, data)
		plan := logical.NewAggregate(table, []logical.Expr{col("g")}, []logical.Expr{
			alias(&logical.MapExpr{
				Mode:          logical.MapModeGroups,
				Inputs:        []logical.Expr{col("v")},
				BatchFn:       sumBatch,
				ReturnsScalar: true,
			}, "total"),
		})

		got := collect(t, alloc, plan)
		require.Equal(t, arrowtest.Rows{
			{"g": "a", "total": int64(6)},
			{"g": "b", "total": int64(10)},
		}, got)
	})

	t.Run("whole column acts as one group outside aggregation", func(t *testing.T) {
		got := selectOne(t, schema, data, &logical.MapExpr{
			Mode:          logical.MapModeGroups,
			Inputs:        []logical.Expr{col("v")},
			BatchFn:       sumBatch,
			ReturnsScalar: true,
		})
		require.Equal(t, []any{int64(16)}, got)
	})

	t.Run("returns_scalar violation fails", func(t *testing.T) {
		identity := func(_ memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			cols[0].Retain()
			return cols[0], nil
		}
		err := selectOneErr(t, schema, data, &logical.MapExpr{
			Mode:          logical.MapModeGroups,
			Inputs:        []logical.Expr{col("v")},
			BatchFn:       identity,
			ReturnsScalar: true,
		})
		require.ErrorIs(t, err, errors.ErrCompute)
		require.ErrorContains(t, err, "returns_scalar")
	})

	t.Run("non-scalar group results implode into lists", func(t *testing.T) {
		alloc := checkedAllocator(t)

		identity := func(_ memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			cols[0].Retain()
			return cols[0], nil
		}
		table := memTable(t, alloc, "t", schema, data)
		plan := logical.NewAggregate(table, []logical.Expr{col("g")}, []logical.Expr{
			alias(&logical.MapExpr{
				Mode:    logical.MapModeGroups,
				Inputs:  []logical.Expr{col("v")},
				BatchFn: identity,
			}, "vs"),
		})

		got := collect(t, alloc, plan)
		require.Equal(t, arrowtest.Rows{
			{"g": "a", "vs": []any{int64(1), int64(2), int64(3)}},
			{"g": "b", "vs": []any{int64(10), nil}},
		}, got)
	})

	t.Run("agg_list packs each group into one list value", func(t *testing.T) {
		alloc := checkedAllocator(t)

		countList := func(alloc memory.Allocator, cols []arrow.Array) (arrow.Array, error) {
			list, ok := cols[0].(*array.List)
			if !ok {
				return nil, fmt.Errorf("expected list column, got %s", cols[0].DataType())
			}
			b := array.NewInt64Builder(alloc)
			defer b.Release()
			b.Append(int64(list.ListValues().Len()))
			return b.NewArray(), nil
		}
		table := memTable(t, alloc, "t", schema, data)
		plan := logical.NewAggregate(table, []logical.Expr{col("g")}, []logical.Expr{
			alias(&logical.MapExpr{
				Mode:          logical.MapModeGroups,
				Inputs:        []logical.Expr{col("v")},
				BatchFn:       countList,
				ReturnsScalar: true,
				AggList:       true,
			}, "n"),
		})

		got := collect(t, alloc, plan)
		require.Equal(t, arrowtest.Rows{
			{"g": "a", "n": int64(3)},
			{"g": "b", "n": int64(2)},
		}, got)
	})
}
