package executor

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
	"github.com/AmirulAndalib/polars/internal/util/arrowtest"
)

func fn(op types.FunctionKind, opts logical.FunctionOptions, inputs ...logical.Expr) logical.Expr {
	e := logical.NewFunction(op, inputs)
	e.Options = opts
	return e
}

func TestFunctions(t *testing.T) {
	intSchema := arrow.NewSchema([]arrow.Field{field("v", types.Int64)}, nil)
	intData := arrowtest.Rows{
		{"v": int64(10)},
		{"v": nil},
		{"v": int64(30)},
		{"v": int64(40)},
	}

	t.Run("cum_count skips nulls and never yields null", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindCumCount, logical.FunctionOptions{}, col("v")))
		require.Equal(t, []any{uint64(1), uint64(1), uint64(2), uint64(3)}, got)
	})

	t.Run("cum_count reversed counts from the end", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindCumCount, logical.FunctionOptions{Reverse: true}, col("v")))
		require.Equal(t, []any{uint64(3), uint64(2), uint64(2), uint64(1)}, got)
	})

	t.Run("cum_sum keeps nulls without resetting", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindCumSum, logical.FunctionOptions{}, col("v")))
		require.Equal(t, []any{int64(10), nil, int64(40), int64(80)}, got)
	})

	t.Run("cum_sum reversed", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindCumSum, logical.FunctionOptions{Reverse: true}, col("v")))
		require.Equal(t, []any{int64(80), nil, int64(70), int64(40)}, got)
	})

	t.Run("cum_sum of booleans counts true values", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("b", types.Bool)}, nil)
		data := arrowtest.Rows{
			{"b": true},
			{"b": false},
			{"b": true},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCumSum, logical.FunctionOptions{}, col("b")))
		require.Equal(t, []any{uint64(1), uint64(1), uint64(2)}, got)
	})

	t.Run("head and tail shorten the column", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindHead, logical.FunctionOptions{N: 2}, col("v")))
		require.Equal(t, []any{int64(10), nil}, got)

		got = selectOne(t, intSchema, intData,
			fn(types.FunctionKindTail, logical.FunctionOptions{N: 2}, col("v")))
		require.Equal(t, []any{int64(30), int64(40)}, got)
	})

	t.Run("head beyond the column keeps everything", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindHead, logical.FunctionOptions{N: 100}, col("v")))
		require.Len(t, got, 4)
	})

	t.Run("head of zero rows", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindHead, logical.FunctionOptions{N: 0}, col("v")))
		require.Empty(t, got)
	})

	t.Run("negative head fails", func(t *testing.T) {
		err := selectOneErr(t, intSchema, intData,
			fn(types.FunctionKindHead, logical.FunctionOptions{N: -1}, col("v")))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
	})

	t.Run("shortened column cannot mix with full columns", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", intSchema, intData)
		_, err := tryCollect(t, alloc, logical.NewProjection(table, []logical.Expr{
			alias(fn(types.FunctionKindHead, logical.FunctionOptions{N: 2}, col("v")), "top"),
			col("v"),
		}))
		require.ErrorIs(t, err, errors.ErrShape)
	})

	t.Run("reverse expression flips the column", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			fn(types.FunctionKindReverse, logical.FunctionOptions{}, col("v")))
		require.Equal(t, []any{int64(40), int64(30), nil, int64(10)}, got)
	})

	t.Run("from_epoch seconds scale to microseconds", func(t *testing.T) {
		got := selectOne(t, intSchema, arrowtest.Rows{{"v": int64(3)}, {"v": nil}},
			fn(types.FunctionKindFromEpoch, logical.FunctionOptions{Unit: "s"}, col("v")))
		require.Equal(t, []any{int64(3_000_000), nil}, got)
	})

	t.Run("from_epoch milliseconds reinterpret the ticks", func(t *testing.T) {
		got := selectOne(t, intSchema, arrowtest.Rows{{"v": int64(1_500)}},
			fn(types.FunctionKindFromEpoch, logical.FunctionOptions{Unit: "ms"}, col("v")))
		require.Equal(t, []any{int64(1_500)}, got)
	})

	t.Run("from_epoch days produce dates", func(t *testing.T) {
		got := selectOne(t, intSchema, arrowtest.Rows{{"v": int64(10)}},
			fn(types.FunctionKindFromEpoch, logical.FunctionOptions{Unit: "d"}, col("v")))
		require.Equal(t, []any{int64(10)}, got)
	})

	t.Run("from_epoch rejects unknown units", func(t *testing.T) {
		err := selectOneErr(t, intSchema, intData,
			fn(types.FunctionKindFromEpoch, logical.FunctionOptions{Unit: "h"}, col("v")))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
	})

	t.Run("from_epoch rejects non-integer columns", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		err := selectOneErr(t, schema, arrowtest.Rows{{"s": "x"}},
			fn(types.FunctionKindFromEpoch, logical.FunctionOptions{Unit: "s"}, col("s")))
		require.ErrorIs(t, err, errors.ErrCompute)
	})

	t.Run("arctan2 takes y then x", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("y", types.Float64),
			field("x", types.Float64),
		}, nil)
		data := arrowtest.Rows{
			{"y": 1.0, "x": 1.0},
			{"y": 1.0, "x": 0.0},
			{"y": nil, "x": 1.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindArcTan2, logical.FunctionOptions{}, col("y"), col("x")))
		require.InDelta(t, math.Pi/4, got[0].(float64), 1e-12)
		require.InDelta(t, math.Pi/2, got[1].(float64), 1e-12)
		require.Equal(t, nil, got[2])
	})

	t.Run("arctan2 casts integer inputs to float", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("y", types.Int64),
			field("x", types.Int64),
		}, nil)
		got := selectOne(t, schema, arrowtest.Rows{{"y": int64(0), "x": int64(1)}},
			fn(types.FunctionKindArcTan2, logical.FunctionOptions{}, col("y"), col("x")))
		require.Equal(t, []any{0.0}, got)
	})
}

func TestCorrelation(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("x", types.Float64),
		field("y", types.Float64),
	}, nil)

	t.Run("pearson of a perfect linear relation", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 2.0},
			{"x": 2.0, "y": 4.0},
			{"x": 3.0, "y": 6.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "pearson"}, col("x"), col("y")))
		require.InDelta(t, 1.0, got[0].(float64), 1e-12)
	})

	t.Run("pearson of an inverse relation", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 6.0},
			{"x": 2.0, "y": 4.0},
			{"x": 3.0, "y": 2.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "pearson"}, col("x"), col("y")))
		require.InDelta(t, -1.0, got[0].(float64), 1e-12)
	})

	t.Run("pearson of an imperfect relation", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 1.0},
			{"x": 2.0, "y": 2.0},
			{"x": 3.0, "y": 4.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "pearson"}, col("x"), col("y")))
		require.InDelta(t, 3.0/math.Sqrt(2.0*14.0/3.0), got[0].(float64), 1e-12)
	})

	t.Run("spearman sees monotone relations as perfect", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 1.0},
			{"x": 2.0, "y": 10.0},
			{"x": 3.0, "y": 100.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "spearman"}, col("x"), col("y")))
		require.InDelta(t, 1.0, got[0].(float64), 1e-12)
	})

	t.Run("spearman averages tied ranks", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 1.0},
			{"x": 2.0, "y": 2.0},
			{"x": 2.0, "y": 3.0},
			{"x": 3.0, "y": 4.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "spearman"}, col("x"), col("y")))
		require.InDelta(t, math.Sqrt(0.9), got[0].(float64), 1e-12)
	})

	t.Run("rows with a null on either side drop out", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 2.0},
			{"x": 2.0, "y": nil},
			{"x": nil, "y": 8.0},
			{"x": 3.0, "y": 6.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "pearson"}, col("x"), col("y")))
		require.InDelta(t, 1.0, got[0].(float64), 1e-12)
	})

	t.Run("no valid pairs yields null", func(t *testing.T) {
		data := arrowtest.Rows{{"x": nil, "y": 1.0}}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "pearson"}, col("x"), col("y")))
		require.Equal(t, []any{nil}, got)
	})

	t.Run("unknown method fails", func(t *testing.T) {
		data := arrowtest.Rows{{"x": 1.0, "y": 1.0}}
		err := selectOneErr(t, schema, data,
			fn(types.FunctionKindCorr, logical.FunctionOptions{Method: "kendall"}, col("x"), col("y")))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
	})

	t.Run("covariance honors ddof", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0, "y": 2.0},
			{"x": 2.0, "y": 4.0},
			{"x": 3.0, "y": 6.0},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCov, logical.FunctionOptions{Ddof: 1}, col("x"), col("y")))
		require.InDelta(t, 2.0, got[0].(float64), 1e-12)

		got = selectOne(t, schema, data,
			fn(types.FunctionKindCov, logical.FunctionOptions{Ddof: 0}, col("x"), col("y")))
		require.InDelta(t, 4.0/3.0, got[0].(float64), 1e-12)
	})

	t.Run("covariance with too few pairs yields null", func(t *testing.T) {
		data := arrowtest.Rows{{"x": 1.0, "y": 2.0}}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindCov, logical.FunctionOptions{Ddof: 1}, col("x"), col("y")))
		require.Equal(t, []any{nil}, got)
	})
}

func TestArgSortBy(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("a", types.Int64),
		field("b", types.Int64),
	}, nil)

	t.Run("single key", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(3), "b": int64(0)},
			{"a": int64(1), "b": int64(0)},
			{"a": int64(2), "b": int64(0)},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindArgSortBy, logical.FunctionOptions{}, col("a")))
		require.Equal(t, []any{uint64(1), uint64(2), uint64(0)}, got)
	})

	t.Run("descending", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(3), "b": int64(0)},
			{"a": int64(1), "b": int64(0)},
			{"a": int64(2), "b": int64(0)},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindArgSortBy, logical.FunctionOptions{Descending: []bool{true}}, col("a")))
		require.Equal(t, []any{uint64(0), uint64(2), uint64(1)}, got)
	})

	t.Run("two keys with mixed directions", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(1), "b": int64(3)},
			{"a": int64(1), "b": int64(5)},
			{"a": int64(2), "b": int64(1)},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindArgSortBy, logical.FunctionOptions{Descending: []bool{false, true}},
				col("a"), col("b")))
		require.Equal(t, []any{uint64(1), uint64(0), uint64(2)}, got)
	})

	t.Run("nulls rank first", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(2), "b": int64(0)},
			{"a": nil, "b": int64(0)},
			{"a": int64(1), "b": int64(0)},
		}
		got := selectOne(t, schema, data,
			fn(types.FunctionKindArgSortBy, logical.FunctionOptions{}, col("a")))
		require.Equal(t, []any{uint64(1), uint64(2), uint64(0)}, got)
	})

	t.Run("descending flags must match the key count", func(t *testing.T) {
		data := arrowtest.Rows{{"a": int64(1), "b": int64(2)}}
		err := selectOneErr(t, schema, data,
			fn(types.FunctionKindArgSortBy, logical.FunctionOptions{Descending: []bool{true, false, true}},
				col("a"), col("b")))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
	})
}

func TestFillNull(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("v", types.Int64),
		field("alt", types.Int64),
	}, nil)
	data := arrowtest.Rows{
		{"v": int64(1), "alt": int64(9)},
		{"v": nil, "alt": int64(8)},
		{"v": int64(3), "alt": nil},
	}

	t.Run("scalar fill", func(t *testing.T) {
		got := selectOne(t, schema, data,
			fn(types.FunctionKindFillNull, logical.FunctionOptions{}, col("v"), lit(int64(0))))
		require.Equal(t, []any{int64(1), int64(0), int64(3)}, got)
	})

	t.Run("column fill", func(t *testing.T) {
		got := selectOne(t, schema, data,
			fn(types.FunctionKindFillNull, logical.FunctionOptions{}, col("v"), col("alt")))
		require.Equal(t, []any{int64(1), int64(8), int64(3)}, got)
	})

	t.Run("null fill values stay null", func(t *testing.T) {
		got := selectOne(t, schema, arrowtest.Rows{{"v": nil, "alt": nil}},
			fn(types.FunctionKindFillNull, logical.FunctionOptions{}, col("v"), col("alt")))
		require.Equal(t, []any{nil}, got)
	})

	t.Run("fill value coerces to a common type", func(t *testing.T) {
		got := selectOne(t, schema, data,
			fn(types.FunctionKindFillNull, logical.FunctionOptions{}, col("v"), lit(0.5)))
		require.Equal(t, []any{1.0, 0.5, 3.0}, got)
	})
}
