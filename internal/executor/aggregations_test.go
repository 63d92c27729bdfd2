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

func quantileAgg(input logical.Expr, q float64, interp string) logical.Expr {
	e := logical.NewAgg(types.AggKindQuantile, input)
	e.Quantile = q
	e.Interpolation = interp
	return e
}

func ddofAgg(op types.AggKind, input logical.Expr, ddof int) logical.Expr {
	e := logical.NewAgg(op, input)
	e.Ddof = ddof
	return e
}

func TestVerticalAggs(t *testing.T) {
	intSchema := arrow.NewSchema([]arrow.Field{field("v", types.Int64)}, nil)
	intData := arrowtest.Rows{
		{"v": int64(1)},
		{"v": int64(2)},
		{"v": nil},
		{"v": int64(3)},
	}
	floatSchema := arrow.NewSchema([]arrow.Field{field("x", types.Float64)}, nil)

	t.Run("sum ignores nulls", func(t *testing.T) {
		got := selectOne(t, intSchema, intData, agg(types.AggKindSum, col("v")))
		require.Equal(t, []any{int64(6)}, got)
	})

	t.Run("sum of all nulls is zero", func(t *testing.T) {
		data := arrowtest.Rows{{"v": nil}, {"v": nil}}
		got := selectOne(t, intSchema, data, agg(types.AggKindSum, col("v")))
		require.Equal(t, []any{int64(0)}, got)
	})

	t.Run("sum of booleans counts true values", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("b", types.Bool)}, nil)
		data := arrowtest.Rows{
			{"b": true},
			{"b": false},
			{"b": true},
			{"b": nil},
		}
		got := selectOne(t, schema, data, agg(types.AggKindSum, col("b")))
		require.Equal(t, []any{uint64(2)}, got)
	})

	t.Run("sum of unsigned widens to uint64", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("u", types.UInt32)}, nil)
		data := arrowtest.Rows{
			{"u": uint32(1)},
			{"u": uint32(2)},
		}
		got := selectOne(t, schema, data, agg(types.AggKindSum, col("u")))
		require.Equal(t, []any{uint64(3)}, got)
	})

	t.Run("mean ignores nulls", func(t *testing.T) {
		got := selectOne(t, intSchema, intData, agg(types.AggKindMean, col("v")))
		require.Equal(t, []any{2.0}, got)
	})

	t.Run("mean of all nulls is null", func(t *testing.T) {
		data := arrowtest.Rows{{"v": nil}}
		got := selectOne(t, intSchema, data, agg(types.AggKindMean, col("v")))
		require.Equal(t, []any{nil}, got)
	})

	t.Run("mean of datetime rounds to the tick", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("ts", types.Datetime(types.UnitMicroseconds)),
		}, nil)
		data := arrowtest.Rows{
			{"ts": int64(1)},
			{"ts": int64(2)},
		}
		got := selectOne(t, schema, data, agg(types.AggKindMean, col("ts")))
		require.Equal(t, []any{int64(2)}, got)
	})

	t.Run("min and max", func(t *testing.T) {
		got := selectOne(t, intSchema, intData, agg(types.AggKindMin, col("v")))
		require.Equal(t, []any{int64(1)}, got)
		got = selectOne(t, intSchema, intData, agg(types.AggKindMax, col("v")))
		require.Equal(t, []any{int64(3)}, got)
	})

	t.Run("min and max of strings are lexicographic", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{
			{"s": "pear"},
			{"s": "apple"},
		}
		require.Equal(t, []any{"apple"},
			selectOne(t, schema, data, agg(types.AggKindMin, col("s"))))
		require.Equal(t, []any{"pear"},
			selectOne(t, schema, data, agg(types.AggKindMax, col("s"))))
	})

	t.Run("max orders NaN above every number", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 1.0},
			{"x": math.NaN()},
			{"x": 2.0},
		}
		got := selectOne(t, floatSchema, data, agg(types.AggKindMax, col("x")))
		require.True(t, math.IsNaN(got[0].(float64)))
		got = selectOne(t, floatSchema, data, agg(types.AggKindMin, col("x")))
		require.Equal(t, []any{1.0}, got)
	})

	t.Run("min of all nulls is null", func(t *testing.T) {
		data := arrowtest.Rows{{"v": nil}}
		got := selectOne(t, intSchema, data, agg(types.AggKindMin, col("v")))
		require.Equal(t, []any{nil}, got)
	})

	t.Run("median interpolates linearly", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(3)},
			{"v": int64(1)},
			{"v": int64(2)},
		}
		require.Equal(t, []any{2.0},
			selectOne(t, intSchema, data, agg(types.AggKindMedian, col("v"))))

		data = append(data, arrowtest.Rows{{"v": int64(4)}}...)
		require.Equal(t, []any{2.5},
			selectOne(t, intSchema, data, agg(types.AggKindMedian, col("v"))))
	})

	t.Run("quantile interpolation methods", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(1)},
			{"v": int64(2)},
			{"v": int64(3)},
			{"v": int64(4)},
			{"v": int64(5)},
		}
		// q=0.3 falls at position 1.2 between 2 and 3.
		got := selectOne(t, intSchema, data, quantileAgg(col("v"), 0.3, "linear"))
		require.InDelta(t, 2.2, got[0].(float64), 1e-9)
		require.Equal(t, []any{2.0},
			selectOne(t, intSchema, data, quantileAgg(col("v"), 0.3, "lower")))
		require.Equal(t, []any{3.0},
			selectOne(t, intSchema, data, quantileAgg(col("v"), 0.3, "higher")))
		require.Equal(t, []any{2.5},
			selectOne(t, intSchema, data, quantileAgg(col("v"), 0.3, "midpoint")))
		require.Equal(t, []any{2.0},
			selectOne(t, intSchema, data, quantileAgg(col("v"), 0.3, "nearest")))
	})

	t.Run("quantile rejects unknown interpolation", func(t *testing.T) {
		data := arrowtest.Rows{{"v": int64(1)}}
		err := selectOneErr(t, intSchema, data, quantileAgg(col("v"), 0.5, "cubic"))
		require.ErrorIs(t, err, errors.ErrInvalidParameter)
	})

	t.Run("variance and standard deviation honor ddof", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(1)},
			{"v": int64(2)},
			{"v": int64(3)},
			{"v": int64(4)},
		}
		got := selectOne(t, intSchema, data, ddofAgg(types.AggKindVar, col("v"), 0))
		require.Equal(t, []any{1.25}, got)
		got = selectOne(t, intSchema, data, ddofAgg(types.AggKindVar, col("v"), 1))
		require.InDelta(t, 5.0/3.0, got[0].(float64), 1e-9)
		got = selectOne(t, intSchema, data, ddofAgg(types.AggKindStd, col("v"), 1))
		require.InDelta(t, math.Sqrt(5.0/3.0), got[0].(float64), 1e-9)
	})

	t.Run("too few rows for ddof yields null", func(t *testing.T) {
		data := arrowtest.Rows{{"v": int64(1)}}
		got := selectOne(t, intSchema, data, ddofAgg(types.AggKindStd, col("v"), 1))
		require.Equal(t, []any{nil}, got)
	})

	t.Run("count counts non-null and len counts rows", func(t *testing.T) {
		require.Equal(t, []any{uint64(3)},
			selectOne(t, intSchema, intData, agg(types.AggKindCount, col("v"))))
		require.Equal(t, []any{uint64(4)},
			selectOne(t, intSchema, intData, agg(types.AggKindLen, nil)))
	})

	t.Run("n_unique counts null as a distinct value", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(1)},
			{"v": int64(2)},
			{"v": int64(2)},
			{"v": nil},
			{"v": nil},
		}
		require.Equal(t, []any{uint64(3)},
			selectOne(t, intSchema, data, agg(types.AggKindNUnique, col("v"))))
	})

	t.Run("approx_n_unique is exact for small inputs", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(1)},
			{"v": int64(2)},
			{"v": int64(2)},
			{"v": int64(3)},
		}
		require.Equal(t, []any{uint64(3)},
			selectOne(t, intSchema, data, agg(types.AggKindApproxNUnique, col("v"))))
	})

	t.Run("first and last", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(10)},
			{"v": int64(20)},
			{"v": int64(30)},
		}
		require.Equal(t, []any{int64(10)},
			selectOne(t, intSchema, data, agg(types.AggKindFirst, col("v"))))
		require.Equal(t, []any{int64(30)},
			selectOne(t, intSchema, data, agg(types.AggKindLast, col("v"))))
	})

	t.Run("implode packs the column into one list", func(t *testing.T) {
		data := arrowtest.Rows{
			{"v": int64(1)},
			{"v": nil},
			{"v": int64(3)},
		}
		require.Equal(t, []any{[]any{int64(1), nil, int64(3)}},
			selectOne(t, intSchema, data, agg(types.AggKindImplode, col("v"))))
	})

	t.Run("aggregations over an empty table produce one row", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", intSchema, nil)
		got := collect(t, alloc, logical.NewProjection(table, []logical.Expr{
			alias(agg(types.AggKindSum, col("v")), "sum"),
			alias(agg(types.AggKindCount, col("v")), "count"),
			alias(agg(types.AggKindLen, nil), "len"),
			alias(agg(types.AggKindMean, col("v")), "mean"),
			alias(agg(types.AggKindFirst, col("v")), "first"),
		}))
		require.Equal(t, arrowtest.Rows{
			{"sum": int64(0), "count": uint64(0), "len": uint64(0), "mean": nil, "first": nil},
		}, got)
	})

	t.Run("arithmetic applies after the reduction", func(t *testing.T) {
		got := selectOne(t, intSchema, intData,
			bin(types.BinOpKindAdd, agg(types.AggKindSum, col("v")), lit(int64(100))))
		require.Equal(t, []any{int64(106)}, got)
	})
}

func TestGroupBy(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("dept", types.String),
		field("salary", types.Int64),
	}, nil)
	data := arrowtest.Rows{
		{"dept": "eng", "salary": int64(100)},
		{"dept": "sales", "salary": int64(50)},
		{"dept": "eng", "salary": int64(200)},
		{"dept": "hr", "salary": nil},
		{"dept": "sales", "salary": int64(70)},
	}

	t.Run("groups emit in first-seen order", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, data)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{alias(agg(types.AggKindSum, col("salary")), "total")},
		))
		require.Equal(t, arrowtest.Rows{
			{"dept": "eng", "total": int64(300)},
			{"dept": "sales", "total": int64(120)},
			{"dept": "hr", "total": int64(0)},
		}, got)
	})

	t.Run("null keys form one group", func(t *testing.T) {
		alloc := checkedAllocator(t)
		nullKeys := arrowtest.Rows{
			{"dept": nil, "salary": int64(1)},
			{"dept": "a", "salary": int64(2)},
			{"dept": nil, "salary": int64(3)},
		}
		table := memTable(t, alloc, "t", schema, nullKeys)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{alias(agg(types.AggKindSum, col("salary")), "total")},
		))
		require.Equal(t, arrowtest.Rows{
			{"dept": nil, "total": int64(4)},
			{"dept": "a", "total": int64(2)},
		}, got)
	})

	t.Run("multiple keys group jointly", func(t *testing.T) {
		alloc := checkedAllocator(t)
		multiSchema := arrow.NewSchema([]arrow.Field{
			field("a", types.String),
			field("b", types.Int64),
			field("v", types.Int64),
		}, nil)
		table := memTable(t, alloc, "t", multiSchema, arrowtest.Rows{
			{"a": "x", "b": int64(1), "v": int64(10)},
			{"a": "x", "b": int64(2), "v": int64(20)},
			{"a": "x", "b": int64(1), "v": int64(30)},
			{"a": "y", "b": int64(1), "v": int64(40)},
		})
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("a"), col("b")},
			[]logical.Expr{alias(agg(types.AggKindSum, col("v")), "total")},
		))
		require.Equal(t, arrowtest.Rows{
			{"a": "x", "b": int64(1), "total": int64(40)},
			{"a": "x", "b": int64(2), "total": int64(20)},
			{"a": "y", "b": int64(1), "total": int64(40)},
		}, got)
	})

	t.Run("several aggregations per group", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, data)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{
				alias(agg(types.AggKindCount, col("salary")), "n"),
				alias(agg(types.AggKindMin, col("salary")), "lowest"),
				alias(agg(types.AggKindMean, col("salary")), "avg"),
			},
		))
		require.Equal(t, arrowtest.Rows{
			{"dept": "eng", "n": uint64(2), "lowest": int64(100), "avg": 150.0},
			{"dept": "sales", "n": uint64(2), "lowest": int64(50), "avg": 60.0},
			{"dept": "hr", "n": uint64(0), "lowest": nil, "avg": nil},
		}, got)
	})

	t.Run("keys may be derived expressions", func(t *testing.T) {
		alloc := checkedAllocator(t)
		numSchema := arrow.NewSchema([]arrow.Field{field("n", types.Int64)}, nil)
		table := memTable(t, alloc, "t", numSchema, arrowtest.Rows{
			{"n": int64(1)},
			{"n": int64(2)},
			{"n": int64(3)},
			{"n": int64(4)},
		})
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{alias(bin(types.BinOpKindMod, col("n"), lit(int64(2))), "parity")},
			[]logical.Expr{alias(agg(types.AggKindSum, col("n")), "total")},
		))
		require.Equal(t, arrowtest.Rows{
			{"parity": int64(1), "total": int64(4)},
			{"parity": int64(0), "total": int64(6)},
		}, got)
	})

	t.Run("arithmetic applies after the per-group reduction", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, data)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{
				alias(bin(types.BinOpKindMul, agg(types.AggKindSum, col("salary")), lit(int64(2))), "doubled"),
			},
		))
		require.Equal(t, arrowtest.Rows{
			{"dept": "eng", "doubled": int64(600)},
			{"dept": "sales", "doubled": int64(240)},
			{"dept": "hr", "doubled": int64(0)},
		}, got)
	})

	t.Run("non-reducing aggregation fails", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, data)
		_, err := tryCollect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{col("salary")},
		))
		require.ErrorIs(t, err, errors.ErrShape)
	})

	t.Run("implode keeps per-row values per group", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, data)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{alias(agg(types.AggKindImplode, col("salary")), "salaries")},
		))
		require.Equal(t, arrowtest.Rows{
			{"dept": "eng", "salaries": []any{int64(100), int64(200)}},
			{"dept": "sales", "salaries": []any{int64(50), int64(70)}},
			{"dept": "hr", "salaries": []any{nil}},
		}, got)
	})

	t.Run("empty input yields no groups", func(t *testing.T) {
		alloc := checkedAllocator(t)
		table := memTable(t, alloc, "t", schema, nil)
		got := collect(t, alloc, logical.NewAggregate(table,
			[]logical.Expr{col("dept")},
			[]logical.Expr{alias(agg(types.AggKindSum, col("salary")), "total")},
		))
		require.Empty(t, got)
	})
}
