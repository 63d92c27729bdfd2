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

// selectOne evaluates a single expression aliased to "out" against the
// rows and returns the resulting column values.
func selectOne(t *testing.T, schema *arrow.Schema, data arrowtest.Rows, expr logical.Expr) []any {
	t.Helper()
	alloc := checkedAllocator(t)
	table := memTable(t, alloc, "t", schema, data)
	got := collect(t, alloc, logical.NewProjection(table, []logical.Expr{alias(expr, "out")}))

	values := make([]any, len(got))
	for i, row := range got {
		values[i] = row["out"]
	}
	return values
}

func selectOneErr(t *testing.T, schema *arrow.Schema, data arrowtest.Rows, expr logical.Expr) error {
	t.Helper()
	alloc := checkedAllocator(t)
	table := memTable(t, alloc, "t", schema, data)
	_, err := tryCollect(t, alloc, logical.NewProjection(table, []logical.Expr{alias(expr, "out")}))
	require.Error(t, err)
	return err
}

func TestArithmetic(t *testing.T) {
	intSchema := arrow.NewSchema([]arrow.Field{
		field("a", types.Int64),
		field("b", types.Int64),
	}, nil)
	floatSchema := arrow.NewSchema([]arrow.Field{
		field("x", types.Float64),
		field("y", types.Float64),
	}, nil)

	t.Run("integer add sub mul", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(3), "b": int64(5)},
			{"a": int64(-2), "b": int64(7)},
			{"a": nil, "b": int64(1)},
		}
		require.Equal(t, []any{int64(8), int64(5), nil},
			selectOne(t, intSchema, data, bin(types.BinOpKindAdd, col("a"), col("b"))))
		require.Equal(t, []any{int64(-2), int64(-9), nil},
			selectOne(t, intSchema, data, bin(types.BinOpKindSub, col("a"), col("b"))))
		require.Equal(t, []any{int64(15), int64(-14), nil},
			selectOne(t, intSchema, data, bin(types.BinOpKindMul, col("a"), col("b"))))
	})

	t.Run("integer overflow wraps", func(t *testing.T) {
		data := arrowtest.Rows{{"a": int64(math.MaxInt64), "b": int64(1)}}
		require.Equal(t, []any{int64(math.MinInt64)},
			selectOne(t, intSchema, data, bin(types.BinOpKindAdd, col("a"), col("b"))))
	})

	t.Run("mixed widths use the supertype", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("i", types.Int32),
			field("u", types.UInt32),
		}, nil)
		data := arrowtest.Rows{{"i": int32(-1), "u": uint32(3)}}

		// int32 with uint32 widens to int64.
		require.Equal(t, []any{int64(2)},
			selectOne(t, schema, data, bin(types.BinOpKindAdd, col("i"), col("u"))))
	})

	t.Run("uint64 with int64 spills into float", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("i", types.Int64),
			field("u", types.UInt64),
		}, nil)
		data := arrowtest.Rows{{"i": int64(2), "u": uint64(3)}}
		require.Equal(t, []any{float64(5)},
			selectOne(t, schema, data, bin(types.BinOpKindAdd, col("i"), col("u"))))
	})

	t.Run("true division always yields float", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(7), "b": int64(2)},
			{"a": int64(-7), "b": int64(2)},
			{"a": nil, "b": int64(2)},
		}
		require.Equal(t, []any{3.5, -3.5, nil},
			selectOne(t, intSchema, data, bin(types.BinOpKindDiv, col("a"), col("b"))))
	})

	t.Run("division by zero follows IEEE 754", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(1), "b": int64(0)},
			{"a": int64(-1), "b": int64(0)},
			{"a": int64(0), "b": int64(0)},
		}
		got := selectOne(t, intSchema, data, bin(types.BinOpKindDiv, col("a"), col("b")))
		require.Equal(t, math.Inf(1), got[0])
		require.Equal(t, math.Inf(-1), got[1])
		require.True(t, math.IsNaN(got[2].(float64)))
	})

	t.Run("integer floor division rounds toward negative infinity", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(7), "b": int64(2)},
			{"a": int64(-7), "b": int64(2)},
			{"a": int64(7), "b": int64(-2)},
			{"a": int64(-7), "b": int64(-2)},
		}
		require.Equal(t, []any{int64(3), int64(-4), int64(-4), int64(3)},
			selectOne(t, intSchema, data, bin(types.BinOpKindFloorDiv, col("a"), col("b"))))
	})

	t.Run("integer floor division by zero is null", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(7), "b": int64(0)},
			{"a": int64(7), "b": int64(2)},
		}
		require.Equal(t, []any{nil, int64(3)},
			selectOne(t, intSchema, data, bin(types.BinOpKindFloorDiv, col("a"), col("b"))))
	})

	t.Run("float floor division", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 7.5, "y": 2.0},
			{"x": 7.5, "y": 0.0},
		}
		got := selectOne(t, floatSchema, data, bin(types.BinOpKindFloorDiv, col("x"), col("y")))
		require.Equal(t, 3.0, got[0])
		require.Equal(t, math.Inf(1), got[1])
	})

	t.Run("modulo takes the sign of the divisor", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(7), "b": int64(3)},
			{"a": int64(-7), "b": int64(3)},
			{"a": int64(7), "b": int64(-3)},
			{"a": int64(-7), "b": int64(-3)},
		}
		require.Equal(t, []any{int64(1), int64(2), int64(-2), int64(-1)},
			selectOne(t, intSchema, data, bin(types.BinOpKindMod, col("a"), col("b"))))
	})

	t.Run("integer modulo by zero is null", func(t *testing.T) {
		data := arrowtest.Rows{{"a": int64(7), "b": int64(0)}}
		require.Equal(t, []any{nil},
			selectOne(t, intSchema, data, bin(types.BinOpKindMod, col("a"), col("b"))))
	})

	t.Run("float modulo by zero is NaN", func(t *testing.T) {
		data := arrowtest.Rows{{"x": 7.0, "y": 0.0}}
		got := selectOne(t, floatSchema, data, bin(types.BinOpKindMod, col("x"), col("y")))
		require.True(t, math.IsNaN(got[0].(float64)))
	})

	t.Run("integer power", func(t *testing.T) {
		data := arrowtest.Rows{
			{"a": int64(2), "b": int64(10)},
			{"a": int64(-2), "b": int64(3)},
			{"a": int64(0), "b": int64(0)},
		}
		require.Equal(t, []any{int64(1024), int64(-8), int64(1)},
			selectOne(t, intSchema, data, bin(types.BinOpKindPow, col("a"), col("b"))))
	})

	t.Run("integer power with negative exponent fails", func(t *testing.T) {
		data := arrowtest.Rows{{"a": int64(2), "b": int64(-1)}}
		err := selectOneErr(t, intSchema, data, bin(types.BinOpKindPow, col("a"), col("b")))
		require.ErrorIs(t, err, errors.ErrCompute)
	})

	t.Run("float power", func(t *testing.T) {
		data := arrowtest.Rows{
			{"x": 4.0, "y": 0.5},
			{"x": 2.0, "y": -1.0},
		}
		require.Equal(t, []any{2.0, 0.5},
			selectOne(t, floatSchema, data, bin(types.BinOpKindPow, col("x"), col("y"))))
	})

	t.Run("string concatenation", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{
			{"s": "foo"},
			{"s": nil},
		}
		require.Equal(t, []any{"foo!", nil},
			selectOne(t, schema, data, bin(types.BinOpKindAdd, col("s"), lit("!"))))
	})

	t.Run("string arithmetic beyond concatenation fails", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{{"s": "foo"}}
		err := selectOneErr(t, schema, data, bin(types.BinOpKindMul, col("s"), lit("!")))
		require.ErrorIs(t, err, errors.ErrCompute)
	})

	t.Run("datetime difference is a duration", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("t1", types.Datetime(types.UnitMicroseconds)),
			field("t2", types.Datetime(types.UnitMicroseconds)),
		}, nil)
		data := arrowtest.Rows{{"t1": int64(5_000_000), "t2": int64(2_000_000)}}
		require.Equal(t, []any{int64(3_000_000)},
			selectOne(t, schema, data, bin(types.BinOpKindSub, col("t1"), col("t2"))))
	})

	t.Run("date difference is a millisecond duration", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("d1", types.Date),
			field("d2", types.Date),
		}, nil)
		data := arrowtest.Rows{{"d1": int32(13), "d2": int32(10)}}
		require.Equal(t, []any{int64(3 * 86_400_000)},
			selectOne(t, schema, data, bin(types.BinOpKindSub, col("d1"), col("d2"))))
	})

	t.Run("duration shifts a datetime", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("ts", types.Datetime(types.UnitMicroseconds)),
			field("delta", types.Duration(types.UnitMilliseconds)),
		}, nil)
		data := arrowtest.Rows{{"ts": int64(1_000_000), "delta": int64(500)}}

		// The millisecond delta rescales to the datetime's microsecond
		// resolution.
		require.Equal(t, []any{int64(1_500_000)},
			selectOne(t, schema, data, bin(types.BinOpKindAdd, col("ts"), col("delta"))))
	})
}

func TestComparisons(t *testing.T) {
	t.Run("numeric comparison coerces operands", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("i", types.Int64),
			field("f", types.Float64),
		}, nil)
		data := arrowtest.Rows{
			{"i": int64(1), "f": 1.0},
			{"i": int64(2), "f": 2.5},
			{"i": int64(3), "f": nil},
		}
		require.Equal(t, []any{true, false, nil},
			selectOne(t, schema, data, bin(types.BinOpKindEq, col("i"), col("f"))))
		require.Equal(t, []any{false, true, nil},
			selectOne(t, schema, data, bin(types.BinOpKindLt, col("i"), col("f"))))
	})

	t.Run("NaN compares false except for inequality", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("x", types.Float64)}, nil)
		data := arrowtest.Rows{{"x": math.NaN()}}
		require.Equal(t, []any{false},
			selectOne(t, schema, data, bin(types.BinOpKindEq, col("x"), col("x"))))
		require.Equal(t, []any{true},
			selectOne(t, schema, data, bin(types.BinOpKindNeq, col("x"), col("x"))))
		require.Equal(t, []any{false},
			selectOne(t, schema, data, bin(types.BinOpKindGte, col("x"), lit(0.0))))
	})

	t.Run("string ordering is lexicographic", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{
			{"s": "apple"},
			{"s": "banana"},
			{"s": nil},
		}
		require.Equal(t, []any{true, false, nil},
			selectOne(t, schema, data, bin(types.BinOpKindLt, col("s"), lit("b"))))
	})

	t.Run("booleans order false before true", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("b", types.Bool)}, nil)
		data := arrowtest.Rows{
			{"b": false},
			{"b": true},
		}
		require.Equal(t, []any{true, false},
			selectOne(t, schema, data, bin(types.BinOpKindLt, col("b"), lit(true))))
	})

	t.Run("string and numeric do not compare", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{{"s": "1"}}
		err := selectOneErr(t, schema, data, bin(types.BinOpKindEq, col("s"), lit(int64(1))))
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}

func TestKleeneLogic(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("l", types.Bool),
		field("r", types.Bool),
	}, nil)

	// All nine combinations of true, false, and null.
	data := arrowtest.Rows{
		{"l": true, "r": true},
		{"l": true, "r": false},
		{"l": true, "r": nil},
		{"l": false, "r": true},
		{"l": false, "r": false},
		{"l": false, "r": nil},
		{"l": nil, "r": true},
		{"l": nil, "r": false},
		{"l": nil, "r": nil},
	}

	t.Run("and", func(t *testing.T) {
		require.Equal(t,
			[]any{true, false, nil, false, false, false, nil, false, nil},
			selectOne(t, schema, data, bin(types.BinOpKindAnd, col("l"), col("r"))))
	})

	t.Run("or", func(t *testing.T) {
		require.Equal(t,
			[]any{true, true, true, true, false, nil, true, nil, nil},
			selectOne(t, schema, data, bin(types.BinOpKindOr, col("l"), col("r"))))
	})

	t.Run("xor propagates nulls", func(t *testing.T) {
		require.Equal(t,
			[]any{false, true, nil, true, false, nil, nil, nil, nil},
			selectOne(t, schema, data, bin(types.BinOpKindXor, col("l"), col("r"))))
	})

	t.Run("untyped null literal participates", func(t *testing.T) {
		require.Equal(t,
			[]any{nil, nil, nil, false, false, false, nil, nil, nil},
			selectOne(t, schema, data, bin(types.BinOpKindAnd, col("l"), lit(nil))))
	})

	t.Run("non-boolean operands fail", func(t *testing.T) {
		intSchema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		err := selectOneErr(t, intSchema, arrowtest.Rows{{"a": int64(1)}},
			bin(types.BinOpKindAnd, col("a"), lit(true)))
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}

func TestUnaryOps(t *testing.T) {
	t.Run("not", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("b", types.Bool)}, nil)
		data := arrowtest.Rows{
			{"b": true},
			{"b": false},
			{"b": nil},
		}
		require.Equal(t, []any{false, true, nil},
			selectOne(t, schema, data, unary(types.UnaryOpKindNot, col("b"))))
	})

	t.Run("negation", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{
			{"a": int64(1)},
			{"a": int64(-2)},
			{"a": nil},
		}
		require.Equal(t, []any{int64(-1), int64(2), nil},
			selectOne(t, schema, data, unary(types.UnaryOpKindNeg, col("a"))))
	})

	t.Run("negating unsigned yields signed", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("u", types.UInt32)}, nil)
		data := arrowtest.Rows{{"u": uint32(5)}}
		require.Equal(t, []any{int64(-5)},
			selectOne(t, schema, data, unary(types.UnaryOpKindNeg, col("u"))))
	})

	t.Run("is_null and is_not_null never return null", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{
			{"a": int64(1)},
			{"a": nil},
		}
		require.Equal(t, []any{false, true},
			selectOne(t, schema, data, unary(types.UnaryOpKindIsNull, col("a"))))
		require.Equal(t, []any{true, false},
			selectOne(t, schema, data, unary(types.UnaryOpKindIsNotNull, col("a"))))
	})

	t.Run("not requires a boolean", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		err := selectOneErr(t, schema, arrowtest.Rows{{"a": int64(1)}},
			unary(types.UnaryOpKindNot, col("a")))
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}

func TestTernary(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		field("flag", types.Bool),
		field("a", types.Int64),
		field("b", types.Int64),
	}, nil)
	data := arrowtest.Rows{
		{"flag": true, "a": int64(1), "b": int64(10)},
		{"flag": false, "a": int64(2), "b": int64(20)},
		{"flag": nil, "a": int64(3), "b": int64(30)},
	}

	ternary := func(pred, truthy, falsy logical.Expr) logical.Expr {
		return &logical.TernaryExpr{Predicate: pred, Truthy: truthy, Falsy: falsy}
	}

	t.Run("selects between branches", func(t *testing.T) {
		require.Equal(t, []any{int64(1), int64(20), nil},
			selectOne(t, schema, data, ternary(col("flag"), col("a"), col("b"))))
	})

	t.Run("scalar branches broadcast", func(t *testing.T) {
		require.Equal(t, []any{"yes", "no", nil},
			selectOne(t, schema, data, ternary(col("flag"), lit("yes"), lit("no"))))
	})

	t.Run("branches coerce to a common type", func(t *testing.T) {
		require.Equal(t, []any{float64(1), 0.5, nil},
			selectOne(t, schema, data, ternary(col("flag"), col("a"), lit(0.5))))
	})

	t.Run("non-boolean predicate fails", func(t *testing.T) {
		err := selectOneErr(t, schema, data, ternary(col("a"), col("a"), col("b")))
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}

func TestCasts(t *testing.T) {
	t.Run("int widens and narrows", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{
			{"a": int64(300)},
			{"a": int64(-5)},
			{"a": nil},
		}
		// In-range values narrow; 300 does not fit int8.
		require.Equal(t, []any{nil, int64(-5), nil},
			selectOne(t, schema, data, cast(col("a"), types.Int8, false)))
	})

	t.Run("strict narrowing fails on overflow", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{{"a": int64(300)}}
		err := selectOneErr(t, schema, data, cast(col("a"), types.Int8, true))
		require.ErrorIs(t, err, errors.ErrCompute)
	})

	t.Run("negative to unsigned is null", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{
			{"a": int64(-1)},
			{"a": int64(7)},
		}
		require.Equal(t, []any{nil, uint64(7)},
			selectOne(t, schema, data, cast(col("a"), types.UInt32, false)))
	})

	t.Run("float to int truncates toward zero", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("x", types.Float64)}, nil)
		data := arrowtest.Rows{
			{"x": 2.9},
			{"x": -2.9},
			{"x": math.NaN()},
		}
		require.Equal(t, []any{int64(2), int64(-2), nil},
			selectOne(t, schema, data, cast(col("x"), types.Int64, false)))
	})

	t.Run("numeric to bool tests against zero", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("a", types.Int64)}, nil)
		data := arrowtest.Rows{
			{"a": int64(0)},
			{"a": int64(-3)},
		}
		require.Equal(t, []any{false, true},
			selectOne(t, schema, data, cast(col("a"), types.Bool, false)))
	})

	t.Run("bool to int", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("b", types.Bool)}, nil)
		data := arrowtest.Rows{
			{"b": true},
			{"b": false},
		}
		require.Equal(t, []any{int64(1), int64(0)},
			selectOne(t, schema, data, cast(col("b"), types.Int64, false)))
	})

	t.Run("string parses to numbers", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{
			{"s": "42"},
			{"s": "nope"},
			{"s": "3.14"},
		}
		require.Equal(t, []any{int64(42), nil, nil},
			selectOne(t, schema, data, cast(col("s"), types.Int64, false)))
		require.Equal(t, []any{42.0, nil, 3.14},
			selectOne(t, schema, data, cast(col("s"), types.Float64, false)))
	})

	t.Run("numbers format to strings", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("x", types.Float64)}, nil)
		data := arrowtest.Rows{
			{"x": 2.0},
			{"x": 2.5},
			{"x": math.Inf(1)},
		}
		require.Equal(t, []any{"2.0", "2.5", "inf"},
			selectOne(t, schema, data, cast(col("x"), types.String, false)))
	})

	t.Run("date renders ISO format", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("d", types.Date)}, nil)
		data := arrowtest.Rows{{"d": int32(0)}}
		require.Equal(t, []any{"1970-01-01"},
			selectOne(t, schema, data, cast(col("d"), types.String, false)))
	})

	t.Run("string parses to date", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{field("s", types.String)}, nil)
		data := arrowtest.Rows{
			{"s": "1970-01-11"},
			{"s": "not a date"},
		}
		require.Equal(t, []any{int64(10), nil},
			selectOne(t, schema, data, cast(col("s"), types.Date, false)))
	})

	t.Run("datetime rescales across resolutions", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("ts", types.Datetime(types.UnitMilliseconds)),
		}, nil)
		data := arrowtest.Rows{{"ts": int64(1_500)}}
		require.Equal(t, []any{int64(1_500_000)},
			selectOne(t, schema, data, cast(col("ts"), types.Datetime(types.UnitMicroseconds), false)))
	})

	t.Run("date to datetime and back floors", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("ts", types.Datetime(types.UnitMicroseconds)),
		}, nil)
		// Half a day before the epoch floors to the day before.
		data := arrowtest.Rows{{"ts": int64(-43_200_000_000)}}
		require.Equal(t, []any{int64(-1)},
			selectOne(t, schema, data, cast(col("ts"), types.Date, false)))
	})

	t.Run("duration to time is unsupported", func(t *testing.T) {
		schema := arrow.NewSchema([]arrow.Field{
			field("d", types.Duration(types.UnitMilliseconds)),
		}, nil)
		data := arrowtest.Rows{{"d": int64(1)}}
		err := selectOneErr(t, schema, data, cast(col("d"), types.Time, false))
		require.ErrorIs(t, err, errors.ErrCompute)
	})
}
