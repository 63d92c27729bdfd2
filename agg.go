package polars

import (
	"math"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// Aggregation methods mark a vertical fold over the expression. In a
// group-by context the fold runs per group; in a plain select the whole
// column is one group and the result has a single row.

func (e Expr) agg(op types.AggKind) Expr {
	return wrapExpr(logical.NewAgg(op, e.node))
}

// Sum returns the sum of non-null values. Integers widen to 64 bits,
// booleans count as ones.
func (e Expr) Sum() Expr { return e.agg(types.AggKindSum) }

// Mean returns the arithmetic mean of non-null values.
func (e Expr) Mean() Expr { return e.agg(types.AggKindMean) }

// Min returns the smallest non-null value.
func (e Expr) Min() Expr { return e.agg(types.AggKindMin) }

// Max returns the largest non-null value.
func (e Expr) Max() Expr { return e.agg(types.AggKindMax) }

// Median returns the median of non-null values.
func (e Expr) Median() Expr { return e.agg(types.AggKindMedian) }

// First returns the first value, including a null.
func (e Expr) First() Expr { return e.agg(types.AggKindFirst) }

// Last returns the last value, including a null.
func (e Expr) Last() Expr { return e.agg(types.AggKindLast) }

// Count returns the number of non-null values.
func (e Expr) Count() Expr { return e.agg(types.AggKindCount) }

// NUnique returns the exact number of distinct values, counting null as a
// value.
func (e Expr) NUnique() Expr { return e.agg(types.AggKindNUnique) }

// ApproxNUnique estimates the number of distinct values with a sketch,
// trading exactness for constant memory.
func (e Expr) ApproxNUnique() Expr { return e.agg(types.AggKindApproxNUnique) }

// Implode collapses the values into a single list row.
func (e Expr) Implode() Expr { return e.agg(types.AggKindImplode) }

// Std returns the sample standard deviation. The optional delta degrees of
// freedom defaults to 1.
func (e Expr) Std(ddof ...int) Expr {
	node := logical.NewAgg(types.AggKindStd, e.node)
	node.Ddof = pickDdof(ddof)
	return wrapExpr(node)
}

// Var returns the sample variance. The optional delta degrees of freedom
// defaults to 1.
func (e Expr) Var(ddof ...int) Expr {
	node := logical.NewAgg(types.AggKindVar, e.node)
	node.Ddof = pickDdof(ddof)
	return wrapExpr(node)
}

// Quantile returns the quantile at q in [0, 1]. The optional interpolation
// is one of nearest, higher, lower, midpoint, or linear, defaulting to
// nearest.
func (e Expr) Quantile(q float64, interpolation ...string) Expr {
	node := logical.NewAgg(types.AggKindQuantile, e.node)
	node.Quantile = q
	node.Interpolation = "nearest"
	if len(interpolation) > 0 {
		node.Interpolation = interpolation[0]
	}
	return wrapExpr(node)
}

func pickDdof(ddof []int) int {
	if len(ddof) > 0 {
		return ddof[0]
	}
	return 1
}

// Len returns the number of rows in the context, nulls included. Unlike
// [Expr.Count] it needs no input column.
func Len() Expr {
	return wrapExpr(logical.NewAgg(types.AggKindLen, nil))
}

// CumSum returns the running sum down the column. With reverse the
// accumulation runs bottom up.
func (e Expr) CumSum(reverse bool) Expr {
	node := logical.NewFunction(types.FunctionKindCumSum, []logical.Expr{e.node})
	node.Options.Reverse = reverse
	return wrapExpr(node)
}

// CumCount returns the running count of non-null values down the column.
// With reverse the count runs bottom up.
func (e Expr) CumCount(reverse bool) Expr {
	node := logical.NewFunction(types.FunctionKindCumCount, []logical.Expr{e.node})
	node.Options.Reverse = reverse
	return wrapExpr(node)
}

// Head keeps the first rows of the column. The optional count defaults
// to 10.
func (e Expr) Head(n ...int64) Expr {
	node := logical.NewFunction(types.FunctionKindHead, []logical.Expr{e.node})
	node.Options.N = pickN(n, 10)
	return wrapExpr(node)
}

// Tail keeps the last rows of the column. The optional count defaults
// to 10.
func (e Expr) Tail(n ...int64) Expr {
	node := logical.NewFunction(types.FunctionKindTail, []logical.Expr{e.node})
	node.Options.N = pickN(n, 10)
	return wrapExpr(node)
}

// Reverse flips the order of the column's values.
func (e Expr) Reverse() Expr {
	return wrapExpr(logical.NewFunction(types.FunctionKindReverse, []logical.Expr{e.node}))
}

func pickN(n []int64, fallback int64) int64 {
	if len(n) > 0 {
		return n[0]
	}
	return fallback
}

// The column-name shorthands below mirror the expression methods for the
// common case of aggregating plain columns: Count("a", "b") reads as
// Cols("a", "b").Count().

// Count returns the non-null count of each named column.
func Count(columns ...string) Expr { return Cols(columns...).Count() }

// CumCount returns the running non-null count of each named column.
func CumCount(columns ...string) Expr { return Cols(columns...).CumCount(false) }

// Implode collapses each named column into a single list row.
func Implode(columns ...string) Expr { return Cols(columns...).Implode() }

// Mean returns the mean of each named column.
func Mean(columns ...string) Expr { return Cols(columns...).Mean() }

// Median returns the median of each named column.
func Median(columns ...string) Expr { return Cols(columns...).Median() }

// NUnique returns the exact distinct count of each named column.
func NUnique(columns ...string) Expr { return Cols(columns...).NUnique() }

// ApproxNUnique estimates the distinct count of each named column.
func ApproxNUnique(columns ...string) Expr { return Cols(columns...).ApproxNUnique() }

// First returns the first value of each named column.
func First(columns ...string) Expr { return Cols(columns...).First() }

// Last returns the last value of each named column.
func Last(columns ...string) Expr { return Cols(columns...).Last() }

// Std returns the sample standard deviation of the named column.
func Std(column string, ddof ...int) Expr { return Col(column).Std(ddof...) }

// Var returns the sample variance of the named column.
func Var(column string, ddof ...int) Expr { return Col(column).Var(ddof...) }

// Head keeps the first rows of the named column, 10 by default.
func Head(column string, n ...int64) Expr { return Col(column).Head(n...) }

// Tail keeps the last rows of the named column, 10 by default.
func Tail(column string, n ...int64) Expr { return Col(column).Tail(n...) }

// Quantile returns the quantile of the named column, interpolating with
// the nearest method unless told otherwise.
func Quantile(column string, q float64, interpolation ...string) Expr {
	return Col(column).Quantile(q, interpolation...)
}

// Corr returns the correlation between two expressions. The optional
// method is pearson (default) or spearman; anything else fails the collect
// with [ErrInvalidParameter].
func Corr(a, b Expr, method ...string) Expr {
	node := logical.NewFunction(types.FunctionKindCorr, []logical.Expr{a.node, b.node})
	node.Options.Method = "pearson"
	if len(method) > 0 {
		node.Options.Method = method[0]
	}
	return wrapExpr(node)
}

// Cov returns the covariance between two expressions. The optional delta
// degrees of freedom defaults to 1.
func Cov(a, b Expr, ddof ...int) Expr {
	node := logical.NewFunction(types.FunctionKindCov, []logical.Expr{a.node, b.node})
	node.Options.Ddof = pickDdof(ddof)
	return wrapExpr(node)
}

// ArcTan2 returns the two-argument arctangent of y/x in radians.
func ArcTan2(y, x Expr) Expr {
	return wrapExpr(logical.NewFunction(types.FunctionKindArcTan2, []logical.Expr{y.node, x.node}))
}

// ArcTan2d returns the two-argument arctangent of y/x in degrees.
func ArcTan2d(y, x Expr) Expr {
	return ArcTan2(y, x).Mul(Lit(180.0 / math.Pi))
}

// FromEpoch parses integer timestamps since the Unix epoch. The optional
// unit is one of s (default, microsecond datetimes), ms, us, ns, or d for
// dates.
func FromEpoch(e Expr, unit ...string) Expr {
	node := logical.NewFunction(types.FunctionKindFromEpoch, []logical.Expr{e.node})
	node.Options.Unit = "s"
	if len(unit) > 0 {
		node.Options.Unit = unit[0]
	}
	return wrapExpr(node)
}

// ArgSortBy returns the row indices that would sort by the given
// expressions. Descending applies to all columns when given once, or per
// column when its length matches; any other length fails the collect with
// [ErrInvalidParameter].
func ArgSortBy(by []Expr, descending ...bool) Expr {
	node := logical.NewFunction(types.FunctionKindArgSortBy, unwrapExprs(by))
	node.Options.Descending = descending
	return wrapExpr(node)
}
