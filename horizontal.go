package polars

import (
	"github.com/AmirulAndalib/polars/internal/executor"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// Horizontal reducers fold several columns into one, row by row. Inputs
// coerce to their least upper bound on the numeric widening lattice, and
// scalar inputs broadcast to the longest column's length. Reducing zero
// expressions fails the collect with [ErrCompute], because the output row
// count would be unknown; reducing one short-circuits to a cast of that
// input. The output takes the name of the first expression as written,
// before any selector expands.

// FoldFunction combines a whole accumulator column with the next input
// column and returns the new accumulator of the same length. It may be
// invoked concurrently for independent batches and must not rely on call
// serialization.
type FoldFunction = logical.FoldFunction

func horizontal(op types.HorizontalKind, ignoreNulls bool, exprs []Expr) Expr {
	return wrapExpr(logical.NewHorizontal(op, unwrapExprs(exprs), ignoreNulls))
}

// SumHorizontal sums across columns. With ignoreNulls, nulls count as zero
// unless a row is null in every input, which stays null; without it, any
// null poisons the row.
func SumHorizontal(ignoreNulls bool, exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindSum, ignoreNulls, exprs)
}

// MeanHorizontal averages across columns, with the same null handling as
// [SumHorizontal].
func MeanHorizontal(ignoreNulls bool, exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindMean, ignoreNulls, exprs)
}

// MinHorizontal takes the row-wise minimum, skipping nulls. A row that is
// null in every input stays null.
func MinHorizontal(exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindMin, true, exprs)
}

// MaxHorizontal takes the row-wise maximum, skipping nulls. A row that is
// null in every input stays null.
func MaxHorizontal(exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindMax, true, exprs)
}

// AnyHorizontal tests whether any value in a row is true. With
// ignoreNulls, nulls are skipped; without it, Kleene logic applies: a row
// with no true and at least one null is null rather than false.
func AnyHorizontal(ignoreNulls bool, exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindAny, ignoreNulls, exprs)
}

// AllHorizontal tests whether every value in a row is true. With
// ignoreNulls, nulls are skipped; without it, Kleene logic applies: a row
// with no false and at least one null is null rather than true.
func AllHorizontal(ignoreNulls bool, exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindAll, ignoreNulls, exprs)
}

// Coalesce takes the first non-null value scanning the inputs left to
// right, defaulting to null when all are null.
func Coalesce(exprs ...Expr) Expr {
	return horizontal(types.HorizontalKindCoalesce, true, exprs)
}

// Fold accumulates across columns left to right, starting from the
// accumulator expression. The output takes the accumulator's name.
func Fold(acc Expr, fn FoldFunction, exprs ...Expr) Expr {
	return wrapExpr(&logical.FoldExpr{
		Op:     logical.FoldKindFold,
		Acc:    acc.node,
		Fn:     fn,
		Inputs: unwrapExprs(exprs),
	})
}

// Reduce accumulates across columns left to right, seeding the accumulator
// with the first input.
func Reduce(fn FoldFunction, exprs ...Expr) Expr {
	return wrapExpr(&logical.FoldExpr{
		Op:     logical.FoldKindReduce,
		Fn:     fn,
		Inputs: unwrapExprs(exprs),
	})
}

// CumFold accumulates like [Fold] but keeps every intermediate state,
// producing a struct column with one field per input, named after it. With
// includeInit, the initial accumulator leads as an extra field.
func CumFold(acc Expr, fn FoldFunction, includeInit bool, exprs ...Expr) Expr {
	return wrapExpr(&logical.FoldExpr{
		Op:          logical.FoldKindCumFold,
		Acc:         acc.node,
		Fn:          fn,
		Inputs:      unwrapExprs(exprs),
		IncludeInit: includeInit,
	})
}

// CumReduce accumulates like [Reduce] but keeps every intermediate state,
// producing a struct column with one field per input, named after it.
func CumReduce(fn FoldFunction, exprs ...Expr) Expr {
	return wrapExpr(&logical.FoldExpr{
		Op:     logical.FoldKindCumReduce,
		Fn:     fn,
		Inputs: unwrapExprs(exprs),
	})
}

// CumSumHorizontal returns the running sum across columns as a struct
// column named cum_sum, with one field per input holding the sum up to and
// including it.
func CumSumHorizontal(exprs ...Expr) Expr {
	return CumReduce(executor.AddArrays, exprs...).Alias("cum_sum")
}

// Cumfold accumulates across columns keeping intermediate states.
//
// Deprecated: renamed to [CumFold].
func Cumfold(acc Expr, fn FoldFunction, includeInit bool, exprs ...Expr) Expr {
	deprecated("Cumfold", "CumFold")
	return CumFold(acc, fn, includeInit, exprs...)
}

// Cumreduce accumulates across columns keeping intermediate states.
//
// Deprecated: renamed to [CumReduce].
func Cumreduce(fn FoldFunction, exprs ...Expr) Expr {
	deprecated("Cumreduce", "CumReduce")
	return CumReduce(fn, exprs...)
}
