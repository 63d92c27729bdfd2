package logical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/types"
)

// HorizontalExpr folds its inputs row-wise into a single output column.
//
// The input list must be non-empty by the time the plan is collected; an
// empty list is representable (so that selector expansion can be attempted
// first) and fails with a compute error at evaluation.
type HorizontalExpr struct {
	Op     types.HorizontalKind
	Inputs []Expr

	// IgnoreNulls applies to sum and mean: when true, nulls count as the
	// fold identity unless the whole row is null; when false, any null
	// poisons the row.
	IgnoreNulls bool
}

// NewHorizontal creates a horizontal reduction over the inputs.
func NewHorizontal(op types.HorizontalKind, inputs []Expr, ignoreNulls bool) *HorizontalExpr {
	return &HorizontalExpr{Op: op, Inputs: inputs, IgnoreNulls: ignoreNulls}
}

// Kind implements the [Expr] interface.
func (*HorizontalExpr) Kind() ExprKind { return ExprKindHorizontal }

// String returns the string representation of the reduction.
func (h *HorizontalExpr) String() string {
	args := make([]string, len(h.Inputs))
	for i, in := range h.Inputs {
		args[i] = in.String()
	}
	if h.Op == types.HorizontalKindCoalesce {
		return fmt.Sprintf("coalesce(%s)", strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s_horizontal(%s)", h.Op, strings.Join(args, ", "))
}

func (*HorizontalExpr) isExpr() {}

// FoldKind selects the fold variant.
type FoldKind uint32

const (
	FoldKindInvalid FoldKind = iota

	// FoldKindFold folds inputs left to right starting from an explicit
	// accumulator expression.
	FoldKindFold
	// FoldKindReduce folds inputs left to right using the first input as
	// the initial accumulator.
	FoldKindReduce
	// FoldKindCumFold is like fold but emits the running accumulator after
	// each input as a struct field named after that input.
	FoldKindCumFold
	// FoldKindCumReduce is like reduce but emits the running accumulator
	// after each input as a struct field named after that input.
	FoldKindCumReduce
)

// String returns the string representation of the FoldKind.
func (k FoldKind) String() string {
	switch k {
	case FoldKindFold:
		return "fold"
	case FoldKindReduce:
		return "reduce"
	case FoldKindCumFold:
		return "cum_fold"
	case FoldKindCumReduce:
		return "cum_reduce"
	default:
		return "invalid"
	}
}

// FoldExpr folds whole columns left to right through a user-supplied binary
// function. The accumulator and each input are full columns; the function
// must be safe for concurrent invocation across independent evaluations.
type FoldExpr struct {
	Op     FoldKind
	Acc    Expr // nil for reduce variants
	Fn     FoldFunction
	Inputs []Expr

	// IncludeInit emits the initial accumulator as a leading struct field
	// for cum_fold.
	IncludeInit bool
}

// Kind implements the [Expr] interface.
func (*FoldExpr) Kind() ExprKind { return ExprKindFold }

// String returns the string representation of the fold.
func (f *FoldExpr) String() string {
	args := make([]string, len(f.Inputs))
	for i, in := range f.Inputs {
		args[i] = in.String()
	}
	return fmt.Sprintf("%s(%s)", f.Op, strings.Join(args, ", "))
}

func (*FoldExpr) isExpr() {}
