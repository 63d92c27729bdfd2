package logical

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/types"
)

// Interpolation methods accepted by quantile aggregations.
var Interpolations = []string{"nearest", "higher", "lower", "midpoint", "linear"}

// AggExpr marks a vertical aggregation over its input. Outside a grouping
// context the whole column is one group.
type AggExpr struct {
	Op    types.AggKind
	Input Expr

	// Ddof is the delta degrees of freedom for std and var.
	Ddof int
	// Quantile and Interpolation parameterize quantile aggregation.
	Quantile      float64
	Interpolation string
	// N bounds head and tail style aggregations where applicable.
	N int64
}

// NewAgg creates an aggregation node over the input expression.
func NewAgg(op types.AggKind, input Expr) *AggExpr {
	return &AggExpr{Op: op, Input: input}
}

// Kind implements the [Expr] interface.
func (*AggExpr) Kind() ExprKind { return ExprKindAgg }

// String returns the string representation of the aggregation.
func (a *AggExpr) String() string {
	switch a.Op {
	case types.AggKindQuantile:
		return fmt.Sprintf("%s.quantile(%g, %q)", a.Input, a.Quantile, a.Interpolation)
	case types.AggKindStd, types.AggKindVar:
		return fmt.Sprintf("%s.%s(ddof=%d)", a.Input, a.Op, a.Ddof)
	default:
		return fmt.Sprintf("%s.%s()", a.Input, a.Op)
	}
}

func (*AggExpr) isExpr() {}
