package logical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/types"
)

// FunctionExpr applies a named built-in function to its inputs.
type FunctionExpr struct {
	Op     types.FunctionKind
	Inputs []Expr

	Options FunctionOptions
}

// FunctionOptions carries per-function parameters. Only the fields relevant
// to the function kind are set.
type FunctionOptions struct {
	// N is the row count for head and tail.
	N int64
	// Unit is the epoch resolution for from_epoch: s, ms, us, ns, or d.
	Unit string
	// Method selects the correlation algorithm: pearson or spearman.
	Method string
	// Ddof is the delta degrees of freedom for cov and corr.
	Ddof int
	// Descending is the per-column sort direction for arg_sort_by.
	Descending []bool
	// Reverse flips cumulative accumulation direction.
	Reverse bool
}

// NewFunction creates a function application node.
func NewFunction(op types.FunctionKind, inputs []Expr) *FunctionExpr {
	return &FunctionExpr{Op: op, Inputs: inputs}
}

// Kind implements the [Expr] interface.
func (*FunctionExpr) Kind() ExprKind { return ExprKindFunction }

// String returns the string representation of the function application.
func (f *FunctionExpr) String() string {
	args := make([]string, len(f.Inputs))
	for i, in := range f.Inputs {
		args[i] = in.String()
	}
	return fmt.Sprintf("%s(%s)", f.Op, strings.Join(args, ", "))
}

func (*FunctionExpr) isExpr() {}
