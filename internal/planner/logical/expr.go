// Package logical defines the unresolved query plan: immutable expression
// nodes and relational operators assembled by the user-facing builders.
//
// Logical nodes are pure syntax. They carry no schema and touch no data;
// names resolve and types infer later, at the single resolution point in the
// physical planner. Every transformation wraps its input in a new node, so
// plans are persistent values that can be shared and re-collected freely.
package logical

import (
	"fmt"
)

// Expr is a node in the expression graph.
//
// Expressions are immutable once constructed. Structural equality implies
// computational equality, which the optimizer relies on for subexpression
// sharing.
type Expr interface {
	fmt.Stringer

	// Kind returns the expression node kind.
	Kind() ExprKind

	isExpr()
}

// ExprKind identifies the concrete type of an expression node.
type ExprKind uint32

const (
	ExprKindInvalid ExprKind = iota

	ExprKindColumn
	ExprKindSelector
	ExprKindLiteral
	ExprKindAlias
	ExprKindUnary
	ExprKindBinary
	ExprKindCast
	ExprKindTernary
	ExprKindAgg
	ExprKindFunction
	ExprKindHorizontal
	ExprKindFold
	ExprKindMap
)

// String returns the string representation of the ExprKind.
func (k ExprKind) String() string {
	switch k {
	case ExprKindColumn:
		return "ColumnRef"
	case ExprKindSelector:
		return "Selector"
	case ExprKindLiteral:
		return "Literal"
	case ExprKindAlias:
		return "Alias"
	case ExprKindUnary:
		return "UnaryOp"
	case ExprKindBinary:
		return "BinaryOp"
	case ExprKindCast:
		return "Cast"
	case ExprKindTernary:
		return "Ternary"
	case ExprKindAgg:
		return "Agg"
	case ExprKindFunction:
		return "Function"
	case ExprKindHorizontal:
		return "Horizontal"
	case ExprKindFold:
		return "Fold"
	case ExprKindMap:
		return "Map"
	default:
		return "Invalid"
	}
}

// Children returns the direct child expressions of a node. Leaf nodes return
// nil.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *AliasExpr:
		return []Expr{e.Input}
	case *UnaryExpr:
		return []Expr{e.Input}
	case *BinaryExpr:
		return []Expr{e.Left, e.Right}
	case *CastExpr:
		return []Expr{e.Input}
	case *TernaryExpr:
		return []Expr{e.Predicate, e.Truthy, e.Falsy}
	case *AggExpr:
		return []Expr{e.Input}
	case *FunctionExpr:
		return e.Inputs
	case *HorizontalExpr:
		return e.Inputs
	case *FoldExpr:
		if e.Acc == nil {
			return e.Inputs
		}
		return append([]Expr{e.Acc}, e.Inputs...)
	case *MapExpr:
		return e.Inputs
	default:
		return nil
	}
}

// Walk visits e and all of its descendants in depth-first pre-order.
func Walk(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	for _, child := range Children(e) {
		Walk(child, fn)
	}
}
