package logical

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/types"
)

// AliasExpr renames the output of its input expression without altering
// values.
type AliasExpr struct {
	Input Expr
	Name  string
}

// Kind implements the [Expr] interface.
func (*AliasExpr) Kind() ExprKind { return ExprKindAlias }

// String returns the string representation of the alias.
func (a *AliasExpr) String() string {
	return fmt.Sprintf("%s.alias(%q)", a.Input, a.Name)
}

func (*AliasExpr) isExpr() {}

// UnaryExpr applies a unary operation to its input.
type UnaryExpr struct {
	Op    types.UnaryOpKind
	Input Expr
}

// Kind implements the [Expr] interface.
func (*UnaryExpr) Kind() ExprKind { return ExprKindUnary }

// String returns the string representation of the operation.
func (u *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", u.Op, u.Input)
}

func (*UnaryExpr) isExpr() {}

// BinaryExpr applies a binary operation to its operands.
type BinaryExpr struct {
	Op          types.BinOpKind
	Left, Right Expr
}

// Kind implements the [Expr] interface.
func (*BinaryExpr) Kind() ExprKind { return ExprKindBinary }

// String returns the string representation of the operation.
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("[(%s) %s (%s)]", b.Left, b.Op, b.Right)
}

func (*BinaryExpr) isExpr() {}

// CastExpr converts its input to the target type. A strict cast fails on
// values that do not fit; a non-strict cast produces null for them.
type CastExpr struct {
	Input  Expr
	To     types.DataType
	Strict bool
}

// Kind implements the [Expr] interface.
func (*CastExpr) Kind() ExprKind { return ExprKindCast }

// String returns the string representation of the cast.
func (c *CastExpr) String() string {
	return fmt.Sprintf("%s.cast(%s)", c.Input, c.To)
}

func (*CastExpr) isExpr() {}

// TernaryExpr selects per row between two branches based on a boolean
// predicate. A null predicate row yields null.
type TernaryExpr struct {
	Predicate Expr
	Truthy    Expr
	Falsy     Expr
}

// Kind implements the [Expr] interface.
func (*TernaryExpr) Kind() ExprKind { return ExprKindTernary }

// String returns the string representation of the conditional.
func (t *TernaryExpr) String() string {
	return fmt.Sprintf("when(%s).then(%s).otherwise(%s)", t.Predicate, t.Truthy, t.Falsy)
}

func (*TernaryExpr) isExpr() {}
