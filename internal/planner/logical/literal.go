package logical

import (
	"github.com/AmirulAndalib/polars/internal/types"
)

// LiteralExpr holds a typed constant value.
type LiteralExpr struct {
	Literal types.Literal
}

// NewLiteral creates a literal expression from a Go value. A nil value
// produces the null literal.
func NewLiteral(value any) (*LiteralExpr, error) {
	lit, err := types.NewLiteral(value)
	if err != nil {
		return nil, err
	}
	return &LiteralExpr{Literal: lit}, nil
}

// NewTypedLiteral creates a literal expression carrying an already
// constructed literal.
func NewTypedLiteral(lit types.Literal) *LiteralExpr {
	return &LiteralExpr{Literal: lit}
}

// Kind implements the [Expr] interface.
func (*LiteralExpr) Kind() ExprKind { return ExprKindLiteral }

// String returns the string representation of the literal value.
func (l *LiteralExpr) String() string {
	return l.Literal.String()
}

func (*LiteralExpr) isExpr() {}
