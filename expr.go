package polars

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// Expr is a node in an expression graph. Expressions are pure values:
// constructing one records what to compute and never touches data, and
// every derived expression wraps its inputs without mutating them, so
// subtrees are freely shared between plans.
//
// Every expression has a deterministic output name: the name of its first
// referenced column, unless renamed with [Expr.Alias]. Column references
// resolve against the frame schema when the plan is built, not at
// construction, so a dangling name surfaces as [ErrColumnNotFound] only at
// collect time.
//
// The zero Expr is invalid; build expressions from [Col], [Lit], and the
// package-level constructors.
type Expr struct {
	node logical.Expr
}

func wrapExpr(node logical.Expr) Expr { return Expr{node: node} }

// String returns the expression in its plan representation.
func (e Expr) String() string { return e.node.String() }

func unwrapExprs(exprs []Expr) []logical.Expr {
	nodes := make([]logical.Expr, len(exprs))
	for i, e := range exprs {
		nodes[i] = e.node
	}
	return nodes
}

// Col refers to the named column. The name "*" selects every column, and a
// pattern anchored as ^...$ selects all columns matching the regular
// expression.
func Col(name string) Expr {
	switch {
	case name == "*":
		return wrapExpr(logical.NewWildcard())
	case logical.IsRegexProjection(name):
		return wrapExpr(logical.NewSelector(logical.Selector{Kind: logical.SelectorByRegex, Pattern: name}))
	default:
		return wrapExpr(logical.NewColumnRef(name))
	}
}

// Cols refers to several columns at once. An expression built on it
// multiplies into one expression per column when the plan is resolved.
func Cols(names ...string) Expr {
	return wrapExpr(logical.NewSelector(logical.Selector{Kind: logical.SelectorByName, Names: names}))
}

// All selects every column of the input.
func All() Expr { return wrapExpr(logical.NewWildcard()) }

// ByDtype selects all columns of the given types, in schema order.
func ByDtype(dtypes ...DataType) Expr {
	return wrapExpr(logical.NewSelector(logical.Selector{Kind: logical.SelectorByDtype, Dtypes: dtypes}))
}

// Element is an alias for the value being evaluated in an element context.
// It resolves only where such a context binds it; anywhere else the empty
// column name fails with [ErrColumnNotFound].
func Element() Expr { return Col("") }

// Exclude selects every column except the named ones. Names absent from
// the schema are ignored.
func Exclude(names ...string) Expr {
	return wrapExpr(logical.NewSelector(logical.Selector{
		Kind:         logical.SelectorExclude,
		Inner:        &logical.Selector{Kind: logical.SelectorAll},
		ExcludeNames: names,
	}))
}

// Lit embeds a constant value. Supported Go types are booleans, integers,
// unsigned integers, floats, strings, time.Time (datetime in microseconds),
// time.Duration, and nil for the typed null. Any other type is a
// programming error and panics at construction.
//
// The output name of a literal is "literal".
func Lit(value any) Expr {
	node, err := logical.NewLiteral(value)
	if err != nil {
		panic(fmt.Sprintf("polars: Lit: %v", err))
	}
	return wrapExpr(node)
}

// Alias renames the expression's output column without altering values.
func (e Expr) Alias(name string) Expr {
	return wrapExpr(&logical.AliasExpr{Input: e.node, Name: name})
}

// Cast converts the expression to the given type. Values that do not fit
// fail the collect with [ErrCompute].
func (e Expr) Cast(dtype DataType) Expr {
	return wrapExpr(&logical.CastExpr{Input: e.node, To: dtype, Strict: true})
}

// CastOrNull converts the expression to the given type, turning values
// that do not fit into nulls instead of failing.
func (e Expr) CastOrNull(dtype DataType) Expr {
	return wrapExpr(&logical.CastExpr{Input: e.node, To: dtype, Strict: false})
}

// Exclude narrows a selector expression, dropping the named columns from
// its expansion. It panics when the receiver is not a selector such as
// [All], [Cols], or [ByDtype].
func (e Expr) Exclude(names ...string) Expr {
	sel, ok := e.node.(*logical.SelectorExpr)
	if !ok {
		panic("polars: Exclude requires a selector expression such as All() or Cols()")
	}
	inner := sel.Selector
	return wrapExpr(logical.NewSelector(logical.Selector{
		Kind:         logical.SelectorExclude,
		Inner:        &inner,
		ExcludeNames: names,
	}))
}

// ExcludeDtypes narrows a selector expression, dropping all columns of the
// given types from its expansion. It panics when the receiver is not a
// selector.
func (e Expr) ExcludeDtypes(dtypes ...DataType) Expr {
	sel, ok := e.node.(*logical.SelectorExpr)
	if !ok {
		panic("polars: ExcludeDtypes requires a selector expression such as All() or Cols()")
	}
	inner := sel.Selector
	return wrapExpr(logical.NewSelector(logical.Selector{
		Kind:          logical.SelectorExclude,
		Inner:         &inner,
		ExcludeDtypes: dtypes,
	}))
}

func (e Expr) binary(op types.BinOpKind, other Expr) Expr {
	return wrapExpr(&logical.BinaryExpr{Op: op, Left: e.node, Right: other.node})
}

func (e Expr) unary(op types.UnaryOpKind) Expr {
	return wrapExpr(&logical.UnaryExpr{Op: op, Input: e.node})
}

// Add returns e + other. Integer operands widen along the supertype
// lattice; string operands concatenate.
func (e Expr) Add(other Expr) Expr { return e.binary(types.BinOpKindAdd, other) }

// Sub returns e - other.
func (e Expr) Sub(other Expr) Expr { return e.binary(types.BinOpKindSub, other) }

// Mul returns e * other.
func (e Expr) Mul(other Expr) Expr { return e.binary(types.BinOpKindMul, other) }

// Div returns e / other. Integer operands produce a float result.
func (e Expr) Div(other Expr) Expr { return e.binary(types.BinOpKindDiv, other) }

// FloorDiv returns e / other rounded toward negative infinity.
func (e Expr) FloorDiv(other Expr) Expr { return e.binary(types.BinOpKindFloorDiv, other) }

// Mod returns e modulo other.
func (e Expr) Mod(other Expr) Expr { return e.binary(types.BinOpKindMod, other) }

// Pow returns e raised to other.
func (e Expr) Pow(other Expr) Expr { return e.binary(types.BinOpKindPow, other) }

// Eq returns e == other.
func (e Expr) Eq(other Expr) Expr { return e.binary(types.BinOpKindEq, other) }

// Neq returns e != other.
func (e Expr) Neq(other Expr) Expr { return e.binary(types.BinOpKindNeq, other) }

// Gt returns e > other.
func (e Expr) Gt(other Expr) Expr { return e.binary(types.BinOpKindGt, other) }

// Gte returns e >= other.
func (e Expr) Gte(other Expr) Expr { return e.binary(types.BinOpKindGte, other) }

// Lt returns e < other.
func (e Expr) Lt(other Expr) Expr { return e.binary(types.BinOpKindLt, other) }

// Lte returns e <= other.
func (e Expr) Lte(other Expr) Expr { return e.binary(types.BinOpKindLte, other) }

// And returns the Kleene conjunction of two boolean expressions.
func (e Expr) And(other Expr) Expr { return e.binary(types.BinOpKindAnd, other) }

// Or returns the Kleene disjunction of two boolean expressions.
func (e Expr) Or(other Expr) Expr { return e.binary(types.BinOpKindOr, other) }

// Xor returns the exclusive or of two boolean expressions.
func (e Expr) Xor(other Expr) Expr { return e.binary(types.BinOpKindXor, other) }

// Not negates a boolean expression. Nulls stay null.
func (e Expr) Not() Expr { return e.unary(types.UnaryOpKindNot) }

// Neg returns the arithmetic negation.
func (e Expr) Neg() Expr { return e.unary(types.UnaryOpKindNeg) }

// IsNull returns a boolean column marking null rows.
func (e Expr) IsNull() Expr { return e.unary(types.UnaryOpKindIsNull) }

// IsNotNull returns a boolean column marking non-null rows.
func (e Expr) IsNotNull() Expr { return e.unary(types.UnaryOpKindIsNotNull) }

// FillNull replaces null rows with the value expression, coercing both
// sides to their common supertype.
func (e Expr) FillNull(value Expr) Expr {
	return wrapExpr(logical.NewFunction(types.FunctionKindFillNull, []logical.Expr{e.node, value.node}))
}
