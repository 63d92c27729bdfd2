package physical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// ExpressionType represents the type of expression in the physical plan.
type ExpressionType uint32

const (
	_ ExpressionType = iota // zero-value is an invalid type

	ExprTypeColumn
	ExprTypeLiteral
	ExprTypeUnary
	ExprTypeBinary
	ExprTypeCast
	ExprTypeTernary
	ExprTypeAgg
	ExprTypeFunction
	ExprTypeHorizontal
	ExprTypeFold
	ExprTypeMap
)

// String returns the string representation of the [ExpressionType].
func (t ExpressionType) String() string {
	switch t {
	case ExprTypeColumn:
		return "ColumnExpression"
	case ExprTypeLiteral:
		return "LiteralExpression"
	case ExprTypeUnary:
		return "UnaryExpression"
	case ExprTypeBinary:
		return "BinaryExpression"
	case ExprTypeCast:
		return "CastExpression"
	case ExprTypeTernary:
		return "TernaryExpression"
	case ExprTypeAgg:
		return "AggExpression"
	case ExprTypeFunction:
		return "FunctionExpression"
	case ExprTypeHorizontal:
		return "HorizontalExpression"
	case ExprTypeFold:
		return "FoldExpression"
	case ExprTypeMap:
		return "MapExpression"
	default:
		panic(fmt.Sprintf("unknown expression type %d", t))
	}
}

// Expression is the common interface for all expressions in a physical plan.
// Unlike their logical counterparts, physical expressions are fully resolved:
// column references have been checked against the input schema and every
// node knows its output data type.
type Expression interface {
	fmt.Stringer
	Type() ExpressionType
	DataType() types.DataType
	isExpr()
}

// NamedExpression pairs a resolved expression with its output column name.
// The name is determined once, during resolution, and never changes as
// optimizer rules rewrite the expression underneath.
type NamedExpression struct {
	Name string
	Expression
}

func (e NamedExpression) String() string {
	return fmt.Sprintf("%s=%s", e.Name, e.Expression)
}

// ColumnExpr is a column reference resolved against the input schema. The
// reference stays name-based so optimizer rules can move expressions between
// plan levels without positional fixups.
type ColumnExpr struct {
	Name  string
	Dtype types.DataType
}

func (*ColumnExpr) isExpr() {}

// Type returns the type of the [ColumnExpr].
func (*ColumnExpr) Type() ExpressionType { return ExprTypeColumn }

// DataType returns the resolved output type of the column.
func (e *ColumnExpr) DataType() types.DataType { return e.Dtype }

func (e *ColumnExpr) String() string {
	return fmt.Sprintf("col(%q)", e.Name)
}

// LiteralExpr is a typed constant.
type LiteralExpr struct {
	types.Literal
}

func (*LiteralExpr) isExpr() {}

// Type returns the type of the [LiteralExpr].
func (*LiteralExpr) Type() ExpressionType { return ExprTypeLiteral }

// String returns the string representation of the literal value.
func (e *LiteralExpr) String() string {
	return e.Literal.String()
}

// UnaryExpr applies a unary operator to its input.
type UnaryExpr struct {
	Op    types.UnaryOpKind
	Input Expression
	Dtype types.DataType
}

func (*UnaryExpr) isExpr() {}

// Type returns the type of the [UnaryExpr].
func (*UnaryExpr) Type() ExpressionType { return ExprTypeUnary }

// DataType returns the resolved output type of the operation.
func (e *UnaryExpr) DataType() types.DataType { return e.Dtype }

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Input)
}

// BinaryExpr applies a binary operator to its operands. Operands have been
// coerced to a common type during resolution, so the executor never sees
// mismatched inputs.
type BinaryExpr struct {
	Op          types.BinOpKind
	Left, Right Expression
	Dtype       types.DataType
}

func (*BinaryExpr) isExpr() {}

// Type returns the type of the [BinaryExpr].
func (*BinaryExpr) Type() ExpressionType { return ExprTypeBinary }

// DataType returns the resolved output type of the operation.
func (e *BinaryExpr) DataType() types.DataType { return e.Dtype }

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Op, e.Left, e.Right)
}

// CastExpr converts its input to the target type.
type CastExpr struct {
	Input  Expression
	To     types.DataType
	Strict bool
}

func (*CastExpr) isExpr() {}

// Type returns the type of the [CastExpr].
func (*CastExpr) Type() ExpressionType { return ExprTypeCast }

// DataType returns the cast target type.
func (e *CastExpr) DataType() types.DataType { return e.To }

func (e *CastExpr) String() string {
	return fmt.Sprintf("cast(%s, %s)", e.Input, e.To)
}

// TernaryExpr selects per row between two branches. The branches have been
// coerced to a common type during resolution.
type TernaryExpr struct {
	Predicate Expression
	Truthy    Expression
	Falsy     Expression
	Dtype     types.DataType
}

func (*TernaryExpr) isExpr() {}

// Type returns the type of the [TernaryExpr].
func (*TernaryExpr) Type() ExpressionType { return ExprTypeTernary }

// DataType returns the common type of the two branches.
func (e *TernaryExpr) DataType() types.DataType { return e.Dtype }

func (e *TernaryExpr) String() string {
	return fmt.Sprintf("when(%s, %s, %s)", e.Predicate, e.Truthy, e.Falsy)
}

// AggExpr reduces its input column to a single value per group. Input is nil
// for the bare row-count aggregation, which needs no column.
type AggExpr struct {
	Op    types.AggKind
	Input Expression
	Dtype types.DataType

	Ddof          int
	Quantile      float64
	Interpolation string
}

func (*AggExpr) isExpr() {}

// Type returns the type of the [AggExpr].
func (*AggExpr) Type() ExpressionType { return ExprTypeAgg }

// DataType returns the resolved output type of the aggregation.
func (e *AggExpr) DataType() types.DataType { return e.Dtype }

func (e *AggExpr) String() string {
	if e.Input == nil {
		return fmt.Sprintf("%s()", e.Op)
	}
	return fmt.Sprintf("%s(%s)", e.Op, e.Input)
}

// FuncExpr applies a named built-in function to its inputs.
type FuncExpr struct {
	Op      types.FunctionKind
	Inputs  []Expression
	Options logical.FunctionOptions
	Dtype   types.DataType
}

func (*FuncExpr) isExpr() {}

// Type returns the type of the [FuncExpr].
func (*FuncExpr) Type() ExpressionType { return ExprTypeFunction }

// DataType returns the resolved output type of the function.
func (e *FuncExpr) DataType() types.DataType { return e.Dtype }

func (e *FuncExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, exprList(e.Inputs))
}

// HorizontalExpr folds its inputs row-wise into one output column.
type HorizontalExpr struct {
	Op          types.HorizontalKind
	Inputs      []Expression
	IgnoreNulls bool
	Dtype       types.DataType
}

func (*HorizontalExpr) isExpr() {}

// Type returns the type of the [HorizontalExpr].
func (*HorizontalExpr) Type() ExpressionType { return ExprTypeHorizontal }

// DataType returns the resolved output type of the reduction.
func (e *HorizontalExpr) DataType() types.DataType { return e.Dtype }

func (e *HorizontalExpr) String() string {
	if e.Op == types.HorizontalKindCoalesce {
		return fmt.Sprintf("coalesce(%s)", exprList(e.Inputs))
	}
	return fmt.Sprintf("%s_horizontal(%s)", e.Op, exprList(e.Inputs))
}

// FoldExpr folds whole columns left to right through a user function. The
// output type is unknown until evaluation, since the function body is opaque.
// Cumulative variants emit a struct with one field per input; the field names
// are fixed during resolution.
type FoldExpr struct {
	Op          logical.FoldKind
	Acc         Expression // nil for reduce variants
	Fn          logical.FoldFunction
	Inputs      []Expression
	IncludeInit bool

	// FieldNames are the struct field names of the cumulative variants, one
	// per emitted accumulator state.
	FieldNames []string
	Dtype      types.DataType
}

func (*FoldExpr) isExpr() {}

// Type returns the type of the [FoldExpr].
func (*FoldExpr) Type() ExpressionType { return ExprTypeFold }

// DataType returns the resolved output type of the fold.
func (e *FoldExpr) DataType() types.DataType { return e.Dtype }

func (e *FoldExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, exprList(e.Inputs))
}

// MapExpr is a resolved escape hatch around a user function. The optimizer
// treats it as an opaque barrier: nodes holding one of these never move
// relative to their inputs.
type MapExpr struct {
	Mode   logical.MapMode
	Inputs []Expression

	BatchFn logical.BatchFunction
	ElemFn  logical.ElementFunction

	// Dtype is Unknown when no return type was declared; evaluation then
	// infers it from a first non-null probe.
	Dtype types.DataType

	SkipNulls     bool
	Strategy      string
	PassName      bool
	ReturnsScalar bool
	AggList       bool

	// InputName is the resolved name of the first input, made available to
	// the function when PassName is set.
	InputName string
}

func (*MapExpr) isExpr() {}

// Type returns the type of the [MapExpr].
func (*MapExpr) Type() ExpressionType { return ExprTypeMap }

// DataType returns the declared or unknown output type.
func (e *MapExpr) DataType() types.DataType { return e.Dtype }

func (e *MapExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Mode, exprList(e.Inputs))
}

// Children returns the direct child expressions of an expression node. Leaf
// nodes return nil.
func Children(e Expression) []Expression {
	switch e := e.(type) {
	case NamedExpression:
		return []Expression{e.Expression}
	case *UnaryExpr:
		return []Expression{e.Input}
	case *BinaryExpr:
		return []Expression{e.Left, e.Right}
	case *CastExpr:
		return []Expression{e.Input}
	case *TernaryExpr:
		return []Expression{e.Predicate, e.Truthy, e.Falsy}
	case *AggExpr:
		if e.Input == nil {
			return nil
		}
		return []Expression{e.Input}
	case *FuncExpr:
		return e.Inputs
	case *HorizontalExpr:
		return e.Inputs
	case *FoldExpr:
		if e.Acc == nil {
			return e.Inputs
		}
		return append([]Expression{e.Acc}, e.Inputs...)
	case *MapExpr:
		return e.Inputs
	default:
		return nil
	}
}

// transform rewrites an expression bottom-up. fn receives each node after
// its children have been rewritten and returns the replacement node.
func transform(e Expression, fn func(Expression) Expression) Expression {
	switch e := e.(type) {
	case *UnaryExpr:
		clone := *e
		clone.Input = transform(e.Input, fn)
		return fn(&clone)
	case *BinaryExpr:
		clone := *e
		clone.Left = transform(e.Left, fn)
		clone.Right = transform(e.Right, fn)
		return fn(&clone)
	case *CastExpr:
		clone := *e
		clone.Input = transform(e.Input, fn)
		return fn(&clone)
	case *TernaryExpr:
		clone := *e
		clone.Predicate = transform(e.Predicate, fn)
		clone.Truthy = transform(e.Truthy, fn)
		clone.Falsy = transform(e.Falsy, fn)
		return fn(&clone)
	case *AggExpr:
		clone := *e
		if e.Input != nil {
			clone.Input = transform(e.Input, fn)
		}
		return fn(&clone)
	case *FuncExpr:
		clone := *e
		clone.Inputs = transformAll(e.Inputs, fn)
		return fn(&clone)
	case *HorizontalExpr:
		clone := *e
		clone.Inputs = transformAll(e.Inputs, fn)
		return fn(&clone)
	case *FoldExpr:
		clone := *e
		if e.Acc != nil {
			clone.Acc = transform(e.Acc, fn)
		}
		clone.Inputs = transformAll(e.Inputs, fn)
		return fn(&clone)
	case *MapExpr:
		clone := *e
		clone.Inputs = transformAll(e.Inputs, fn)
		return fn(&clone)
	default:
		return fn(e)
	}
}

func transformAll(exprs []Expression, fn func(Expression) Expression) []Expression {
	out := make([]Expression, len(exprs))
	for i, e := range exprs {
		out[i] = transform(e, fn)
	}
	return out
}

// columnNames collects the distinct column names referenced by the
// expression, in first-seen order.
func columnNames(e Expression) []string {
	var names []string
	seen := make(map[string]struct{})
	walkExpr(e, func(e Expression) {
		if col, ok := e.(*ColumnExpr); ok {
			if _, dup := seen[col.Name]; !dup {
				seen[col.Name] = struct{}{}
				names = append(names, col.Name)
			}
		}
	})
	return names
}

// walkExpr visits e and all of its descendants in depth-first pre-order.
func walkExpr(e Expression, fn func(Expression)) {
	fn(e)
	for _, child := range Children(e) {
		walkExpr(child, fn)
	}
}

// containsOpaque reports whether the expression contains a user-function
// node. Such expressions pin their plan node in place during optimization.
func containsOpaque(e Expression) bool {
	opaque := false
	walkExpr(e, func(e Expression) {
		switch e.(type) {
		case *MapExpr, *FoldExpr:
			opaque = true
		}
	})
	return opaque
}

func exprList(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
