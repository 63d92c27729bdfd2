package physical

import (
	"math"
	"slices"

	"github.com/AmirulAndalib/polars/internal/types"
)

// simplifyExpressions is a rule that folds constant subexpressions and
// removes trivial operations from node expressions. Folding follows the
// engine's runtime semantics, including Kleene logic for boolean operators
// and null propagation elsewhere, so a simplified plan returns the same
// values.
type simplifyExpressions struct {
	plan *Plan
}

// apply implements rule.
func (r *simplifyExpressions) apply(node Node) bool {
	changed := false
	simplify := func(e Expression) Expression {
		out := simplifyExpr(e)
		if out.String() != e.String() {
			changed = true
		}
		return out
	}

	switch node := node.(type) {
	case *Projection:
		for i := range node.Columns {
			node.Columns[i].Expression = simplify(node.Columns[i].Expression)
		}
	case *Filter:
		for i := 0; i < len(node.Predicates); i++ {
			node.Predicates[i] = simplify(node.Predicates[i])
			if isLiteralTrue(node.Predicates[i]) {
				node.Predicates = slices.Delete(node.Predicates, i, i+1)
				i--
				changed = true
			}
		}
	case *HashAggregate:
		for i := range node.Keys {
			node.Keys[i].Expression = simplify(node.Keys[i].Expression)
		}
		for i := range node.Aggs {
			node.Aggs[i].Expression = simplify(node.Aggs[i].Expression)
		}
	case *HashJoin:
		for i := range node.LeftKeys {
			node.LeftKeys[i] = simplify(node.LeftKeys[i])
		}
		for i := range node.RightKeys {
			node.RightKeys[i] = simplify(node.RightKeys[i])
		}
	case *Sort:
		for i := range node.By {
			node.By[i] = simplify(node.By[i])
		}
	}
	return changed
}

var _ rule = (*simplifyExpressions)(nil)

func simplifyExpr(e Expression) Expression {
	return transform(e, func(e Expression) Expression {
		switch e := e.(type) {
		case *CastExpr:
			return simplifyCast(e)
		case *UnaryExpr:
			return simplifyUnary(e)
		case *BinaryExpr:
			return simplifyBinary(e)
		case *TernaryExpr:
			if lit, ok := e.Predicate.(*LiteralExpr); ok {
				// A null predicate selects the otherwise branch, like any
				// non-true value.
				if b, isBool := lit.Value().(bool); isBool && b {
					return e.Truthy
				}
				return e.Falsy
			}
		}
		return e
	})
}

func simplifyCast(e *CastExpr) Expression {
	if e.Input.DataType().Equal(e.To) {
		return e.Input
	}
	if lit, ok := e.Input.(*LiteralExpr); ok {
		if out, ok := castLiteral(lit.Literal, e.To); ok {
			return &LiteralExpr{Literal: out}
		}
	}
	return e
}

func simplifyUnary(e *UnaryExpr) Expression {
	switch e.Op {
	case types.UnaryOpKindNot:
		if inner, ok := e.Input.(*UnaryExpr); ok && inner.Op == types.UnaryOpKindNot {
			return inner.Input
		}
		if lit, ok := e.Input.(*LiteralExpr); ok {
			if lit.IsNull() {
				return nullLiteral(e.Dtype)
			}
			if b, ok := lit.Value().(bool); ok {
				return boolLiteral(!b)
			}
		}
	case types.UnaryOpKindNeg:
		if inner, ok := e.Input.(*UnaryExpr); ok && inner.Op == types.UnaryOpKindNeg {
			return inner.Input
		}
		if lit, ok := e.Input.(*LiteralExpr); ok {
			switch v := lit.Value().(type) {
			case nil:
				return nullLiteral(e.Dtype)
			case int64:
				if v != math.MinInt64 {
					return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, -v)}
				}
			case float64:
				return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, -v)}
			}
		}
	case types.UnaryOpKindIsNull:
		if lit, ok := e.Input.(*LiteralExpr); ok {
			return boolLiteral(lit.IsNull())
		}
	case types.UnaryOpKindIsNotNull:
		if lit, ok := e.Input.(*LiteralExpr); ok {
			return boolLiteral(!lit.IsNull())
		}
	}
	return e
}

func simplifyBinary(e *BinaryExpr) Expression {
	l, lok := e.Left.(*LiteralExpr)
	r, rok := e.Right.(*LiteralExpr)

	// Boolean identities hold under Kleene logic: false absorbs a null
	// conjunct and true absorbs a null disjunct.
	switch e.Op {
	case types.BinOpKindAnd:
		if lok {
			if b, ok := l.Value().(bool); ok {
				if !b {
					return boolLiteral(false)
				}
				return e.Right
			}
		}
		if rok {
			if b, ok := r.Value().(bool); ok {
				if !b {
					return boolLiteral(false)
				}
				return e.Left
			}
		}
	case types.BinOpKindOr:
		if lok {
			if b, ok := l.Value().(bool); ok {
				if b {
					return boolLiteral(true)
				}
				return e.Right
			}
		}
		if rok {
			if b, ok := r.Value().(bool); ok {
				if b {
					return boolLiteral(true)
				}
				return e.Left
			}
		}
	}

	if lok && rok {
		if out, ok := foldBinary(e, l.Literal, r.Literal); ok {
			return out
		}
	}
	return e
}

func foldBinary(e *BinaryExpr, l, r types.Literal) (Expression, bool) {
	switch e.Op {
	case types.BinOpKindAnd, types.BinOpKindOr:
		return foldKleene(e.Op, l, r)
	}

	if l.IsNull() || r.IsNull() {
		return nullLiteral(e.Dtype), true
	}

	switch e.Op {
	case types.BinOpKindEq, types.BinOpKindNeq, types.BinOpKindGt,
		types.BinOpKindGte, types.BinOpKindLt, types.BinOpKindLte:
		cmp, ok := compareLiterals(l, r)
		if !ok {
			return nil, false
		}
		switch e.Op {
		case types.BinOpKindEq:
			return boolLiteral(cmp == 0), true
		case types.BinOpKindNeq:
			return boolLiteral(cmp != 0), true
		case types.BinOpKindGt:
			return boolLiteral(cmp > 0), true
		case types.BinOpKindGte:
			return boolLiteral(cmp >= 0), true
		case types.BinOpKindLt:
			return boolLiteral(cmp < 0), true
		default:
			return boolLiteral(cmp <= 0), true
		}

	case types.BinOpKindXor:
		lv, lb := l.Value().(bool)
		rv, rb := r.Value().(bool)
		if !lb || !rb {
			return nil, false
		}
		return boolLiteral(lv != rv), true
	}

	return foldArithmetic(e, l, r)
}

// foldKleene evaluates three-valued boolean conjunction and disjunction on
// two literals, where a missing value only decides the result when the
// other operand already does.
func foldKleene(op types.BinOpKind, l, r types.Literal) (Expression, bool) {
	lv, lok := l.Value().(bool)
	rv, rok := r.Value().(bool)
	if (!l.IsNull() && !lok) || (!r.IsNull() && !rok) {
		return nil, false
	}
	if op == types.BinOpKindAnd {
		switch {
		case lok && !lv, rok && !rv:
			return boolLiteral(false), true
		case l.IsNull() || r.IsNull():
			return nullLiteral(types.Bool), true
		default:
			return boolLiteral(true), true
		}
	}
	switch {
	case lok && lv, rok && rv:
		return boolLiteral(true), true
	case l.IsNull() || r.IsNull():
		return nullLiteral(types.Bool), true
	default:
		return boolLiteral(false), true
	}
}

func foldArithmetic(e *BinaryExpr, l, r types.Literal) (Expression, bool) {
	switch lv := l.Value().(type) {
	case int64:
		rv, ok := r.Value().(int64)
		if !ok {
			return nil, false
		}
		return foldInt(e, lv, rv)
	case uint64:
		rv, ok := r.Value().(uint64)
		if !ok {
			return nil, false
		}
		return foldUint(e, lv, rv)
	case float64:
		rv, ok := r.Value().(float64)
		if !ok {
			return nil, false
		}
		return foldFloat(e, lv, rv)
	case string:
		rv, ok := r.Value().(string)
		if !ok || e.Op != types.BinOpKindAdd {
			return nil, false
		}
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, lv + rv)}, true
	}
	return nil, false
}

func foldInt(e *BinaryExpr, a, b int64) (Expression, bool) {
	switch e.Op {
	case types.BinOpKindAdd:
		return intLiteral(e.Dtype, a+b), true
	case types.BinOpKindSub:
		return intLiteral(e.Dtype, a-b), true
	case types.BinOpKindMul:
		return intLiteral(e.Dtype, a*b), true
	case types.BinOpKindFloorDiv:
		if b == 0 {
			return nullLiteral(e.Dtype), true
		}
		return intLiteral(e.Dtype, floorDivInt(a, b)), true
	case types.BinOpKindMod:
		if b == 0 {
			return nullLiteral(e.Dtype), true
		}
		return intLiteral(e.Dtype, a-floorDivInt(a, b)*b), true
	}
	return nil, false
}

func foldUint(e *BinaryExpr, a, b uint64) (Expression, bool) {
	switch e.Op {
	case types.BinOpKindAdd:
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, a + b)}, true
	case types.BinOpKindMul:
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, a * b)}, true
	case types.BinOpKindSub:
		if b > a {
			return nil, false
		}
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, a - b)}, true
	case types.BinOpKindFloorDiv:
		if b == 0 {
			return nullLiteral(e.Dtype), true
		}
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, a / b)}, true
	case types.BinOpKindMod:
		if b == 0 {
			return nullLiteral(e.Dtype), true
		}
		return &LiteralExpr{Literal: types.NewTypedLiteral(e.Dtype, a % b)}, true
	}
	return nil, false
}

func foldFloat(e *BinaryExpr, a, b float64) (Expression, bool) {
	switch e.Op {
	case types.BinOpKindAdd:
		return floatLiteral(e.Dtype, a+b), true
	case types.BinOpKindSub:
		return floatLiteral(e.Dtype, a-b), true
	case types.BinOpKindMul:
		return floatLiteral(e.Dtype, a*b), true
	case types.BinOpKindDiv:
		return floatLiteral(e.Dtype, a/b), true
	case types.BinOpKindFloorDiv:
		return floatLiteral(e.Dtype, math.Floor(a/b)), true
	case types.BinOpKindMod:
		if b == 0 {
			return floatLiteral(e.Dtype, math.NaN()), true
		}
		return floatLiteral(e.Dtype, a-math.Floor(a/b)*b), true
	case types.BinOpKindPow:
		return floatLiteral(e.Dtype, math.Pow(a, b)), true
	}
	return nil, false
}

// floorDivInt divides rounding toward negative infinity, matching the
// runtime integer division semantics.
func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func compareLiterals(l, r types.Literal) (int, bool) {
	switch lv := l.Value().(type) {
	case int64:
		if rv, ok := r.Value().(int64); ok {
			return compare(lv, rv), true
		}
	case uint64:
		if rv, ok := r.Value().(uint64); ok {
			return compare(lv, rv), true
		}
	case float64:
		if rv, ok := r.Value().(float64); ok {
			if math.IsNaN(lv) || math.IsNaN(rv) {
				// NaN compares false against everything; no single
				// ordering result can express that.
				return 0, false
			}
			return compare(lv, rv), true
		}
	case string:
		if rv, ok := r.Value().(string); ok {
			return compare(lv, rv), true
		}
	case bool:
		if rv, ok := r.Value().(bool); ok {
			return compare(boolToInt(lv), boolToInt(rv)), true
		}
	}
	return 0, false
}

func compare[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// castLiteral converts a literal to the target type at plan time. Lossy or
// out-of-range conversions report false and stay in the plan for the
// runtime cast kernel, which knows the configured strictness.
func castLiteral(l types.Literal, to types.DataType) (types.Literal, bool) {
	if l.IsNull() {
		return types.NewTypedLiteral(to, nil), true
	}

	switch to.Kind() {
	case types.KindFloat64:
		if v, ok := literalAsFloat(l); ok {
			return types.NewTypedLiteral(to, v), true
		}
	case types.KindFloat32:
		if v, ok := literalAsFloat(l); ok {
			return types.NewTypedLiteral(to, float64(float32(v))), true
		}
	case types.KindInt8, types.KindInt16, types.KindInt32, types.KindInt64:
		if v, ok := literalAsInt(l); ok && intFits(v, to.Kind()) {
			return types.NewTypedLiteral(to, v), true
		}
	case types.KindUInt8, types.KindUInt16, types.KindUInt32, types.KindUInt64:
		if v, ok := literalAsUint(l); ok && uintFits(v, to.Kind()) {
			return types.NewTypedLiteral(to, v), true
		}
	case types.KindBool:
		switch v := l.Value().(type) {
		case int64:
			return types.NewTypedLiteral(to, v != 0), true
		case uint64:
			return types.NewTypedLiteral(to, v != 0), true
		case float64:
			return types.NewTypedLiteral(to, v != 0), true
		}
	}
	return types.Literal{}, false
}

func literalAsFloat(l types.Literal) (float64, bool) {
	switch v := l.Value().(type) {
	case int64:
		if l.DataType().IsTemporal() {
			return 0, false
		}
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func literalAsInt(l types.Literal) (int64, bool) {
	switch v := l.Value().(type) {
	case int64:
		if l.DataType().IsTemporal() {
			return 0, false
		}
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case bool:
		return boolToInt(v), true
	}
	return 0, false
}

func literalAsUint(l types.Literal) (uint64, bool) {
	switch v := l.Value().(type) {
	case int64:
		if l.DataType().IsTemporal() || v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint64:
		return v, true
	case float64:
		if v != math.Trunc(v) || v < 0 || v >= math.MaxUint64 {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}

func intFits(v int64, kind types.Kind) bool {
	switch kind {
	case types.KindInt8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case types.KindInt16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case types.KindInt32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return true
	}
}

func uintFits(v uint64, kind types.Kind) bool {
	switch kind {
	case types.KindUInt8:
		return v <= math.MaxUint8
	case types.KindUInt16:
		return v <= math.MaxUint16
	case types.KindUInt32:
		return v <= math.MaxUint32
	default:
		return true
	}
}

func intLiteral(dtype types.DataType, v int64) Expression {
	return &LiteralExpr{Literal: types.NewTypedLiteral(dtype, v)}
}

func floatLiteral(dtype types.DataType, v float64) Expression {
	if dtype.Kind() == types.KindFloat32 {
		v = float64(float32(v))
	}
	return &LiteralExpr{Literal: types.NewTypedLiteral(dtype, v)}
}

func boolLiteral(v bool) Expression {
	return &LiteralExpr{Literal: types.NewTypedLiteral(types.Bool, v)}
}

func nullLiteral(dtype types.DataType) Expression {
	return &LiteralExpr{Literal: types.NewTypedLiteral(dtype, nil)}
}

func isLiteralTrue(e Expression) bool {
	if lit, ok := e.(*LiteralExpr); ok {
		if b, ok := lit.Value().(bool); ok {
			return b
		}
	}
	return false
}
