package physical

import (
	"fmt"

	"github.com/grafana/regexp"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// resolver binds logical expressions to a concrete input schema. It is the
// single place where column selectors expand, output names are fixed, and
// types are inferred and coerced. Everything downstream of the resolver
// operates on fully typed expressions.
type resolver struct {
	schema types.Schema
	flags  OptimizationFlags
}

// resolveExprs expands and resolves an expression list, rejecting duplicate
// output names.
func (r *resolver) resolveExprs(exprs []logical.Expr) ([]NamedExpression, error) {
	expanded, err := expandExprs(r.schema, exprs)
	if err != nil {
		return nil, err
	}

	out := make([]NamedExpression, 0, len(expanded))
	seen := make(map[string]struct{}, len(expanded))
	for _, e := range expanded {
		named, err := r.resolveNamed(e)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[named.Name]; dup {
			return nil, fmt.Errorf("%w: the name %q is duplicate", errors.ErrDuplicate, named.Name)
		}
		seen[named.Name] = struct{}{}
		out = append(out, named)
	}
	return out, nil
}

// resolveNamed resolves a single already-expanded expression together with
// its deterministic output name.
func (r *resolver) resolveNamed(e logical.Expr) (NamedExpression, error) {
	expr, err := r.resolve(e)
	if err != nil {
		return NamedExpression{}, err
	}
	return NamedExpression{Name: outputName(e), Expression: expr}, nil
}

// outputName determines the output column name of an expression. The name of
// a combining node is the name of its first argument as written, so it is
// stable under expression rewrites and independent of evaluation.
func outputName(e logical.Expr) string {
	switch e := e.(type) {
	case *logical.ColumnRef:
		return e.Column
	case *logical.LiteralExpr:
		return "literal"
	case *logical.AliasExpr:
		return e.Name
	case *logical.UnaryExpr:
		return outputName(e.Input)
	case *logical.BinaryExpr:
		return outputName(e.Left)
	case *logical.CastExpr:
		return outputName(e.Input)
	case *logical.TernaryExpr:
		return outputName(e.Truthy)
	case *logical.AggExpr:
		if e.Op == types.AggKindLen {
			return "len"
		}
		return outputName(e.Input)
	case *logical.FunctionExpr:
		if len(e.Inputs) == 0 {
			return e.Op.String()
		}
		return outputName(e.Inputs[0])
	case *logical.HorizontalExpr:
		if len(e.Inputs) == 0 {
			return e.Op.String()
		}
		return outputName(e.Inputs[0])
	case *logical.FoldExpr:
		switch e.Op {
		case logical.FoldKindCumFold:
			return "cum_fold"
		case logical.FoldKindCumReduce:
			return "cum_reduce"
		case logical.FoldKindFold:
			return outputName(e.Acc)
		default:
			return outputName(e.Inputs[0])
		}
	case *logical.MapExpr:
		if len(e.Inputs) == 0 {
			return e.Mode.String()
		}
		return outputName(e.Inputs[0])
	default:
		return ""
	}
}

// resolve converts a logical expression into a fully typed physical one.
// Selectors must have been expanded beforehand.
func (r *resolver) resolve(e logical.Expr) (Expression, error) {
	switch e := e.(type) {
	case *logical.ColumnRef:
		idx := r.schema.Index(e.Column)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, e.Column)
		}
		return &ColumnExpr{Name: e.Column, Dtype: r.schema.Fields[idx].Type}, nil

	case *logical.SelectorExpr:
		return nil, fmt.Errorf("%w: unexpanded selector %s", errors.ErrCompute, e)

	case *logical.LiteralExpr:
		return &LiteralExpr{Literal: e.Literal}, nil

	case *logical.AliasExpr:
		return r.resolve(e.Input)

	case *logical.UnaryExpr:
		return r.resolveUnary(e)

	case *logical.BinaryExpr:
		return r.resolveBinary(e)

	case *logical.CastExpr:
		input, err := r.resolve(e.Input)
		if err != nil {
			return nil, err
		}
		return &CastExpr{Input: input, To: e.To, Strict: e.Strict}, nil

	case *logical.TernaryExpr:
		return r.resolveTernary(e)

	case *logical.AggExpr:
		return r.resolveAgg(e)

	case *logical.FunctionExpr:
		return r.resolveFunction(e)

	case *logical.HorizontalExpr:
		return r.resolveHorizontal(e)

	case *logical.FoldExpr:
		return r.resolveFold(e)

	case *logical.MapExpr:
		return r.resolveMap(e)

	default:
		return nil, fmt.Errorf("%w: expression %s", errors.ErrNotImplemented, e)
	}
}

func (r *resolver) resolveUnary(e *logical.UnaryExpr) (Expression, error) {
	input, err := r.resolve(e.Input)
	if err != nil {
		return nil, err
	}

	var dtype types.DataType
	switch e.Op {
	case types.UnaryOpKindNot:
		if !input.DataType().Equal(types.Bool) && !input.DataType().IsNull() {
			return nil, fmt.Errorf("%w: NOT requires a boolean operand, got %s", errors.ErrCompute, input.DataType())
		}
		dtype = types.Bool
	case types.UnaryOpKindNeg:
		in := input.DataType()
		switch {
		case in.IsUnsignedInteger():
			// Negating an unsigned value yields the signed type of the
			// same width.
			dtype = signedOf(in)
			input = castTo(input, dtype)
		case in.IsNumeric() || in.IsNull():
			dtype = in
		default:
			return nil, fmt.Errorf("%w: cannot negate dtype %s", errors.ErrCompute, in)
		}
	case types.UnaryOpKindIsNull, types.UnaryOpKindIsNotNull:
		dtype = types.Bool
	default:
		return nil, fmt.Errorf("%w: unary operator %s", errors.ErrNotImplemented, e.Op)
	}
	return &UnaryExpr{Op: e.Op, Input: input, Dtype: dtype}, nil
}

func signedOf(t types.DataType) types.DataType {
	switch t.Kind() {
	case types.KindUInt8:
		return types.Int8
	case types.KindUInt16:
		return types.Int16
	case types.KindUInt32:
		return types.Int32
	default:
		return types.Int64
	}
}

func (r *resolver) resolveBinary(e *logical.BinaryExpr) (Expression, error) {
	left, err := r.resolve(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := r.resolve(e.Right)
	if err != nil {
		return nil, err
	}

	lt, rt := left.DataType(), right.DataType()

	switch {
	case e.Op.IsComparison():
		if isStringNumericPair(lt, rt) {
			other := lt
			if other.Kind() == types.KindString {
				other = rt
			}
			return nil, fmt.Errorf("%w: cannot compare string with numeric type (%s)", errors.ErrCompute, other)
		}
		common, err := r.commonType(lt, rt)
		if err != nil {
			return nil, err
		}
		left, right = castTo(left, common), castTo(right, common)
		return &BinaryExpr{Op: e.Op, Left: left, Right: right, Dtype: types.Bool}, nil

	case e.Op.IsLogical():
		for _, t := range []types.DataType{lt, rt} {
			if !t.Equal(types.Bool) && !t.IsNull() {
				return nil, fmt.Errorf("%w: %s requires boolean operands, got %s", errors.ErrCompute, e.Op, t)
			}
		}
		return &BinaryExpr{Op: e.Op, Left: castTo(left, types.Bool), Right: castTo(right, types.Bool), Dtype: types.Bool}, nil

	default:
		return r.resolveArithmetic(e.Op, left, right)
	}
}

func (r *resolver) resolveArithmetic(op types.BinOpKind, left, right Expression) (Expression, error) {
	lt, rt := left.DataType(), right.DataType()

	// String concatenation is the only string arithmetic.
	if lt.Kind() == types.KindString && rt.Kind() == types.KindString {
		if op != types.BinOpKindAdd {
			return nil, fmt.Errorf("%w: %s not supported for dtype str", errors.ErrCompute, op)
		}
		return &BinaryExpr{Op: op, Left: left, Right: right, Dtype: types.String}, nil
	}

	if dtype, ok := temporalArithmeticType(op, lt, rt); ok {
		return &BinaryExpr{Op: op, Left: left, Right: right, Dtype: dtype}, nil
	}

	common, err := r.commonType(lt, rt)
	if err != nil {
		return nil, err
	}
	if !common.IsNumeric() && !common.IsNull() {
		return nil, fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, common)
	}
	left, right = castTo(left, common), castTo(right, common)

	dtype := common
	switch op {
	case types.BinOpKindDiv:
		// True division always yields a float.
		if !common.IsFloat() {
			dtype = types.Float64
		}
	case types.BinOpKindPow:
		if common.IsInteger() {
			dtype = types.Int64
		}
	}
	return &BinaryExpr{Op: op, Left: left, Right: right, Dtype: dtype}, nil
}

// temporalArithmeticType resolves the special cases of temporal arithmetic.
func temporalArithmeticType(op types.BinOpKind, lt, rt types.DataType) (types.DataType, bool) {
	lk, rk := lt.Kind(), rt.Kind()
	switch op {
	case types.BinOpKindSub:
		switch {
		case lk == types.KindDatetime && rk == types.KindDatetime:
			st, _ := types.Supertype(lt, rt)
			return types.Duration(st.Unit()), true
		case lk == types.KindDate && rk == types.KindDate:
			return types.Duration(types.UnitMilliseconds), true
		case lk == types.KindDatetime && rk == types.KindDuration:
			return lt, true
		case lk == types.KindDuration && rk == types.KindDuration:
			st, _ := types.Supertype(lt, rt)
			return st, true
		}
	case types.BinOpKindAdd:
		switch {
		case lk == types.KindDatetime && rk == types.KindDuration:
			return lt, true
		case lk == types.KindDuration && rk == types.KindDatetime:
			return rt, true
		case lk == types.KindDuration && rk == types.KindDuration:
			st, _ := types.Supertype(lt, rt)
			return st, true
		}
	}
	return types.Invalid, false
}

func (r *resolver) resolveTernary(e *logical.TernaryExpr) (Expression, error) {
	pred, err := r.resolve(e.Predicate)
	if err != nil {
		return nil, err
	}
	if !pred.DataType().Equal(types.Bool) && !pred.DataType().IsNull() {
		return nil, fmt.Errorf("%w: when predicate must be of type bool, got %s", errors.ErrCompute, pred.DataType())
	}
	truthy, err := r.resolve(e.Truthy)
	if err != nil {
		return nil, err
	}
	falsy, err := r.resolve(e.Falsy)
	if err != nil {
		return nil, err
	}

	common, err := r.commonType(truthy.DataType(), falsy.DataType())
	if err != nil {
		return nil, err
	}
	return &TernaryExpr{
		Predicate: castTo(pred, types.Bool),
		Truthy:    castTo(truthy, common),
		Falsy:     castTo(falsy, common),
		Dtype:     common,
	}, nil
}

func (r *resolver) resolveAgg(e *logical.AggExpr) (Expression, error) {
	if e.Op == types.AggKindLen {
		return &AggExpr{Op: e.Op, Dtype: types.IdxType}, nil
	}

	input, err := r.resolve(e.Input)
	if err != nil {
		return nil, err
	}
	dtype, err := aggDataType(e.Op, input.DataType())
	if err != nil {
		return nil, err
	}

	if e.Op == types.AggKindQuantile && !validInterpolation(e.Interpolation) {
		return nil, fmt.Errorf("%w: interpolation must be one of %v, got %q",
			errors.ErrInvalidParameter, logical.Interpolations, e.Interpolation)
	}
	if e.Ddof < 0 {
		return nil, fmt.Errorf("%w: ddof must be non-negative, got %d", errors.ErrInvalidParameter, e.Ddof)
	}

	return &AggExpr{
		Op:            e.Op,
		Input:         input,
		Dtype:         dtype,
		Ddof:          e.Ddof,
		Quantile:      e.Quantile,
		Interpolation: e.Interpolation,
	}, nil
}

func validInterpolation(s string) bool {
	for _, v := range logical.Interpolations {
		if s == v {
			return true
		}
	}
	return false
}

// aggDataType returns the output type of a vertical aggregation over a
// column of the given type.
func aggDataType(op types.AggKind, in types.DataType) (types.DataType, error) {
	if in.IsNull() {
		switch op {
		case types.AggKindCount, types.AggKindNUnique, types.AggKindApproxNUnique:
			return types.IdxType, nil
		case types.AggKindImplode:
			return types.List(in), nil
		default:
			return types.Null, nil
		}
	}

	switch op {
	case types.AggKindSum:
		switch {
		case in.Kind() == types.KindBool:
			return types.IdxType, nil
		case in.IsSignedInteger():
			return types.Int64, nil
		case in.IsUnsignedInteger():
			return types.UInt64, nil
		case in.IsFloat(), in.Kind() == types.KindDuration:
			return in, nil
		default:
			return types.Invalid, fmt.Errorf("%w: sum not supported for dtype %s", errors.ErrCompute, in)
		}
	case types.AggKindMean, types.AggKindMedian:
		switch {
		case in.Equal(types.Float32):
			return types.Float32, nil
		case in.IsNumeric() || in.Kind() == types.KindBool:
			return types.Float64, nil
		case in.IsTemporal():
			return in, nil
		default:
			return types.Invalid, fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, in)
		}
	case types.AggKindQuantile:
		switch {
		case in.Equal(types.Float32):
			return types.Float32, nil
		case in.IsNumeric() || in.Kind() == types.KindBool:
			return types.Float64, nil
		default:
			return types.Invalid, fmt.Errorf("%w: quantile not supported for dtype %s", errors.ErrCompute, in)
		}
	case types.AggKindStd, types.AggKindVar:
		switch {
		case in.Equal(types.Float32):
			return types.Float32, nil
		case in.IsNumeric():
			return types.Float64, nil
		default:
			return types.Invalid, fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, in)
		}
	case types.AggKindMin, types.AggKindMax, types.AggKindFirst, types.AggKindLast:
		return in, nil
	case types.AggKindCount, types.AggKindNUnique, types.AggKindApproxNUnique:
		return types.IdxType, nil
	case types.AggKindImplode:
		return types.List(in), nil
	default:
		return types.Invalid, fmt.Errorf("%w: aggregation %s", errors.ErrNotImplemented, op)
	}
}

func (r *resolver) resolveFunction(e *logical.FunctionExpr) (Expression, error) {
	inputs := make([]Expression, len(e.Inputs))
	for i, in := range e.Inputs {
		resolved, err := r.resolve(in)
		if err != nil {
			return nil, err
		}
		inputs[i] = resolved
	}

	out := &FuncExpr{Op: e.Op, Inputs: inputs, Options: e.Options}

	switch e.Op {
	case types.FunctionKindCumCount:
		out.Dtype = types.IdxType

	case types.FunctionKindCumSum:
		in := inputs[0].DataType()
		dtype, err := aggDataType(types.AggKindSum, in)
		if err != nil {
			return nil, err
		}
		out.Dtype = dtype

	case types.FunctionKindHead, types.FunctionKindTail:
		if e.Options.N < 0 {
			return nil, fmt.Errorf("%w: n must be non-negative, got %d", errors.ErrInvalidParameter, e.Options.N)
		}
		out.Dtype = inputs[0].DataType()

	case types.FunctionKindReverse:
		out.Dtype = inputs[0].DataType()

	case types.FunctionKindFromEpoch:
		in := inputs[0].DataType()
		if !in.IsInteger() && !in.IsNull() {
			return nil, fmt.Errorf("%w: from_epoch requires an integer column, got %s", errors.ErrCompute, in)
		}
		switch e.Options.Unit {
		case "d":
			out.Dtype = types.Date
		case "s":
			out.Dtype = types.Datetime(types.UnitMicroseconds)
		case "ms", "us", "ns":
			unit, _ := types.ParseTimeUnit(e.Options.Unit)
			out.Dtype = types.Datetime(unit)
		default:
			return nil, fmt.Errorf("%w: 'time_unit' must be one of {'ns', 'us', 'ms', 's', 'd'}, got %q",
				errors.ErrInvalidParameter, e.Options.Unit)
		}
		out.Inputs[0] = castTo(inputs[0], types.Int64)

	case types.FunctionKindArcTan2:
		if inputs[0].DataType().Equal(types.Float32) && inputs[1].DataType().Equal(types.Float32) {
			out.Dtype = types.Float32
		} else {
			out.Dtype = types.Float64
			out.Inputs[0] = castTo(inputs[0], types.Float64)
			out.Inputs[1] = castTo(inputs[1], types.Float64)
		}

	case types.FunctionKindCorr:
		if m := e.Options.Method; m != "pearson" && m != "spearman" {
			return nil, fmt.Errorf("%w: method must be one of {'pearson', 'spearman'}, got %q",
				errors.ErrInvalidParameter, m)
		}
		out.Dtype = types.Float64

	case types.FunctionKindCov:
		out.Dtype = types.Float64

	case types.FunctionKindArgSortBy:
		desc := e.Options.Descending
		if len(desc) > 1 && len(desc) != len(inputs) {
			return nil, fmt.Errorf("%w: the length of `descending` (%d) does not match the length of `exprs` (%d)",
				errors.ErrInvalidParameter, len(desc), len(inputs))
		}
		out.Dtype = types.IdxType

	case types.FunctionKindFillNull:
		common, err := r.commonType(inputs[0].DataType(), inputs[1].DataType())
		if err != nil {
			return nil, err
		}
		out.Inputs[0] = castTo(inputs[0], common)
		out.Inputs[1] = castTo(inputs[1], common)
		out.Dtype = common

	default:
		return nil, fmt.Errorf("%w: function %s", errors.ErrNotImplemented, e.Op)
	}
	return out, nil
}

func (r *resolver) resolveHorizontal(e *logical.HorizontalExpr) (Expression, error) {
	if len(e.Inputs) == 0 {
		return nil, fmt.Errorf("%w: empty fold: output row count unknown", errors.ErrCompute)
	}

	inputs := make([]Expression, len(e.Inputs))
	for i, in := range e.Inputs {
		resolved, err := r.resolve(in)
		if err != nil {
			return nil, err
		}
		inputs[i] = resolved
	}

	dtype, err := r.horizontalDataType(e.Op, inputs)
	if err != nil {
		return nil, err
	}
	return &HorizontalExpr{Op: e.Op, Inputs: inputs, IgnoreNulls: e.IgnoreNulls, Dtype: dtype}, nil
}

func (r *resolver) horizontalDataType(op types.HorizontalKind, inputs []Expression) (types.DataType, error) {
	switch op {
	case types.HorizontalKindAny, types.HorizontalKindAll:
		for _, in := range inputs {
			if t := in.DataType(); !t.Equal(types.Bool) && !t.IsNull() {
				return types.Invalid, fmt.Errorf("%w: %s_horizontal requires boolean inputs, got %s", errors.ErrCompute, op, t)
			}
		}
		return types.Bool, nil
	}

	common := inputs[0].DataType()
	for _, in := range inputs[1:] {
		next := in.DataType()
		if isStringNumericPair(common, next) {
			switch op {
			case types.HorizontalKindMin, types.HorizontalKindMax:
				other := common
				if other.Kind() == types.KindString {
					other = next
				}
				return types.Invalid, fmt.Errorf("%w: cannot compare string with numeric type (%s)", errors.ErrCompute, other)
			}
		}
		st, err := r.commonType(common, next)
		if err != nil {
			return types.Invalid, err
		}
		common = st
	}

	switch op {
	case types.HorizontalKindSum:
		if common.Kind() == types.KindBool {
			// Summing booleans counts the true values.
			return types.IdxType, nil
		}
		return common, nil
	case types.HorizontalKindMean:
		switch {
		case common.IsFloat(), common.IsNull():
			return common, nil
		default:
			return types.Float64, nil
		}
	default:
		return common, nil
	}
}

func (r *resolver) resolveFold(e *logical.FoldExpr) (Expression, error) {
	if len(e.Inputs) == 0 {
		return nil, fmt.Errorf("%w: empty fold: output row count unknown", errors.ErrCompute)
	}

	out := &FoldExpr{
		Op:          e.Op,
		Fn:          e.Fn,
		IncludeInit: e.IncludeInit,
		Dtype:       types.Unknown,
	}
	if e.Acc != nil {
		acc, err := r.resolve(e.Acc)
		if err != nil {
			return nil, err
		}
		out.Acc = acc
	}
	out.Inputs = make([]Expression, len(e.Inputs))
	for i, in := range e.Inputs {
		resolved, err := r.resolve(in)
		if err != nil {
			return nil, err
		}
		out.Inputs[i] = resolved
	}

	if e.Op == logical.FoldKindCumFold || e.Op == logical.FoldKindCumReduce {
		var fields []types.Field
		if e.IncludeInit && e.Acc != nil {
			name := outputName(e.Acc)
			out.FieldNames = append(out.FieldNames, name)
			fields = append(fields, types.Field{Name: name, Type: types.Unknown})
		}
		for _, in := range e.Inputs {
			name := outputName(in)
			out.FieldNames = append(out.FieldNames, name)
			fields = append(fields, types.Field{Name: name, Type: types.Unknown})
		}
		out.Dtype = types.Struct(fields...)
	}
	return out, nil
}

func (r *resolver) resolveMap(e *logical.MapExpr) (Expression, error) {
	if len(e.Inputs) == 0 {
		return nil, fmt.Errorf("%w: %s requires at least one input", errors.ErrInvalidParameter, e.Mode)
	}
	if e.Mode == logical.MapModeElements {
		switch e.Strategy {
		case logical.StrategyThreadLocal, logical.StrategyThreading:
		default:
			return nil, fmt.Errorf("%w: strategy %q is not supported", errors.ErrInvalidParameter, e.Strategy)
		}
	}

	inputs := make([]Expression, len(e.Inputs))
	for i, in := range e.Inputs {
		resolved, err := r.resolve(in)
		if err != nil {
			return nil, err
		}
		inputs[i] = resolved
	}

	dtype := types.Unknown
	if e.ReturnDtype != nil {
		dtype = *e.ReturnDtype
	}
	return &MapExpr{
		Mode:          e.Mode,
		Inputs:        inputs,
		BatchFn:       e.BatchFn,
		ElemFn:        e.ElemFn,
		Dtype:         dtype,
		SkipNulls:     e.SkipNulls,
		Strategy:      e.Strategy,
		PassName:      e.PassName,
		ReturnsScalar: e.ReturnsScalar,
		AggList:       e.AggList,
		InputName:     outputName(e.Inputs[0]),
	}, nil
}

// commonType returns the coercion target for a pair of types. With type
// coercion disabled, differing types are rejected instead of widened.
func (r *resolver) commonType(a, b types.DataType) (types.DataType, error) {
	st, ok := types.Supertype(a, b)
	if !ok {
		return types.Invalid, fmt.Errorf("%w: failed to determine supertype of %s and %s", errors.ErrCompute, a, b)
	}
	if !r.flags.TypeCoercion && !a.Equal(b) && !a.IsNull() && !b.IsNull() {
		return types.Invalid, fmt.Errorf("%w: datatypes %s and %s are incompatible and type coercion is disabled",
			errors.ErrCompute, a, b)
	}
	return st, nil
}

// castTo wraps an expression in a cast to the target type, unless it already
// has it. Null literals are retyped directly instead of being cast.
func castTo(e Expression, to types.DataType) Expression {
	if e.DataType().Equal(to) || to.IsUnknown() {
		return e
	}
	if lit, ok := e.(*LiteralExpr); ok && lit.IsNull() {
		return &LiteralExpr{Literal: types.NewTypedLiteral(to, nil)}
	}
	return &CastExpr{Input: e, To: to}
}

func isStringNumericPair(a, b types.DataType) bool {
	return (a.Kind() == types.KindString && b.IsNumeric()) || (b.Kind() == types.KindString && a.IsNumeric())
}

// expandExprs expands selectors in a list of logical expressions. A selector
// in the input list of a variadic node (horizontal reduction, fold, map)
// flattens into that list; anywhere else it multiplies the whole expression,
// producing one copy per matched column, with all selector occurrences
// substituted in lockstep.
func expandExprs(schema types.Schema, exprs []logical.Expr) ([]logical.Expr, error) {
	var out []logical.Expr
	for _, e := range exprs {
		parts, err := expandExpr(schema, e)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

func expandExpr(schema types.Schema, e logical.Expr) ([]logical.Expr, error) {
	flattened, err := flattenVariadic(schema, e)
	if err != nil {
		return nil, err
	}

	sel := findSelector(flattened)
	if sel == nil {
		return []logical.Expr{flattened}, nil
	}
	names, err := matchSelector(schema, sel.Selector)
	if err != nil {
		return nil, err
	}

	out := make([]logical.Expr, 0, len(names))
	for _, name := range names {
		out = append(out, substituteSelectors(flattened, name))
	}
	return out, nil
}

// flattenVariadic rewrites the input lists of variadic nodes, expanding any
// selector elements in place. Regex-named column references are normalized
// into selectors on the way.
func flattenVariadic(schema types.Schema, e logical.Expr) (logical.Expr, error) {
	switch e := e.(type) {
	case *logical.ColumnRef:
		if logical.IsRegexProjection(e.Column) {
			return logical.NewSelector(logical.Selector{Kind: logical.SelectorByRegex, Pattern: e.Column}), nil
		}
		return e, nil
	case *logical.AliasExpr:
		input, err := flattenVariadic(schema, e.Input)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Input = input
		return &clone, nil
	case *logical.UnaryExpr:
		input, err := flattenVariadic(schema, e.Input)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Input = input
		return &clone, nil
	case *logical.BinaryExpr:
		left, err := flattenVariadic(schema, e.Left)
		if err != nil {
			return nil, err
		}
		right, err := flattenVariadic(schema, e.Right)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Left, clone.Right = left, right
		return &clone, nil
	case *logical.CastExpr:
		input, err := flattenVariadic(schema, e.Input)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Input = input
		return &clone, nil
	case *logical.TernaryExpr:
		pred, err := flattenVariadic(schema, e.Predicate)
		if err != nil {
			return nil, err
		}
		truthy, err := flattenVariadic(schema, e.Truthy)
		if err != nil {
			return nil, err
		}
		falsy, err := flattenVariadic(schema, e.Falsy)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Predicate, clone.Truthy, clone.Falsy = pred, truthy, falsy
		return &clone, nil
	case *logical.AggExpr:
		if e.Input == nil {
			return e, nil
		}
		input, err := flattenVariadic(schema, e.Input)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Input = input
		return &clone, nil
	case *logical.FunctionExpr:
		clone := *e
		if e.Op == types.FunctionKindArgSortBy {
			inputs, err := expandExprs(schema, e.Inputs)
			if err != nil {
				return nil, err
			}
			clone.Inputs = inputs
			return &clone, nil
		}
		inputs := make([]logical.Expr, len(e.Inputs))
		for i, in := range e.Inputs {
			flat, err := flattenVariadic(schema, in)
			if err != nil {
				return nil, err
			}
			inputs[i] = flat
		}
		clone.Inputs = inputs
		return &clone, nil
	case *logical.HorizontalExpr:
		inputs, err := expandExprs(schema, e.Inputs)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Inputs = inputs
		return &clone, nil
	case *logical.FoldExpr:
		clone := *e
		if e.Acc != nil {
			acc, err := flattenVariadic(schema, e.Acc)
			if err != nil {
				return nil, err
			}
			clone.Acc = acc
		}
		inputs, err := expandExprs(schema, e.Inputs)
		if err != nil {
			return nil, err
		}
		clone.Inputs = inputs
		return &clone, nil
	case *logical.MapExpr:
		inputs, err := expandExprs(schema, e.Inputs)
		if err != nil {
			return nil, err
		}
		clone := *e
		clone.Inputs = inputs
		return &clone, nil
	default:
		return e, nil
	}
}

// findSelector returns the first selector in multiplying position, walking
// depth-first. Variadic input lists have already been flattened, so any
// selector found here multiplies the whole expression.
func findSelector(e logical.Expr) *logical.SelectorExpr {
	var found *logical.SelectorExpr
	logical.Walk(e, func(e logical.Expr) bool {
		if found != nil {
			return false
		}
		if sel, ok := e.(*logical.SelectorExpr); ok {
			found = sel
			return false
		}
		return true
	})
	return found
}

// substituteSelectors replaces every selector occurrence with a reference to
// the named column.
func substituteSelectors(e logical.Expr, name string) logical.Expr {
	switch e := e.(type) {
	case *logical.SelectorExpr:
		return logical.NewColumnRef(name)
	case *logical.AliasExpr:
		clone := *e
		clone.Input = substituteSelectors(e.Input, name)
		return &clone
	case *logical.UnaryExpr:
		clone := *e
		clone.Input = substituteSelectors(e.Input, name)
		return &clone
	case *logical.BinaryExpr:
		clone := *e
		clone.Left = substituteSelectors(e.Left, name)
		clone.Right = substituteSelectors(e.Right, name)
		return &clone
	case *logical.CastExpr:
		clone := *e
		clone.Input = substituteSelectors(e.Input, name)
		return &clone
	case *logical.TernaryExpr:
		clone := *e
		clone.Predicate = substituteSelectors(e.Predicate, name)
		clone.Truthy = substituteSelectors(e.Truthy, name)
		clone.Falsy = substituteSelectors(e.Falsy, name)
		return &clone
	case *logical.AggExpr:
		if e.Input == nil {
			return e
		}
		clone := *e
		clone.Input = substituteSelectors(e.Input, name)
		return &clone
	case *logical.FunctionExpr:
		clone := *e
		clone.Inputs = substituteAll(e.Inputs, name)
		return &clone
	case *logical.HorizontalExpr:
		clone := *e
		clone.Inputs = substituteAll(e.Inputs, name)
		return &clone
	case *logical.FoldExpr:
		clone := *e
		if e.Acc != nil {
			clone.Acc = substituteSelectors(e.Acc, name)
		}
		clone.Inputs = substituteAll(e.Inputs, name)
		return &clone
	case *logical.MapExpr:
		clone := *e
		clone.Inputs = substituteAll(e.Inputs, name)
		return &clone
	default:
		return e
	}
}

func substituteAll(exprs []logical.Expr, name string) []logical.Expr {
	out := make([]logical.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = substituteSelectors(e, name)
	}
	return out
}

// matchSelector resolves a selector to column names against the schema.
// Names match in schema order, except for explicit name lists, which keep
// their given order.
func matchSelector(schema types.Schema, sel logical.Selector) ([]string, error) {
	switch sel.Kind {
	case logical.SelectorAll:
		return schema.Names(), nil

	case logical.SelectorByName:
		names := make([]string, 0, len(sel.Names))
		for _, name := range sel.Names {
			if schema.Index(name) < 0 {
				return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, name)
			}
			names = append(names, name)
		}
		return names, nil

	case logical.SelectorByRegex:
		re, err := regexp.Compile(sel.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid column pattern %q: %v", errors.ErrInvalidParameter, sel.Pattern, err)
		}
		var names []string
		for _, f := range schema.Fields {
			if re.MatchString(f.Name) {
				names = append(names, f.Name)
			}
		}
		return names, nil

	case logical.SelectorByDtype:
		var names []string
		for _, f := range schema.Fields {
			for _, dt := range sel.Dtypes {
				if f.Type.Equal(dt) {
					names = append(names, f.Name)
					break
				}
			}
		}
		return names, nil

	case logical.SelectorExclude:
		inner, err := matchSelector(schema, *sel.Inner)
		if err != nil {
			return nil, err
		}
		excluded := make(map[string]struct{}, len(sel.ExcludeNames))
		for _, name := range sel.ExcludeNames {
			excluded[name] = struct{}{}
		}
		var names []string
		for _, name := range inner {
			if _, skip := excluded[name]; skip {
				continue
			}
			if f, ok := schema.Field(name); ok && dtypeExcluded(f.Type, sel.ExcludeDtypes) {
				continue
			}
			names = append(names, name)
		}
		return names, nil

	default:
		return nil, fmt.Errorf("%w: selector %s", errors.ErrNotImplemented, sel)
	}
}

func dtypeExcluded(t types.DataType, dtypes []types.DataType) bool {
	for _, dt := range dtypes {
		if t.Equal(dt) {
			return true
		}
	}
	return false
}
