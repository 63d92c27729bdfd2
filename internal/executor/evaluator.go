package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// expressionEvaluator evaluates physical expressions against record
// batches. Results are length-1 arrays for scalar-producing expressions
// (literals, aggregations) and full-length arrays otherwise; callers
// broadcast as needed.
type expressionEvaluator struct {
	mem memory.Allocator
	// maxThreads bounds the parallelism of threaded element functions.
	maxThreads int
}

// eval evaluates an expression against a batch. Ownership of the returned
// array passes to the caller.
func (e expressionEvaluator) eval(ctx context.Context, expr physical.Expression, rec arrow.Record) (arrow.Array, error) {
	switch expr := expr.(type) {
	case physical.NamedExpression:
		return e.eval(ctx, expr.Expression, rec)

	case *physical.ColumnExpr:
		indices := rec.Schema().FieldIndices(expr.Name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, expr.Name)
		}
		col := rec.Column(indices[0])
		col.Retain()
		return col, nil

	case *physical.LiteralExpr:
		return literalArray(e.mem, expr.Literal)

	case *physical.UnaryExpr:
		input, err := e.eval(ctx, expr.Input, rec)
		if err != nil {
			return nil, err
		}
		defer input.Release()
		return unaryKernel(e.mem, expr.Op, input)

	case *physical.BinaryExpr:
		left, err := e.eval(ctx, expr.Left, rec)
		if err != nil {
			return nil, err
		}
		defer left.Release()
		right, err := e.eval(ctx, expr.Right, rec)
		if err != nil {
			return nil, err
		}
		defer right.Release()
		l, r, err := alignPair(e.mem, left, right)
		if err != nil {
			return nil, err
		}
		defer l.Release()
		defer r.Release()
		return binaryKernel(e.mem, expr, l, r)

	case *physical.CastExpr:
		input, err := e.eval(ctx, expr.Input, rec)
		if err != nil {
			return nil, err
		}
		defer input.Release()
		return castArray(e.mem, input, expr.To, expr.Strict)

	case *physical.TernaryExpr:
		return e.evalTernary(ctx, expr, rec)

	case *physical.AggExpr:
		return e.evalAgg(ctx, expr, rec)

	case *physical.FuncExpr:
		return e.evalFunction(ctx, expr, rec)

	case *physical.HorizontalExpr:
		return e.evalHorizontal(ctx, expr, rec)

	case *physical.FoldExpr:
		return e.evalFold(ctx, expr, rec)

	case *physical.MapExpr:
		return e.evalMap(ctx, expr, rec)

	default:
		return nil, fmt.Errorf("%w: expression %v", errors.ErrNotImplemented, expr)
	}
}

// evalInputs evaluates a list of expressions against the same batch.
func (e expressionEvaluator) evalInputs(ctx context.Context, exprs []physical.Expression, rec arrow.Record) ([]arrow.Array, error) {
	arrs := make([]arrow.Array, 0, len(exprs))
	for _, expr := range exprs {
		arr, err := e.eval(ctx, expr, rec)
		if err != nil {
			releaseAll(arrs)
			return nil, err
		}
		arrs = append(arrs, arr)
	}
	return arrs, nil
}

func (e expressionEvaluator) evalTernary(ctx context.Context, expr *physical.TernaryExpr, rec arrow.Record) (arrow.Array, error) {
	arrs, err := e.evalInputs(ctx, []physical.Expression{expr.Predicate, expr.Truthy, expr.Falsy}, rec)
	if err != nil {
		return nil, err
	}
	defer releaseAll(arrs)
	aligned, n, err := alignAll(e.mem, arrs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	pred, truthy, falsy := aligned[0], aligned[1], aligned[2]
	b := array.NewBuilder(e.mem, types.ToArrow(expr.Dtype))
	defer b.Release()
	b.Reserve(n)
	isTrue := boolValues(pred)
	for i := 0; i < n; i++ {
		switch {
		case pred.IsNull(i):
			b.AppendNull()
		case isTrue(i):
			if err := copyValue(b, truthy, i); err != nil {
				return nil, err
			}
		default:
			if err := copyValue(b, falsy, i); err != nil {
				return nil, err
			}
		}
	}
	return b.NewArray(), nil
}

func unaryKernel(mem memory.Allocator, op types.UnaryOpKind, input arrow.Array) (arrow.Array, error) {
	n := input.Len()
	switch op {
	case types.UnaryOpKindIsNull, types.UnaryOpKindIsNotNull:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.Reserve(n)
		want := op == types.UnaryOpKindIsNull
		for i := 0; i < n; i++ {
			b.Append(input.IsNull(i) == want)
		}
		return b.NewArray(), nil

	case types.UnaryOpKindNot:
		if input.DataType().ID() == arrow.NULL {
			return nullArray(mem, types.Bool, n), nil
		}
		vals := input.(*array.Boolean)
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			if vals.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(!vals.Value(i))
		}
		return b.NewArray(), nil

	case types.UnaryOpKindNeg:
		return negKernel(mem, input)

	default:
		return nil, fmt.Errorf("%w: unary operator %s", errors.ErrNotImplemented, op)
	}
}

func negKernel(mem memory.Allocator, input arrow.Array) (arrow.Array, error) {
	if input.DataType().ID() == arrow.NULL {
		input.Retain()
		return input, nil
	}
	b := array.NewBuilder(mem, input.DataType())
	defer b.Release()
	n := input.Len()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if input.IsNull(i) {
			b.AppendNull()
			continue
		}
		switch in := input.(type) {
		case *array.Int8:
			b.(*array.Int8Builder).Append(-in.Value(i))
		case *array.Int16:
			b.(*array.Int16Builder).Append(-in.Value(i))
		case *array.Int32:
			b.(*array.Int32Builder).Append(-in.Value(i))
		case *array.Int64:
			b.(*array.Int64Builder).Append(-in.Value(i))
		case *array.Float32:
			b.(*array.Float32Builder).Append(-in.Value(i))
		case *array.Float64:
			b.(*array.Float64Builder).Append(-in.Value(i))
		default:
			return nil, fmt.Errorf("%w: cannot negate %s", errors.ErrCompute, input.DataType())
		}
	}
	return b.NewArray(), nil
}

// literalArray materializes a literal as a length-1 array.
func literalArray(mem memory.Allocator, lit types.Literal) (arrow.Array, error) {
	b := array.NewBuilder(mem, types.ToArrow(lit.DataType()))
	defer b.Release()
	if err := appendLiteral(b, lit); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

func appendLiteral(b array.Builder, lit types.Literal) error {
	if lit.IsNull() {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(lit.Value().(bool))
	case *array.Int8Builder:
		b.Append(int8(lit.Value().(int64)))
	case *array.Int16Builder:
		b.Append(int16(lit.Value().(int64)))
	case *array.Int32Builder:
		b.Append(int32(lit.Value().(int64)))
	case *array.Int64Builder:
		b.Append(lit.Value().(int64))
	case *array.Uint8Builder:
		b.Append(uint8(lit.Value().(uint64)))
	case *array.Uint16Builder:
		b.Append(uint16(lit.Value().(uint64)))
	case *array.Uint32Builder:
		b.Append(uint32(lit.Value().(uint64)))
	case *array.Uint64Builder:
		b.Append(lit.Value().(uint64))
	case *array.Float32Builder:
		b.Append(float32(lit.Value().(float64)))
	case *array.Float64Builder:
		b.Append(lit.Value().(float64))
	case *array.StringBuilder:
		b.Append(lit.Value().(string))
	case *array.Date32Builder:
		b.Append(arrow.Date32(lit.Value().(int64)))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(lit.Value().(int64)))
	case *array.Time64Builder:
		b.Append(arrow.Time64(lit.Value().(int64)))
	case *array.DurationBuilder:
		b.Append(arrow.Duration(lit.Value().(int64)))
	default:
		return fmt.Errorf("%w: literal of type %s", errors.ErrNotImplemented, lit.DataType())
	}
	return nil
}

// nullArray returns an array of the given type with n null values.
func nullArray(mem memory.Allocator, dtype types.DataType, n int) arrow.Array {
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		b.AppendNull()
	}
	return b.NewArray()
}

// alignPair broadcasts a length-1 operand to the length of the other. Both
// returned arrays are owned by the caller.
func alignPair(mem memory.Allocator, a, b arrow.Array) (arrow.Array, arrow.Array, error) {
	aligned, _, err := alignAll(mem, []arrow.Array{a, b})
	if err != nil {
		return nil, nil, err
	}
	return aligned[0], aligned[1], nil
}

// alignAll broadcasts length-1 arrays to the common length of the others.
// Lengths other than one and the common length are a shape error. The
// returned arrays are owned by the caller.
func alignAll(mem memory.Allocator, arrs []arrow.Array) ([]arrow.Array, int, error) {
	n := 1
	for _, arr := range arrs {
		if arr.Len() != 1 {
			n = arr.Len()
			break
		}
	}
	for _, arr := range arrs {
		if arr.Len() != 1 && arr.Len() != n {
			return nil, 0, fmt.Errorf("%w: cannot combine series of length %d with series of length %d",
				errors.ErrShape, n, arr.Len())
		}
	}

	out := make([]arrow.Array, len(arrs))
	for i, arr := range arrs {
		if arr.Len() == n {
			arr.Retain()
			out[i] = arr
			continue
		}
		repeated, err := repeatValue(mem, arr, 0, n)
		if err != nil {
			releaseAll(out)
			return nil, 0, err
		}
		out[i] = repeated
	}
	return out, n, nil
}

// boolValues returns an accessor for the values of a boolean or null array.
func boolValues(arr arrow.Array) func(int) bool {
	if vals, ok := arr.(*array.Boolean); ok {
		return vals.Value
	}
	return func(int) bool { return false }
}
