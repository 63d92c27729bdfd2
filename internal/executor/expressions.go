package executor

import (
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

func binaryKernel(mem memory.Allocator, expr *physical.BinaryExpr, l, r arrow.Array) (arrow.Array, error) {
	switch {
	case expr.Op.IsComparison():
		return compareKernel(mem, expr.Op, l, r)
	case expr.Op.IsLogical():
		return logicalKernel(mem, expr.Op, l, r)
	default:
		return arithmeticKernel(mem, expr, l, r)
	}
}

func compareKernel(mem memory.Allocator, op types.BinOpKind, l, r arrow.Array) (arrow.Array, error) {
	n := l.Len()
	if l.DataType().ID() == arrow.NULL || r.DataType().ID() == arrow.NULL {
		return nullArray(mem, types.Bool, n), nil
	}

	b := array.NewBooleanBuilder(mem)
	defer b.Release()
	b.Reserve(n)

	// Floats compare by IEEE 754 semantics, where comparisons involving
	// NaN are false except for inequality.
	if lf, ok := floatValues(l); ok {
		rf, _ := floatValues(r)
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				b.AppendNull()
				continue
			}
			x, y := lf(i), rf(i)
			var v bool
			switch op {
			case types.BinOpKindEq:
				v = x == y
			case types.BinOpKindNeq:
				v = x != y
			case types.BinOpKindGt:
				v = x > y
			case types.BinOpKindGte:
				v = x >= y
			case types.BinOpKindLt:
				v = x < y
			case types.BinOpKindLte:
				v = x <= y
			}
			b.Append(v)
		}
		return b.NewArray(), nil
	}

	cmp, err := pairComparator(l, r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if l.IsNull(i) || r.IsNull(i) {
			b.AppendNull()
			continue
		}
		c := cmp(i)
		var v bool
		switch op {
		case types.BinOpKindEq:
			v = c == 0
		case types.BinOpKindNeq:
			v = c != 0
		case types.BinOpKindGt:
			v = c > 0
		case types.BinOpKindGte:
			v = c >= 0
		case types.BinOpKindLt:
			v = c < 0
		case types.BinOpKindLte:
			v = c <= 0
		}
		b.Append(v)
	}
	return b.NewArray(), nil
}

// pairComparator returns a three-way comparison between the values of two
// equally typed arrays at the same index.
func pairComparator(l, r arrow.Array) (func(int) int, error) {
	if lv, ok := signedValues(l); ok {
		rv, _ := signedValues(r)
		return func(i int) int { return compareOrdered(lv(i), rv(i)) }, nil
	}
	if lv, ok := unsignedValues(l); ok {
		rv, _ := unsignedValues(r)
		return func(i int) int { return compareOrdered(lv(i), rv(i)) }, nil
	}
	switch lv := l.(type) {
	case *array.String:
		rv := r.(*array.String)
		return func(i int) int { return strings.Compare(lv.Value(i), rv.Value(i)) }, nil
	case *array.Boolean:
		rv := r.(*array.Boolean)
		return func(i int) int { return compareOrdered(boolRank(lv.Value(i)), boolRank(rv.Value(i))) }, nil
	default:
		return nil, fmt.Errorf("%w: cannot compare values of type %s", errors.ErrCompute, l.DataType())
	}
}

func compareOrdered[T int64 | uint64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// boolRank orders false before true.
func boolRank(v bool) int {
	if v {
		return 1
	}
	return 0
}

// logicalKernel implements AND and OR with Kleene semantics and a
// null-propagating XOR over boolean inputs.
func logicalKernel(mem memory.Allocator, op types.BinOpKind, l, r arrow.Array) (arrow.Array, error) {
	n := l.Len()
	b := array.NewBooleanBuilder(mem)
	defer b.Release()
	b.Reserve(n)

	lv, rv := boolValues(l), boolValues(r)
	for i := 0; i < n; i++ {
		lnull, rnull := l.IsNull(i), r.IsNull(i)
		switch op {
		case types.BinOpKindAnd:
			switch {
			case !lnull && !lv(i), !rnull && !rv(i):
				b.Append(false)
			case lnull || rnull:
				b.AppendNull()
			default:
				b.Append(true)
			}
		case types.BinOpKindOr:
			switch {
			case !lnull && lv(i), !rnull && rv(i):
				b.Append(true)
			case lnull || rnull:
				b.AppendNull()
			default:
				b.Append(false)
			}
		case types.BinOpKindXor:
			if lnull || rnull {
				b.AppendNull()
				continue
			}
			b.Append(lv(i) != rv(i))
		default:
			return nil, fmt.Errorf("%w: logical operator %s", errors.ErrNotImplemented, op)
		}
	}
	return b.NewArray(), nil
}

func arithmeticKernel(mem memory.Allocator, expr *physical.BinaryExpr, l, r arrow.Array) (arrow.Array, error) {
	n := l.Len()
	if expr.Dtype.IsNull() || l.DataType().ID() == arrow.NULL || r.DataType().ID() == arrow.NULL {
		return nullArray(mem, expr.Dtype, n), nil
	}
	if expr.Dtype.Kind() == types.KindString {
		return concatKernel(mem, l, r)
	}
	lt, rt := expr.Left.DataType(), expr.Right.DataType()
	if lt.IsTemporal() || rt.IsTemporal() {
		return temporalKernel(mem, expr, l, r)
	}
	return numericKernel(mem, expr, l, r)
}

func concatKernel(mem memory.Allocator, l, r arrow.Array) (arrow.Array, error) {
	lv, rv := l.(*array.String), r.(*array.String)
	b := array.NewStringBuilder(mem)
	defer b.Release()
	n := l.Len()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if l.IsNull(i) || r.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(lv.Value(i) + rv.Value(i))
	}
	return b.NewArray(), nil
}

// tickNanos returns the duration of one tick of a temporal type in
// nanoseconds.
func tickNanos(t types.DataType) int64 {
	switch t.Kind() {
	case types.KindDate:
		return 24 * 60 * 60 * 1_000_000_000
	case types.KindTime:
		return 1
	default:
		switch t.Unit() {
		case types.UnitMilliseconds:
			return 1_000_000
		case types.UnitMicroseconds:
			return 1_000
		default:
			return 1
		}
	}
}

// rescaleTick converts a tick count between temporal resolutions.
func rescaleTick(v, from, to int64) int64 {
	if from == to {
		return v
	}
	if from > to {
		return v * (from / to)
	}
	return v / (to / from)
}

// temporalKernel implements datetime, date, and duration arithmetic. The
// operands keep their own resolutions; values are rescaled to the output
// resolution before combining.
func temporalKernel(mem memory.Allocator, expr *physical.BinaryExpr, l, r arrow.Array) (arrow.Array, error) {
	lv, lok := signedValues(l)
	rv, rok := signedValues(r)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: %s not supported between %s and %s",
			errors.ErrCompute, expr.Op, expr.Left.DataType(), expr.Right.DataType())
	}

	lscale := tickNanos(expr.Left.DataType())
	rscale := tickNanos(expr.Right.DataType())
	outScale := tickNanos(expr.Dtype)

	b := array.NewBuilder(mem, types.ToArrow(expr.Dtype))
	defer b.Release()
	n := l.Len()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if l.IsNull(i) || r.IsNull(i) {
			b.AppendNull()
			continue
		}
		x := rescaleTick(lv(i), lscale, outScale)
		y := rescaleTick(rv(i), rscale, outScale)
		var v int64
		switch expr.Op {
		case types.BinOpKindAdd:
			v = x + y
		case types.BinOpKindSub:
			v = x - y
		default:
			return nil, fmt.Errorf("%w: %s not supported between %s and %s",
				errors.ErrCompute, expr.Op, expr.Left.DataType(), expr.Right.DataType())
		}
		if err := appendSigned(b, v); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func numericKernel(mem memory.Allocator, expr *physical.BinaryExpr, l, r arrow.Array) (arrow.Array, error) {
	op := expr.Op
	common := expr.Left.DataType()

	b := array.NewBuilder(mem, types.ToArrow(expr.Dtype))
	defer b.Release()
	n := l.Len()
	b.Reserve(n)

	switch {
	case op == types.BinOpKindDiv || common.IsFloat():
		lv, lok := numericFloatValues(l)
		rv, rok := numericFloatValues(r)
		if !lok || !rok {
			return nil, fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, common)
		}
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, null, err := applyFloat(op, lv(i), rv(i))
			if err != nil {
				return nil, err
			}
			if null {
				b.AppendNull()
				continue
			}
			if err := appendFloat(b, v); err != nil {
				return nil, err
			}
		}

	case common.IsSignedInteger():
		lv, _ := signedValues(l)
		rv, _ := signedValues(r)
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, null, err := applySigned(op, lv(i), rv(i))
			if err != nil {
				return nil, err
			}
			if null {
				b.AppendNull()
				continue
			}
			if err := appendSigned(b, v); err != nil {
				return nil, err
			}
		}

	case op == types.BinOpKindPow && common.IsUnsignedInteger():
		// Integer pow resolves to int64 even for unsigned bases.
		lv, _ := unsignedValues(l)
		rv, _ := unsignedValues(r)
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, _, err := ipow(int64(lv(i)), int64(rv(i)))
			if err != nil {
				return nil, err
			}
			if err := appendSigned(b, v); err != nil {
				return nil, err
			}
		}

	case common.IsUnsignedInteger():
		lv, _ := unsignedValues(l)
		rv, _ := unsignedValues(r)
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, null, err := applyUnsigned(op, lv(i), rv(i))
			if err != nil {
				return nil, err
			}
			if null {
				b.AppendNull()
				continue
			}
			if err := appendUnsigned(b, v); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, common)
	}
	return b.NewArray(), nil
}

func applyFloat(op types.BinOpKind, x, y float64) (v float64, null bool, err error) {
	switch op {
	case types.BinOpKindAdd:
		return x + y, false, nil
	case types.BinOpKindSub:
		return x - y, false, nil
	case types.BinOpKindMul:
		return x * y, false, nil
	case types.BinOpKindDiv:
		return x / y, false, nil
	case types.BinOpKindFloorDiv:
		return math.Floor(x / y), false, nil
	case types.BinOpKindMod:
		// Modulo takes the sign of the divisor.
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, false, nil
	case types.BinOpKindPow:
		return math.Pow(x, y), false, nil
	default:
		return 0, false, fmt.Errorf("%w: arithmetic operator %s", errors.ErrNotImplemented, op)
	}
}

func applySigned(op types.BinOpKind, x, y int64) (v int64, null bool, err error) {
	switch op {
	case types.BinOpKindAdd:
		return x + y, false, nil
	case types.BinOpKindSub:
		return x - y, false, nil
	case types.BinOpKindMul:
		return x * y, false, nil
	case types.BinOpKindFloorDiv:
		if y == 0 {
			return 0, true, nil
		}
		// Floor division rounds toward negative infinity.
		return floorDiv(x, y), false, nil
	case types.BinOpKindMod:
		if y == 0 {
			return 0, true, nil
		}
		// Modulo takes the sign of the divisor.
		m := x % y
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, false, nil
	case types.BinOpKindPow:
		return ipow(x, y)
	default:
		return 0, false, fmt.Errorf("%w: arithmetic operator %s", errors.ErrNotImplemented, op)
	}
}

func applyUnsigned(op types.BinOpKind, x, y uint64) (v uint64, null bool, err error) {
	switch op {
	case types.BinOpKindAdd:
		return x + y, false, nil
	case types.BinOpKindSub:
		return x - y, false, nil
	case types.BinOpKindMul:
		return x * y, false, nil
	case types.BinOpKindFloorDiv:
		if y == 0 {
			return 0, true, nil
		}
		return x / y, false, nil
	case types.BinOpKindMod:
		if y == 0 {
			return 0, true, nil
		}
		return x % y, false, nil
	default:
		return 0, false, fmt.Errorf("%w: arithmetic operator %s", errors.ErrNotImplemented, op)
	}
}

func ipow(x, y int64) (int64, bool, error) {
	if y < 0 {
		return 0, false, fmt.Errorf("%w: exponent %d is negative for an integer base", errors.ErrCompute, y)
	}
	v := int64(1)
	for ; y > 0; y-- {
		v *= x
	}
	return v, false, nil
}

// signedValues returns an accessor reading a signed integer or temporal
// array as int64.
func signedValues(arr arrow.Array) (func(int) int64, bool) {
	switch a := arr.(type) {
	case *array.Int8:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Int16:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Int32:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Int64:
		return a.Value, true
	case *array.Date32:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Timestamp:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Time64:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	case *array.Duration:
		return func(i int) int64 { return int64(a.Value(i)) }, true
	default:
		return nil, false
	}
}

// unsignedValues returns an accessor reading an unsigned integer array as
// uint64.
func unsignedValues(arr arrow.Array) (func(int) uint64, bool) {
	switch a := arr.(type) {
	case *array.Uint8:
		return func(i int) uint64 { return uint64(a.Value(i)) }, true
	case *array.Uint16:
		return func(i int) uint64 { return uint64(a.Value(i)) }, true
	case *array.Uint32:
		return func(i int) uint64 { return uint64(a.Value(i)) }, true
	case *array.Uint64:
		return a.Value, true
	default:
		return nil, false
	}
}

// floatValues returns an accessor reading a floating point array as
// float64.
func floatValues(arr arrow.Array) (func(int) float64, bool) {
	switch a := arr.(type) {
	case *array.Float32:
		return func(i int) float64 { return float64(a.Value(i)) }, true
	case *array.Float64:
		return a.Value, true
	default:
		return nil, false
	}
}

// numericFloatValues returns an accessor reading any numeric or boolean
// array as float64.
func numericFloatValues(arr arrow.Array) (func(int) float64, bool) {
	if v, ok := floatValues(arr); ok {
		return v, true
	}
	if v, ok := signedValues(arr); ok {
		return func(i int) float64 { return float64(v(i)) }, true
	}
	if v, ok := unsignedValues(arr); ok {
		return func(i int) float64 { return float64(v(i)) }, true
	}
	if b, ok := arr.(*array.Boolean); ok {
		return func(i int) float64 {
			if b.Value(i) {
				return 1
			}
			return 0
		}, true
	}
	return nil, false
}

func appendSigned(b array.Builder, v int64) error {
	switch b := b.(type) {
	case *array.Int8Builder:
		b.Append(int8(v))
	case *array.Int16Builder:
		b.Append(int16(v))
	case *array.Int32Builder:
		b.Append(int32(v))
	case *array.Int64Builder:
		b.Append(v)
	case *array.Date32Builder:
		b.Append(arrow.Date32(v))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v))
	case *array.Time64Builder:
		b.Append(arrow.Time64(v))
	case *array.DurationBuilder:
		b.Append(arrow.Duration(v))
	default:
		return fmt.Errorf("%w: cannot store %T value in %s column", errors.ErrCompute, v, b.Type())
	}
	return nil
}

func appendUnsigned(b array.Builder, v uint64) error {
	switch b := b.(type) {
	case *array.Uint8Builder:
		b.Append(uint8(v))
	case *array.Uint16Builder:
		b.Append(uint16(v))
	case *array.Uint32Builder:
		b.Append(uint32(v))
	case *array.Uint64Builder:
		b.Append(v)
	default:
		return fmt.Errorf("%w: cannot store %T value in %s column", errors.ErrCompute, v, b.Type())
	}
	return nil
}

func appendFloat(b array.Builder, v float64) error {
	switch b := b.(type) {
	case *array.Float32Builder:
		b.Append(float32(v))
	case *array.Float64Builder:
		b.Append(v)
	default:
		return fmt.Errorf("%w: cannot store %T value in %s column", errors.ErrCompute, v, b.Type())
	}
	return nil
}
