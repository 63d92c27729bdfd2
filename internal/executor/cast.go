package executor

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/types"
)

// castArray converts an array to the target type. A failed conversion of a
// value is an error under strict casting and a null otherwise.
func castArray(mem memory.Allocator, arr arrow.Array, to types.DataType, strict bool) (arrow.Array, error) {
	from, err := types.FromArrow(arr.DataType())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCompute, err)
	}
	if from.Equal(to) {
		arr.Retain()
		return arr, nil
	}
	n := arr.Len()
	if from.IsNull() {
		return nullArray(mem, to, n), nil
	}

	cast, err := castFunc(from, to)
	if err != nil {
		return nil, err
	}

	b := array.NewBuilder(mem, types.ToArrow(to))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		if cast(arr, i, b) {
			continue
		}
		if strict {
			return nil, fmt.Errorf("%w: strict conversion from %s to %s failed at row %d",
				errors.ErrCompute, from, to, i)
		}
		b.AppendNull()
	}
	return b.NewArray(), nil
}

// castFunc returns the conversion for a pair of types. The returned
// function appends the converted value of arr at index i to the builder and
// reports whether the conversion succeeded.
func castFunc(from, to types.DataType) (func(arr arrow.Array, i int, b array.Builder) bool, error) {
	switch {
	case to.Equal(types.Bool):
		return castToBool(from)
	case to.IsSignedInteger():
		return castToSigned(from, to)
	case to.IsUnsignedInteger():
		return castToUnsigned(from, to)
	case to.IsFloat():
		return castToFloat(from)
	case to.Kind() == types.KindString:
		return castToString(from)
	case to.IsTemporal():
		return castToTemporal(from, to)
	default:
		return nil, castUnsupported(from, to)
	}
}

func castUnsupported(from, to types.DataType) error {
	return fmt.Errorf("%w: cannot cast from %s to %s", errors.ErrCompute, from, to)
}

func castToBool(from types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	switch {
	case from.IsNumeric():
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := numericFloatValues(arr)
			b.(*array.BooleanBuilder).Append(v(i) != 0)
			return true
		}, nil
	case from.Kind() == types.KindString:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, err := strconv.ParseBool(arr.(*array.String).Value(i))
			if err != nil {
				return false
			}
			b.(*array.BooleanBuilder).Append(v)
			return true
		}, nil
	default:
		return nil, castUnsupported(from, types.Bool)
	}
}

// intBits returns the width of an integer type in bits.
func intBits(t types.DataType) int {
	switch t.Kind() {
	case types.KindInt8, types.KindUInt8:
		return 8
	case types.KindInt16, types.KindUInt16:
		return 16
	case types.KindInt32, types.KindUInt32:
		return 32
	default:
		return 64
	}
}

func castToSigned(from, to types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	bits := intBits(to)
	lower, upper := int64(math.MinInt64), int64(math.MaxInt64)
	if bits < 64 {
		upper = 1<<(bits-1) - 1
		lower = -1 << (bits - 1)
	}

	switch {
	case from.IsSignedInteger(), from.IsTemporal():
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := signedValues(arr)
			x := v(i)
			if x < lower || x > upper {
				return false
			}
			return appendSigned(b, x) == nil
		}, nil
	case from.IsUnsignedInteger():
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := unsignedValues(arr)
			x := v(i)
			if x > uint64(upper) {
				return false
			}
			return appendSigned(b, int64(x)) == nil
		}, nil
	case from.IsFloat():
		lo, hi := math.Ldexp(-1, bits-1), math.Ldexp(1, bits-1)
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := floatValues(arr)
			t := math.Trunc(v(i))
			if math.IsNaN(t) || t < lo || t >= hi {
				return false
			}
			return appendSigned(b, int64(t)) == nil
		}, nil
	case from.Kind() == types.KindBool:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			return appendSigned(b, int64(boolRank(arr.(*array.Boolean).Value(i)))) == nil
		}, nil
	case from.Kind() == types.KindString:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			x, err := strconv.ParseInt(arr.(*array.String).Value(i), 10, bits)
			if err != nil {
				return false
			}
			return appendSigned(b, x) == nil
		}, nil
	default:
		return nil, castUnsupported(from, to)
	}
}

func castToUnsigned(from, to types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	bits := intBits(to)
	upper := uint64(math.MaxUint64)
	if bits < 64 {
		upper = 1<<bits - 1
	}

	switch {
	case from.IsSignedInteger(), from.IsTemporal():
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := signedValues(arr)
			x := v(i)
			if x < 0 || uint64(x) > upper {
				return false
			}
			return appendUnsigned(b, uint64(x)) == nil
		}, nil
	case from.IsUnsignedInteger():
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := unsignedValues(arr)
			x := v(i)
			if x > upper {
				return false
			}
			return appendUnsigned(b, x) == nil
		}, nil
	case from.IsFloat():
		hi := math.Ldexp(1, bits)
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := floatValues(arr)
			t := math.Trunc(v(i))
			if math.IsNaN(t) || t < 0 || t >= hi {
				return false
			}
			return appendUnsigned(b, uint64(t)) == nil
		}, nil
	case from.Kind() == types.KindBool:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			return appendUnsigned(b, uint64(boolRank(arr.(*array.Boolean).Value(i)))) == nil
		}, nil
	case from.Kind() == types.KindString:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			x, err := strconv.ParseUint(arr.(*array.String).Value(i), 10, bits)
			if err != nil {
				return false
			}
			return appendUnsigned(b, x) == nil
		}, nil
	default:
		return nil, castUnsupported(from, to)
	}
}

func castToFloat(from types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	switch {
	case from.IsNumeric(), from.Kind() == types.KindBool:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := numericFloatValues(arr)
			return appendFloat(b, v(i)) == nil
		}, nil
	case from.Kind() == types.KindString:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			x, err := strconv.ParseFloat(arr.(*array.String).Value(i), 64)
			if err != nil {
				return false
			}
			return appendFloat(b, x) == nil
		}, nil
	default:
		return nil, castUnsupported(from, types.Float64)
	}
}

func castToString(from types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	format, err := stringFormatter(from)
	if err != nil {
		return nil, err
	}
	return func(arr arrow.Array, i int, b array.Builder) bool {
		b.(*array.StringBuilder).Append(format(arr, i))
		return true
	}, nil
}

// stringFormatter returns the display conversion for values of a type.
func stringFormatter(from types.DataType) (func(arrow.Array, int) string, error) {
	switch {
	case from.IsSignedInteger():
		return func(arr arrow.Array, i int) string {
			v, _ := signedValues(arr)
			return strconv.FormatInt(v(i), 10)
		}, nil
	case from.IsUnsignedInteger():
		return func(arr arrow.Array, i int) string {
			v, _ := unsignedValues(arr)
			return strconv.FormatUint(v(i), 10)
		}, nil
	case from.IsFloat():
		return func(arr arrow.Array, i int) string {
			v, _ := floatValues(arr)
			return floatString(v(i))
		}, nil
	case from.Kind() == types.KindBool:
		return func(arr arrow.Array, i int) string {
			return strconv.FormatBool(arr.(*array.Boolean).Value(i))
		}, nil
	case from.Kind() == types.KindString:
		return func(arr arrow.Array, i int) string {
			return arr.(*array.String).Value(i)
		}, nil
	case from.Kind() == types.KindDate:
		return func(arr arrow.Array, i int) string {
			days := int64(arr.(*array.Date32).Value(i))
			return time.Unix(days*86_400, 0).UTC().Format("2006-01-02")
		}, nil
	case from.Kind() == types.KindDatetime:
		scale := tickNanos(from)
		return func(arr arrow.Array, i int) string {
			ns := int64(arr.(*array.Timestamp).Value(i)) * scale
			return time.Unix(0, ns).UTC().Format("2006-01-02 15:04:05.000000")
		}, nil
	case from.Kind() == types.KindTime:
		return func(arr arrow.Array, i int) string {
			ns := int64(arr.(*array.Time64).Value(i))
			return time.Unix(0, ns).UTC().Format("15:04:05.000000000")
		}, nil
	case from.Kind() == types.KindDuration:
		scale := tickNanos(from)
		return func(arr arrow.Array, i int) string {
			ns := int64(arr.(*array.Duration).Value(i)) * scale
			return time.Duration(ns).String()
		}, nil
	default:
		return nil, castUnsupported(from, types.String)
	}
}

// floatString formats a float the way a float column renders its values:
// integral floats keep a trailing ".0".
func floatString(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		s += ".0"
	}
	return s
}

func castToTemporal(from, to types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	switch {
	case from.IsInteger():
		// Integers reinterpret as ticks of the target resolution.
		if from.IsUnsignedInteger() {
			return func(arr arrow.Array, i int, b array.Builder) bool {
				v, _ := unsignedValues(arr)
				x := v(i)
				if x > math.MaxInt64 {
					return false
				}
				return appendSigned(b, int64(x)) == nil
			}, nil
		}
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := signedValues(arr)
			return appendSigned(b, v(i)) == nil
		}, nil

	case from.IsTemporal():
		if !temporalCastable(from, to) {
			return nil, castUnsupported(from, to)
		}
		fromScale, toScale := tickNanos(from), tickNanos(to)
		return func(arr arrow.Array, i int, b array.Builder) bool {
			v, _ := signedValues(arr)
			return appendSigned(b, rescaleTickFloor(v(i), fromScale, toScale)) == nil
		}, nil

	case from.Kind() == types.KindString:
		return castStringToTemporal(to)

	default:
		return nil, castUnsupported(from, to)
	}
}

// temporalCastable limits temporal-to-temporal casts to pairs sharing a
// common epoch.
func temporalCastable(from, to types.DataType) bool {
	fk, tk := from.Kind(), to.Kind()
	switch {
	case fk == types.KindDuration && tk == types.KindDuration:
		return true
	case fk == types.KindTime || tk == types.KindTime:
		return false
	case fk == types.KindDuration || tk == types.KindDuration:
		return false
	default:
		// Date and datetime intermix.
		return true
	}
}

// rescaleTickFloor converts a tick count between resolutions, rounding
// toward negative infinity on a coarsening conversion.
func rescaleTickFloor(v, from, to int64) int64 {
	if from == to {
		return v
	}
	if from > to {
		return v * (from / to)
	}
	return floorDiv(v, to/from)
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func castStringToTemporal(to types.DataType) (func(arrow.Array, int, array.Builder) bool, error) {
	switch to.Kind() {
	case types.KindDate:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			t, err := time.Parse("2006-01-02", arr.(*array.String).Value(i))
			if err != nil {
				return false
			}
			b.(*array.Date32Builder).Append(arrow.Date32(floorDiv(t.Unix(), 86_400)))
			return true
		}, nil
	case types.KindDatetime:
		scale := tickNanos(to)
		return func(arr arrow.Array, i int, b array.Builder) bool {
			s := arr.(*array.String).Value(i)
			for _, layout := range datetimeLayouts {
				t, err := time.Parse(layout, s)
				if err != nil {
					continue
				}
				b.(*array.TimestampBuilder).Append(arrow.Timestamp(floorDiv(t.UnixNano(), scale)))
				return true
			}
			return false
		}, nil
	case types.KindTime:
		return func(arr arrow.Array, i int, b array.Builder) bool {
			t, err := time.Parse("15:04:05.999999999", arr.(*array.String).Value(i))
			if err != nil {
				return false
			}
			ns := int64(t.Hour())*3_600_000_000_000 + int64(t.Minute())*60_000_000_000 +
				int64(t.Second())*1_000_000_000 + int64(t.Nanosecond())
			b.(*array.Time64Builder).Append(arrow.Time64(ns))
			return true
		}, nil
	default:
		return nil, castUnsupported(types.String, to)
	}
}
