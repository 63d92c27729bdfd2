package types

import (
	"fmt"
	"strconv"
	"time"
)

// Literal is a typed constant value. The zero value is the null literal.
//
// Values are stored in canonical Go representations: int64 for signed
// integers and temporals (epoch offsets in the type's unit), uint64 for
// unsigned integers, float64 for floats, plus bool and string.
type Literal struct {
	dtype DataType
	value any
}

// NewNullLiteral returns the untyped null literal.
func NewNullLiteral() Literal {
	return Literal{dtype: Null}
}

// NewLiteral builds a literal from a Go value, inferring its type. A nil
// value yields the null literal. Unsupported Go types are reported as an
// error so that builders can fail at construction.
func NewLiteral(value any) (Literal, error) {
	switch v := value.(type) {
	case nil:
		return NewNullLiteral(), nil
	case Literal:
		return v, nil
	case bool:
		return Literal{dtype: Bool, value: v}, nil
	case int:
		return Literal{dtype: Int64, value: int64(v)}, nil
	case int8:
		return Literal{dtype: Int8, value: int64(v)}, nil
	case int16:
		return Literal{dtype: Int16, value: int64(v)}, nil
	case int32:
		return Literal{dtype: Int32, value: int64(v)}, nil
	case int64:
		return Literal{dtype: Int64, value: v}, nil
	case uint:
		return Literal{dtype: UInt64, value: uint64(v)}, nil
	case uint8:
		return Literal{dtype: UInt8, value: uint64(v)}, nil
	case uint16:
		return Literal{dtype: UInt16, value: uint64(v)}, nil
	case uint32:
		return Literal{dtype: UInt32, value: uint64(v)}, nil
	case uint64:
		return Literal{dtype: UInt64, value: v}, nil
	case float32:
		return Literal{dtype: Float32, value: float64(v)}, nil
	case float64:
		return Literal{dtype: Float64, value: v}, nil
	case string:
		return Literal{dtype: String, value: v}, nil
	case time.Time:
		return Literal{dtype: Datetime(UnitMicroseconds), value: v.UnixMicro()}, nil
	case time.Duration:
		return Literal{dtype: Duration(UnitNanoseconds), value: v.Nanoseconds()}, nil
	default:
		return Literal{}, fmt.Errorf("unsupported literal type %T", value)
	}
}

// NewTypedLiteral builds a literal with an explicit type and canonical value.
func NewTypedLiteral(dtype DataType, value any) Literal {
	return Literal{dtype: dtype, value: value}
}

// DataType returns the literal's type.
func (l Literal) DataType() DataType {
	if l.dtype.Kind() == KindInvalid {
		return Null
	}
	return l.dtype
}

// Value returns the canonical Go value, or nil for the null literal.
func (l Literal) Value() any { return l.value }

// IsNull reports whether the literal is null.
func (l Literal) IsNull() bool { return l.value == nil }

// String returns the literal in plan-display form.
func (l Literal) String() string {
	switch v := l.value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
