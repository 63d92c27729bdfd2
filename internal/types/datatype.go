// Package types defines the semantic type system of the engine: the data
// type lattice, the operator kinds used by expressions, literal values, and
// the mapping between semantic types and their Arrow physical representation.
package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the semantic type families. The zero value is invalid.
type Kind uint32

const (
	KindInvalid Kind = iota

	KindNull
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindDate
	KindDatetime
	KindDuration
	KindTime
	KindList
	KindStruct

	// KindUnknown marks a type that cannot be determined until evaluation,
	// such as the output of a user function without a declared return type.
	KindUnknown
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt8:
		return "i8"
	case KindInt16:
		return "i16"
	case KindInt32:
		return "i32"
	case KindInt64:
		return "i64"
	case KindUInt8:
		return "u8"
	case KindUInt16:
		return "u16"
	case KindUInt32:
		return "u32"
	case KindUInt64:
		return "u64"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindString:
		return "str"
	case KindDate:
		return "date"
	case KindDatetime:
		return "datetime"
	case KindDuration:
		return "duration"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindStruct:
		return "struct"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// TimeUnit is the resolution of datetime and duration types.
type TimeUnit uint8

const (
	UnitSeconds TimeUnit = iota
	UnitMilliseconds
	UnitMicroseconds
	UnitNanoseconds
)

// String returns the string representation of the TimeUnit.
func (u TimeUnit) String() string {
	switch u {
	case UnitSeconds:
		return "s"
	case UnitMilliseconds:
		return "ms"
	case UnitMicroseconds:
		return "us"
	case UnitNanoseconds:
		return "ns"
	default:
		return fmt.Sprintf("TimeUnit(%d)", u)
	}
}

// ParseTimeUnit converts a unit name to a TimeUnit. The additional name "d"
// (days) is recognized by callers dealing with epoch conversion and is not a
// TimeUnit; it is handled before calling this function.
func ParseTimeUnit(s string) (TimeUnit, bool) {
	switch s {
	case "s":
		return UnitSeconds, true
	case "ms":
		return UnitMilliseconds, true
	case "us":
		return UnitMicroseconds, true
	case "ns":
		return UnitNanoseconds, true
	default:
		return 0, false
	}
}

// DataType is a semantic column type. It is a value type; comparing nested
// types requires [DataType.Equal] because list and struct types carry
// parameters.
type DataType struct {
	kind   Kind
	unit   TimeUnit  // datetime, duration
	inner  *DataType // list
	fields []Field   // struct
}

// Field is a named type, used for struct types and schemas.
type Field struct {
	Name string
	Type DataType
}

// Flat type singletons.
var (
	Invalid = DataType{kind: KindInvalid}
	Null    = DataType{kind: KindNull}
	Bool    = DataType{kind: KindBool}
	Int8    = DataType{kind: KindInt8}
	Int16   = DataType{kind: KindInt16}
	Int32   = DataType{kind: KindInt32}
	Int64   = DataType{kind: KindInt64}
	UInt8   = DataType{kind: KindUInt8}
	UInt16  = DataType{kind: KindUInt16}
	UInt32  = DataType{kind: KindUInt32}
	UInt64  = DataType{kind: KindUInt64}
	Float32 = DataType{kind: KindFloat32}
	Float64 = DataType{kind: KindFloat64}
	String  = DataType{kind: KindString}
	Date    = DataType{kind: KindDate}
	Time    = DataType{kind: KindTime}
	Unknown = DataType{kind: KindUnknown}

	// IdxType is the type used for counts and positional indices.
	IdxType = UInt32
)

// Datetime returns a datetime type with the given resolution.
func Datetime(unit TimeUnit) DataType {
	return DataType{kind: KindDatetime, unit: unit}
}

// Duration returns a duration type with the given resolution.
func Duration(unit TimeUnit) DataType {
	return DataType{kind: KindDuration, unit: unit}
}

// List returns a list type with the given element type.
func List(inner DataType) DataType {
	return DataType{kind: KindList, inner: &inner}
}

// Struct returns a struct type with the given fields.
func Struct(fields ...Field) DataType {
	return DataType{kind: KindStruct, fields: fields}
}

// Kind returns the type family.
func (t DataType) Kind() Kind { return t.kind }

// Unit returns the time resolution of a datetime or duration type.
func (t DataType) Unit() TimeUnit { return t.unit }

// Inner returns the element type of a list type.
func (t DataType) Inner() DataType {
	if t.inner == nil {
		return Invalid
	}
	return *t.inner
}

// Fields returns the fields of a struct type.
func (t DataType) Fields() []Field { return t.fields }

// Equal reports whether two types are identical, including parameters of
// nested types.
func (t DataType) Equal(other DataType) bool {
	if t.kind != other.kind {
		return false
	}
	switch t.kind {
	case KindDatetime, KindDuration:
		return t.unit == other.unit
	case KindList:
		return t.Inner().Equal(other.Inner())
	case KindStruct:
		if len(t.fields) != len(other.fields) {
			return false
		}
		for i := range t.fields {
			if t.fields[i].Name != other.fields[i].Name || !t.fields[i].Type.Equal(other.fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String returns the string representation of the DataType.
func (t DataType) String() string {
	switch t.kind {
	case KindDatetime, KindDuration:
		return fmt.Sprintf("%s[%s]", t.kind, t.unit)
	case KindList:
		return fmt.Sprintf("list[%s]", t.Inner())
	case KindStruct:
		names := make([]string, len(t.fields))
		for i, f := range t.fields {
			names[i] = f.Name
		}
		return fmt.Sprintf("struct[%s]", strings.Join(names, ", "))
	default:
		return t.kind.String()
	}
}

// IsNumeric reports whether the type is an integer or float.
func (t DataType) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// IsInteger reports whether the type is a signed or unsigned integer.
func (t DataType) IsInteger() bool {
	return t.IsSignedInteger() || t.IsUnsignedInteger()
}

// IsSignedInteger reports whether the type is a signed integer.
func (t DataType) IsSignedInteger() bool {
	switch t.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsUnsignedInteger reports whether the type is an unsigned integer.
func (t DataType) IsUnsignedInteger() bool {
	switch t.kind {
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return true
	}
	return false
}

// IsFloat reports whether the type is a float.
func (t DataType) IsFloat() bool {
	return t.kind == KindFloat32 || t.kind == KindFloat64
}

// IsTemporal reports whether the type is date, datetime, duration, or time.
func (t DataType) IsTemporal() bool {
	switch t.kind {
	case KindDate, KindDatetime, KindDuration, KindTime:
		return true
	}
	return false
}

// IsNested reports whether the type is list or struct.
func (t DataType) IsNested() bool {
	return t.kind == KindList || t.kind == KindStruct
}

// IsNull reports whether the type is the null (bottom) type.
func (t DataType) IsNull() bool { return t.kind == KindNull }

// IsUnknown reports whether the type is unresolved until evaluation.
func (t DataType) IsUnknown() bool { return t.kind == KindUnknown }

// bitWidth returns the width used for numeric widening decisions.
func (t DataType) bitWidth() int {
	switch t.kind {
	case KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32:
		return 32
	case KindInt64, KindUInt64:
		return 64
	case KindFloat32:
		return 32
	case KindFloat64:
		return 64
	default:
		return 0
	}
}
