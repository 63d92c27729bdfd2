package polars

import (
	"github.com/AmirulAndalib/polars/internal/types"
)

// DataType describes the semantic type of a column. The zero value is
// invalid; use the package-level singletons or the parameterized
// constructors.
type DataType = types.DataType

// TimeUnit is the resolution of datetimes and durations.
type TimeUnit = types.TimeUnit

// Field is a named, typed column slot in a schema.
type Field = types.Field

// Schema is an ordered set of fields.
type Schema = types.Schema

// Recognized time units.
const (
	UnitSeconds      = types.UnitSeconds
	UnitMilliseconds = types.UnitMilliseconds
	UnitMicroseconds = types.UnitMicroseconds
	UnitNanoseconds  = types.UnitNanoseconds
)

// Scalar data types.
var (
	Null    = types.Null
	Bool    = types.Bool
	Int8    = types.Int8
	Int16   = types.Int16
	Int32   = types.Int32
	Int64   = types.Int64
	UInt8   = types.UInt8
	UInt16  = types.UInt16
	UInt32  = types.UInt32
	UInt64  = types.UInt64
	Float32 = types.Float32
	Float64 = types.Float64
	String  = types.String
	Date    = types.Date
	Time    = types.Time
)

// Datetime returns the datetime type at the given resolution.
func Datetime(unit TimeUnit) DataType { return types.Datetime(unit) }

// Duration returns the duration type at the given resolution.
func Duration(unit TimeUnit) DataType { return types.Duration(unit) }

// List returns the list type with the given element type.
func List(inner DataType) DataType { return types.List(inner) }

// Struct returns the struct type with the given fields.
func Struct(fields ...Field) DataType { return types.Struct(fields...) }

// NewSchema builds a schema from fields in order.
func NewSchema(fields ...Field) Schema { return types.NewSchema(fields...) }
