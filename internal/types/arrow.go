package types

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ToArrow returns the Arrow physical type backing a semantic type.
func ToArrow(t DataType) arrow.DataType {
	switch t.Kind() {
	case KindNull:
		return arrow.Null
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindInt8:
		return arrow.PrimitiveTypes.Int8
	case KindInt16:
		return arrow.PrimitiveTypes.Int16
	case KindInt32:
		return arrow.PrimitiveTypes.Int32
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindUInt8:
		return arrow.PrimitiveTypes.Uint8
	case KindUInt16:
		return arrow.PrimitiveTypes.Uint16
	case KindUInt32:
		return arrow.PrimitiveTypes.Uint32
	case KindUInt64:
		return arrow.PrimitiveTypes.Uint64
	case KindFloat32:
		return arrow.PrimitiveTypes.Float32
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	case KindDatetime:
		return &arrow.TimestampType{Unit: toArrowUnit(t.Unit())}
	case KindDuration:
		return &arrow.DurationType{Unit: toArrowUnit(t.Unit())}
	case KindTime:
		return arrow.FixedWidthTypes.Time64ns
	case KindList:
		return arrow.ListOf(ToArrow(t.Inner()))
	case KindStruct:
		fields := make([]arrow.Field, len(t.Fields()))
		for i, f := range t.Fields() {
			fields[i] = arrow.Field{Name: f.Name, Type: ToArrow(f.Type), Nullable: true}
		}
		return arrow.StructOf(fields...)
	default:
		return arrow.Null
	}
}

// FromArrow returns the semantic type for an Arrow physical type.
func FromArrow(t arrow.DataType) (DataType, error) {
	switch t.ID() {
	case arrow.NULL:
		return Null, nil
	case arrow.BOOL:
		return Bool, nil
	case arrow.INT8:
		return Int8, nil
	case arrow.INT16:
		return Int16, nil
	case arrow.INT32:
		return Int32, nil
	case arrow.INT64:
		return Int64, nil
	case arrow.UINT8:
		return UInt8, nil
	case arrow.UINT16:
		return UInt16, nil
	case arrow.UINT32:
		return UInt32, nil
	case arrow.UINT64:
		return UInt64, nil
	case arrow.FLOAT32:
		return Float32, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return String, nil
	case arrow.DATE32:
		return Date, nil
	case arrow.TIMESTAMP:
		return Datetime(fromArrowUnit(t.(*arrow.TimestampType).Unit)), nil
	case arrow.DURATION:
		return Duration(fromArrowUnit(t.(*arrow.DurationType).Unit)), nil
	case arrow.TIME64:
		return Time, nil
	case arrow.LIST:
		inner, err := FromArrow(t.(*arrow.ListType).Elem())
		if err != nil {
			return Invalid, err
		}
		return List(inner), nil
	case arrow.STRUCT:
		st := t.(*arrow.StructType)
		fields := make([]Field, st.NumFields())
		for i := range st.NumFields() {
			f := st.Field(i)
			inner, err := FromArrow(f.Type)
			if err != nil {
				return Invalid, err
			}
			fields[i] = Field{Name: f.Name, Type: inner}
		}
		return Struct(fields...), nil
	default:
		return Invalid, fmt.Errorf("unsupported arrow type %s", t)
	}
}

// ToArrowSchema converts a schema to its Arrow representation. All fields are
// nullable.
func ToArrowSchema(s Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: ToArrow(f.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrowSchema converts an Arrow schema to a semantic schema.
func FromArrowSchema(s *arrow.Schema) (Schema, error) {
	fields := make([]Field, len(s.Fields()))
	for i, f := range s.Fields() {
		dt, err := FromArrow(f.Type)
		if err != nil {
			return Schema{}, err
		}
		fields[i] = Field{Name: f.Name, Type: dt}
	}
	return NewSchema(fields...), nil
}

func toArrowUnit(u TimeUnit) arrow.TimeUnit {
	switch u {
	case UnitSeconds:
		return arrow.Second
	case UnitMilliseconds:
		return arrow.Millisecond
	case UnitMicroseconds:
		return arrow.Microsecond
	default:
		return arrow.Nanosecond
	}
}

func fromArrowUnit(u arrow.TimeUnit) TimeUnit {
	switch u {
	case arrow.Second:
		return UnitSeconds
	case arrow.Millisecond:
		return UnitMilliseconds
	case arrow.Microsecond:
		return UnitMicroseconds
	default:
		return UnitNanoseconds
	}
}
