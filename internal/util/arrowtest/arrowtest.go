// Package arrowtest provides helpers for constructing and comparing Arrow
// records in tests.
package arrowtest

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row holds the values of a single row keyed by column name. A nil value
// denotes null.
type Row map[string]any

// Rows is a slice of [Row], usable as a literal representation of a record.
//
// Values map to columns as follows: booleans and strings map directly,
// signed integers are given as int64 (int is accepted for convenience),
// unsigned integers as uint64, floats as float64, date columns as int32
// days, and the remaining temporal columns as their int64 tick count. List
// values are []any of element values, struct values map[string]any keyed by
// field name.
type Rows []Row

// Record converts the rows into a record of the given schema. Record panics
// when a value does not fit its column, since it is meant to be used with
// fixed test data.
func (r Rows) Record(alloc memory.Allocator, schema *arrow.Schema) arrow.Record {
	rb := array.NewRecordBuilder(alloc, schema)
	defer rb.Release()

	for _, row := range r {
		for i := 0; i < schema.NumFields(); i++ {
			field := schema.Field(i)
			value, ok := row[field.Name]
			if !ok {
				value = nil
			}
			if err := appendValue(rb.Field(i), value); err != nil {
				panic(fmt.Sprintf("arrowtest: column %q: %s", field.Name, err))
			}
		}
	}
	return rb.NewRecord()
}

// RecordRows converts a record back into rows using the same value mapping
// as [Rows.Record].
func RecordRows(rec arrow.Record) (Rows, error) {
	rows := make(Rows, rec.NumRows())
	schema := rec.Schema()
	for i := range rows {
		row := make(Row, rec.NumCols())
		for j := 0; j < int(rec.NumCols()); j++ {
			value, err := columnValue(rec.Column(j), i)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", schema.Field(j).Name, err)
			}
			row[schema.Field(j).Name] = value
		}
		rows[i] = row
	}
	return rows, nil
}

func appendValue(b array.Builder, value any) error {
	if value == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return typeError(value, b)
		}
		b.Append(v)
	case *array.StringBuilder:
		v, ok := value.(string)
		if !ok {
			return typeError(value, b)
		}
		b.Append(v)
	case *array.Int8Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(int8(v))
	case *array.Int16Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(int16(v))
	case *array.Int32Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(int32(v))
	case *array.Int64Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(v)
	case *array.Uint8Builder:
		v, ok := asUint64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(uint8(v))
	case *array.Uint16Builder:
		v, ok := asUint64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(uint16(v))
	case *array.Uint32Builder:
		v, ok := asUint64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(uint32(v))
	case *array.Uint64Builder:
		v, ok := asUint64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(v)
	case *array.Float32Builder:
		v, ok := asFloat64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(float32(v))
	case *array.Float64Builder:
		v, ok := asFloat64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(v)
	case *array.Date32Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(arrow.Date32(v))
	case *array.TimestampBuilder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(arrow.Timestamp(v))
	case *array.Time64Builder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(arrow.Time64(v))
	case *array.DurationBuilder:
		v, ok := asInt64(value)
		if !ok {
			return typeError(value, b)
		}
		b.Append(arrow.Duration(v))
	case *array.ListBuilder:
		vs, ok := value.([]any)
		if !ok {
			return typeError(value, b)
		}
		b.Append(true)
		for _, v := range vs {
			if err := appendValue(b.ValueBuilder(), v); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		vs, ok := value.(map[string]any)
		if !ok {
			return typeError(value, b)
		}
		b.Append(true)
		st := b.Type().(*arrow.StructType)
		for i := 0; i < st.NumFields(); i++ {
			if err := appendValue(b.FieldBuilder(i), vs[st.Field(i).Name]); err != nil {
				return err
			}
		}
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return fmt.Errorf("unsupported builder type %s", b.Type())
	}
	return nil
}

func columnValue(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}

	switch arr := arr.(type) {
	case *array.Boolean:
		return arr.Value(i), nil
	case *array.String:
		return arr.Value(i), nil
	case *array.Int8:
		return int64(arr.Value(i)), nil
	case *array.Int16:
		return int64(arr.Value(i)), nil
	case *array.Int32:
		return int64(arr.Value(i)), nil
	case *array.Int64:
		return arr.Value(i), nil
	case *array.Uint8:
		return uint64(arr.Value(i)), nil
	case *array.Uint16:
		return uint64(arr.Value(i)), nil
	case *array.Uint32:
		return uint64(arr.Value(i)), nil
	case *array.Uint64:
		return arr.Value(i), nil
	case *array.Float32:
		return float64(arr.Value(i)), nil
	case *array.Float64:
		return arr.Value(i), nil
	case *array.Date32:
		return int64(arr.Value(i)), nil
	case *array.Timestamp:
		return int64(arr.Value(i)), nil
	case *array.Time64:
		return int64(arr.Value(i)), nil
	case *array.Duration:
		return int64(arr.Value(i)), nil
	case *array.List:
		start, end := arr.ValueOffsets(i)
		values := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			v, err := columnValue(arr.ListValues(), int(j))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	case *array.Struct:
		st := arr.DataType().(*arrow.StructType)
		fields := make(map[string]any, arr.NumField())
		for j := 0; j < arr.NumField(); j++ {
			v, err := columnValue(arr.Field(j), i)
			if err != nil {
				return nil, err
			}
			fields[st.Field(j).Name] = v
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", arr.DataType())
	}
}

func typeError(value any, b array.Builder) error {
	return fmt.Errorf("cannot use %T as %s", value, b.Type())
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func asUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
