package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
)

// readAll drains the input pipeline and concatenates its batches into a
// single record. The schema is used when the input produces no batches at
// all. The input pipeline is not closed.
func readAll(ctx context.Context, input Pipeline, mem memory.Allocator, schema *arrow.Schema) (arrow.Record, error) {
	var batches []arrow.Record
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	for {
		batch, err := input.Read(ctx)
		if errors.Is(err, EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	switch len(batches) {
	case 0:
		return emptyRecord(mem, schema), nil
	case 1:
		rec := batches[0]
		batches = nil
		return rec, nil
	}

	rows := int64(0)
	for _, b := range batches {
		rows += b.NumRows()
	}
	cols := make([]arrow.Array, batches[0].Schema().NumFields())
	defer releaseAll(cols)
	for i := range cols {
		parts := make([]arrow.Array, len(batches))
		for j, b := range batches {
			parts[j] = b.Column(i)
		}
		merged, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("%w: concatenate batches: %v", errors.ErrCompute, err)
		}
		cols[i] = merged
	}
	return array.NewRecord(batches[0].Schema(), cols, rows), nil
}

// ReadAll drains the pipeline and concatenates its batches into a single
// record. The schema reconstructs an empty result when the pipeline produces
// no batches. The pipeline is not closed.
func ReadAll(ctx context.Context, p Pipeline, mem memory.Allocator, schema *arrow.Schema) (arrow.Record, error) {
	return readAll(ctx, p, mem, schema)
}

// emptyRecord returns a record with the given schema and no rows.
func emptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	return rb.NewRecord()
}

// recordFromColumns assembles a record from named columns, deriving the
// schema from the array types. Ownership of the columns passes to the
// record.
func recordFromColumns(names []string, cols []arrow.Array, rows int64) arrow.Record {
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		fields[i] = arrow.Field{Name: names[i], Type: col.DataType(), Nullable: true}
	}
	rec := array.NewRecord(arrow.NewSchema(fields, nil), cols, rows)
	releaseAll(cols)
	return rec
}

func releaseAll(arrs []arrow.Array) {
	for _, arr := range arrs {
		if arr != nil {
			arr.Release()
		}
	}
}

// takeArray gathers the rows of arr selected by indices, in index order.
func takeArray(mem memory.Allocator, arr arrow.Array, indices []int) (arrow.Array, error) {
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(len(indices))
	for _, i := range indices {
		if err := copyValue(b, arr, i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// takeRecord gathers the rows of rec selected by indices, in index order.
func takeRecord(mem memory.Allocator, rec arrow.Record, indices []int) (arrow.Record, error) {
	cols := make([]arrow.Array, rec.NumCols())
	defer releaseAll(cols)
	for i := range cols {
		taken, err := takeArray(mem, rec.Column(i), indices)
		if err != nil {
			return nil, err
		}
		cols[i] = taken
	}
	return array.NewRecord(rec.Schema(), cols, int64(len(indices))), nil
}

// repeatValue builds an array of length n repeating the value of arr at
// index i.
func repeatValue(mem memory.Allocator, arr arrow.Array, i, n int) (arrow.Array, error) {
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(n)
	for k := 0; k < n; k++ {
		if err := copyValue(b, arr, i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// copyValue appends the value of arr at index i to the builder. The builder
// must have been created for the array's type.
func copyValue(b array.Builder, arr arrow.Array, i int) error {
	if arr.IsNull(i) {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(arr.(*array.Boolean).Value(i))
	case *array.Int8Builder:
		b.Append(arr.(*array.Int8).Value(i))
	case *array.Int16Builder:
		b.Append(arr.(*array.Int16).Value(i))
	case *array.Int32Builder:
		b.Append(arr.(*array.Int32).Value(i))
	case *array.Int64Builder:
		b.Append(arr.(*array.Int64).Value(i))
	case *array.Uint8Builder:
		b.Append(arr.(*array.Uint8).Value(i))
	case *array.Uint16Builder:
		b.Append(arr.(*array.Uint16).Value(i))
	case *array.Uint32Builder:
		b.Append(arr.(*array.Uint32).Value(i))
	case *array.Uint64Builder:
		b.Append(arr.(*array.Uint64).Value(i))
	case *array.Float32Builder:
		b.Append(arr.(*array.Float32).Value(i))
	case *array.Float64Builder:
		b.Append(arr.(*array.Float64).Value(i))
	case *array.StringBuilder:
		b.Append(arr.(*array.String).Value(i))
	case *array.Date32Builder:
		b.Append(arr.(*array.Date32).Value(i))
	case *array.TimestampBuilder:
		b.Append(arr.(*array.Timestamp).Value(i))
	case *array.Time64Builder:
		b.Append(arr.(*array.Time64).Value(i))
	case *array.DurationBuilder:
		b.Append(arr.(*array.Duration).Value(i))
	case *array.ListBuilder:
		list := arr.(*array.List)
		b.Append(true)
		vb := b.ValueBuilder()
		start, end := list.ValueOffsets(i)
		for j := start; j < end; j++ {
			if err := copyValue(vb, list.ListValues(), int(j)); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		st := arr.(*array.Struct)
		b.Append(true)
		for f := 0; f < b.NumField(); f++ {
			if err := copyValue(b.FieldBuilder(f), st.Field(f), i); err != nil {
				return err
			}
		}
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return fmt.Errorf("%w: unsupported column type %s", errors.ErrCompute, b.Type())
	}
	return nil
}
