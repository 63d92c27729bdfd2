package polars

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/source"
	"github.com/AmirulAndalib/polars/internal/types"
)

var jsonStd = jsoniter.ConfigCompatibleWithStandardLibrary

// Series is one named column of input data for [NewDataFrame]. Values holds
// a Go slice; see [NewDataFrame] for the accepted element types.
type Series struct {
	Name   string
	Values any
}

// DataFrame is a materialized table: equally long, named, typed columns
// backed by a single Arrow record. Frames own their record; call
// [DataFrame.Release] when done to return the memory to the allocator.
// Under the default Go allocator unreleased memory is still reclaimed by the
// garbage collector.
type DataFrame struct {
	rec    arrow.Record
	schema types.Schema
}

// newFrame takes ownership of rec.
func newFrame(rec arrow.Record) (*DataFrame, error) {
	schema, err := types.FromArrowSchema(rec.Schema())
	if err != nil {
		rec.Release()
		return nil, fmt.Errorf("%w: %s", errors.ErrCompute, err)
	}
	return &DataFrame{rec: rec, schema: schema}, nil
}

// NewDataFrame builds a frame column by column. Accepted slice types per
// series: []bool, []int8 through []int64, []int, []uint8 through []uint64,
// []uint, []float32, []float64, []string, []time.Time (datetime[us]),
// []time.Duration (duration[ns]), and []any. An []any column may hold nil
// for null; its dtype is inferred from the first non-nil element (signed
// integers widen to i64, unsigned to u64, floats to f64) and every later
// element must fit that dtype. An all-nil column is typed null.
//
// All series must share one length ([ErrShape]) and names must be unique
// ([ErrDuplicate]).
func NewDataFrame(series ...Series) (*DataFrame, error) {
	alloc := memory.DefaultAllocator
	fields := make([]arrow.Field, len(series))
	columns := make([]arrow.Array, len(series))
	seen := make(map[string]struct{}, len(series))

	release := func() {
		for _, col := range columns {
			if col != nil {
				col.Release()
			}
		}
	}

	height := int64(-1)
	for i, s := range series {
		if _, dup := seen[s.Name]; dup {
			release()
			return nil, fmt.Errorf("%w: the name %q is duplicate", errors.ErrDuplicate, s.Name)
		}
		seen[s.Name] = struct{}{}

		col, err := buildColumn(alloc, s.Values)
		if err != nil {
			release()
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		if height >= 0 && int64(col.Len()) != height {
			got := col.Len()
			col.Release()
			release()
			return nil, fmt.Errorf("%w: series %q has length %d, expected %d", errors.ErrShape, s.Name, got, height)
		}
		height = int64(col.Len())
		columns[i] = col
		fields[i] = arrow.Field{Name: s.Name, Type: col.DataType(), Nullable: true}
	}
	height = max(height, 0)

	rec := array.NewRecord(arrow.NewSchema(fields, nil), columns, height)
	release()
	return newFrame(rec)
}

// NewDataFrameFromRows builds a frame from row-major data. Each row holds
// one value per column, nil meaning null. Dtypes are inferred per column
// from the first non-nil value, as for an []any series in [NewDataFrame].
// Ragged rows are rejected with [ErrShape].
func NewDataFrameFromRows(columns []string, rows [][]any) (*DataFrame, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", errors.ErrShape, i, len(row), len(columns))
		}
	}
	series := make([]Series, len(columns))
	for i, name := range columns {
		values := make([]any, len(rows))
		for j, row := range rows {
			values[j] = row[i]
		}
		series[i] = Series{Name: name, Values: values}
	}
	return NewDataFrame(series...)
}

// Height returns the number of rows.
func (df *DataFrame) Height() int64 { return df.rec.NumRows() }

// Width returns the number of columns.
func (df *DataFrame) Width() int { return int(df.rec.NumCols()) }

// Schema returns the column layout.
func (df *DataFrame) Schema() Schema { return df.schema }

// Columns returns the column names in order.
func (df *DataFrame) Columns() []string { return df.schema.Names() }

// Column returns the named column's backing array. The array stays owned by
// the frame; retain it to keep it past [DataFrame.Release].
func (df *DataFrame) Column(name string) (arrow.Array, error) {
	idx := df.schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", errors.ErrColumnNotFound, name)
	}
	return df.rec.Column(idx), nil
}

// Record returns the backing Arrow record without transferring ownership.
func (df *DataFrame) Record() arrow.Record { return df.rec }

// Release returns the frame's memory to the allocator. The frame must not
// be used afterwards.
func (df *DataFrame) Release() {
	if df.rec != nil {
		df.rec.Release()
		df.rec = nil
	}
}

// Lazy returns a lazy frame scanning this frame's data. The plan holds its
// own reference to the record, released by [LazyFrame.Close], so releasing
// df after building the plan is safe.
func (df *DataFrame) Lazy() LazyFrame {
	src := source.NewInMemory("", df.rec)
	return LazyFrame{
		plan:    logical.NewMakeTable(src),
		closers: []closer{releaseCloser{src}},
	}
}

// Append adds other's rows below df's, in place. The schema check is
// atomic: on any mismatch df is left untouched. Width and column-name
// mismatches are [ErrShape], column-type mismatches are [ErrCompute]. other
// is not consumed.
func (df *DataFrame) Append(other *DataFrame) error {
	if err := checkStackSchemas(df.schema, other.schema); err != nil {
		return err
	}
	columns := make([]arrow.Array, df.rec.NumCols())
	for i := range columns {
		col, err := array.Concatenate([]arrow.Array{df.rec.Column(i), other.rec.Column(i)}, memory.DefaultAllocator)
		if err != nil {
			releaseArrays(columns[:i])
			return fmt.Errorf("%w: concatenate column %q: %s", errors.ErrCompute, df.schema.Fields[i].Name, err)
		}
		columns[i] = col
	}
	rec := array.NewRecord(df.rec.Schema(), columns, df.rec.NumRows()+other.rec.NumRows())
	releaseArrays(columns)
	df.rec.Release()
	df.rec = rec
	return nil
}

// VStack returns a new frame with other's rows below df's. Neither input is
// modified or consumed.
func (df *DataFrame) VStack(other *DataFrame) (*DataFrame, error) {
	out := &DataFrame{rec: df.rec, schema: df.schema}
	out.rec.Retain()
	if err := out.Append(other); err != nil {
		out.rec.Release()
		return nil, err
	}
	return out, nil
}

// checkStackSchemas verifies that two frames can be stacked vertically,
// with the same error wording the planner uses for lazy concatenation.
func checkStackSchemas(want, got types.Schema) error {
	if want.Len() != got.Len() {
		return fmt.Errorf("%w: cannot vstack frames of width %d and %d", errors.ErrShape, want.Len(), got.Len())
	}
	for i := range want.Fields {
		if want.Fields[i].Name != got.Fields[i].Name {
			return fmt.Errorf("%w: column %d name mismatch: %q != %q",
				errors.ErrShape, i, want.Fields[i].Name, got.Fields[i].Name)
		}
		if !want.Fields[i].Type.Equal(got.Fields[i].Type) {
			return fmt.Errorf("%w: column %q type mismatch: %s != %s",
				errors.ErrCompute, want.Fields[i].Name, want.Fields[i].Type, got.Fields[i].Type)
		}
	}
	return nil
}

func releaseArrays(arrays []arrow.Array) {
	for _, a := range arrays {
		a.Release()
	}
}

// Rows materializes the frame as row-major Go values: nil for null, bool,
// int64/uint64/float64 for numerics, string, time.Time for dates and
// datetimes, time.Duration for durations and times of day, []any for lists,
// and map[string]any for structs.
func (df *DataFrame) Rows() ([][]any, error) {
	rows := make([][]any, df.rec.NumRows())
	for i := range rows {
		rows[i] = make([]any, df.rec.NumCols())
	}
	for c := range int(df.rec.NumCols()) {
		col := df.rec.Column(c)
		for r := range rows {
			v, err := goValue(col, r)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", df.schema.Fields[c].Name, err)
			}
			rows[r][c] = v
		}
	}
	return rows, nil
}

// MarshalJSON encodes the frame as an array of row objects keyed by column
// name, keys in column order. Temporal values use Go's default JSON
// encoding: RFC 3339 for time.Time, integer nanoseconds for time.Duration.
func (df *DataFrame) MarshalJSON() ([]byte, error) {
	rows, err := df.Rows()
	if err != nil {
		return nil, err
	}
	names := df.schema.Names()

	stream := jsonStd.BorrowStream(nil)
	defer jsonStd.ReturnStream(stream)
	stream.WriteArrayStart()
	for r, row := range rows {
		if r > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectStart()
		for c, name := range names {
			if c > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(name)
			stream.WriteVal(row[c])
		}
		stream.WriteObjectEnd()
	}
	stream.WriteArrayEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// String renders a short preview: a shape line, the column names and
// dtypes, and up to the first eight rows.
func (df *DataFrame) String() string {
	const previewRows = 8

	var sb strings.Builder
	fmt.Fprintf(&sb, "shape: (%s, %d)\n", humanize.Comma(df.rec.NumRows()), df.rec.NumCols())

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	names := df.schema.Names()
	fmt.Fprintln(w, strings.Join(names, "\t"))
	dtypes := make([]string, len(df.schema.Fields))
	for i, f := range df.schema.Fields {
		dtypes[i] = f.Type.String()
	}
	fmt.Fprintln(w, strings.Join(dtypes, "\t"))

	shown := int(min(df.rec.NumRows(), previewRows))
	cells := make([]string, df.rec.NumCols())
	for r := range shown {
		for c := range cells {
			v, err := goValue(df.rec.Column(c), r)
			if err != nil {
				v = "?"
			}
			cells[c] = cellString(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	if rest := df.rec.NumRows() - int64(shown); rest > 0 {
		fmt.Fprintf(&sb, "… with %s more rows\n", humanize.Comma(rest))
	}
	return sb.String()
}

func cellString(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

// buildColumn converts one Go slice into an Arrow array.
func buildColumn(alloc memory.Allocator, values any) (arrow.Array, error) {
	switch v := values.(type) {
	case []bool:
		b := array.NewBooleanBuilder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int8:
		b := array.NewInt8Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int16:
		b := array.NewInt16Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int32:
		b := array.NewInt32Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int64:
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []int:
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		b.Reserve(len(v))
		for _, x := range v {
			b.Append(int64(x))
		}
		return b.NewArray(), nil
	case []uint8:
		b := array.NewUint8Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint16:
		b := array.NewUint16Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint32:
		b := array.NewUint32Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint64:
		b := array.NewUint64Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []uint:
		b := array.NewUint64Builder(alloc)
		defer b.Release()
		b.Reserve(len(v))
		for _, x := range v {
			b.Append(uint64(x))
		}
		return b.NewArray(), nil
	case []float32:
		b := array.NewFloat32Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []float64:
		b := array.NewFloat64Builder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []string:
		b := array.NewStringBuilder(alloc)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil
	case []time.Time:
		b := array.NewTimestampBuilder(alloc, &arrow.TimestampType{Unit: arrow.Microsecond})
		defer b.Release()
		b.Reserve(len(v))
		for _, t := range v {
			b.Append(arrow.Timestamp(t.UnixMicro()))
		}
		return b.NewArray(), nil
	case []time.Duration:
		b := array.NewDurationBuilder(alloc, &arrow.DurationType{Unit: arrow.Nanosecond})
		defer b.Release()
		b.Reserve(len(v))
		for _, d := range v {
			b.Append(arrow.Duration(d))
		}
		return b.NewArray(), nil
	case []any:
		return buildAnyColumn(alloc, v)
	case nil:
		return nil, fmt.Errorf("%w: series holds no values", errors.ErrCompute)
	default:
		return nil, fmt.Errorf("%w: cannot build a column from %T", errors.ErrCompute, values)
	}
}

// buildAnyColumn infers the dtype from the first non-nil element, then
// appends every element to a builder of that type.
func buildAnyColumn(alloc memory.Allocator, values []any) (arrow.Array, error) {
	dtype := types.Null
	for _, v := range values {
		if v == nil {
			continue
		}
		inferred, err := goValueType(v)
		if err != nil {
			return nil, err
		}
		dtype = inferred
		break
	}

	b := array.NewBuilder(alloc, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(len(values))
	for i, v := range values {
		if err := appendGoValue(b, v); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.NewArray(), nil
}

func goValueType(v any) (types.DataType, error) {
	switch v.(type) {
	case bool:
		return types.Bool, nil
	case int, int8, int16, int32, int64:
		return types.Int64, nil
	case uint, uint8, uint16, uint32, uint64:
		return types.UInt64, nil
	case float32, float64:
		return types.Float64, nil
	case string:
		return types.String, nil
	case time.Time:
		return types.Datetime(types.UnitMicroseconds), nil
	case time.Duration:
		return types.Duration(types.UnitNanoseconds), nil
	default:
		return types.Invalid, fmt.Errorf("%w: cannot infer dtype from Go value of type %T", errors.ErrCompute, v)
	}
}

func appendGoValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		if x, ok := v.(bool); ok {
			b.Append(x)
			return nil
		}
	case *array.Int64Builder:
		if x, ok := asSignedValue(v); ok {
			b.Append(x)
			return nil
		}
	case *array.Uint64Builder:
		if x, ok := asUnsignedValue(v); ok {
			b.Append(x)
			return nil
		}
	case *array.Float64Builder:
		if x, ok := asFloatValue(v); ok {
			b.Append(x)
			return nil
		}
	case *array.StringBuilder:
		if x, ok := v.(string); ok {
			b.Append(x)
			return nil
		}
	case *array.TimestampBuilder:
		if t, ok := v.(time.Time); ok {
			b.Append(arrow.Timestamp(t.UnixMicro()))
			return nil
		}
	case *array.DurationBuilder:
		if d, ok := v.(time.Duration); ok {
			b.Append(arrow.Duration(d))
			return nil
		}
	}
	return fmt.Errorf("%w: cannot store %T value in %s column", errors.ErrCompute, v, b.Type())
}

func asSignedValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asUnsignedValue(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}

func asFloatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// goValue decodes one cell into the Go value convention of
// [DataFrame.Rows].
func goValue(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	switch arr := arr.(type) {
	case *array.Null:
		return nil, nil
	case *array.Boolean:
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
	case *array.String:
		return arr.Value(i), nil
	case *array.Date32:
		return arr.Value(i).ToTime(), nil
	case *array.Timestamp:
		return arr.Value(i).ToTime(arr.DataType().(*arrow.TimestampType).Unit), nil
	case *array.Duration:
		d := int64(arr.Value(i))
		switch arr.DataType().(*arrow.DurationType).Unit {
		case arrow.Second:
			return time.Duration(d) * time.Second, nil
		case arrow.Millisecond:
			return time.Duration(d) * time.Millisecond, nil
		case arrow.Microsecond:
			return time.Duration(d) * time.Microsecond, nil
		default:
			return time.Duration(d), nil
		}
	case *array.Time64:
		return time.Duration(arr.Value(i)), nil
	case *array.List:
		start, end := arr.ValueOffsets(i)
		elems := arr.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			v, err := goValue(elems, int(j))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *array.Struct:
		st := arr.DataType().(*arrow.StructType)
		out := make(map[string]any, arr.NumField())
		for f := range arr.NumField() {
			v, err := goValue(arr.Field(f), i)
			if err != nil {
				return nil, err
			}
			out[st.Field(f).Name] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported column type %s", errors.ErrCompute, arr.DataType())
	}
}
