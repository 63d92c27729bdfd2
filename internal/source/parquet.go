package source

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/AmirulAndalib/polars/internal/types"
)

// Parquet serves rows from a Parquet file. The footer is read once at open
// time so the schema is available for planning; row data is decoded on
// demand when the executor opens the source.
type Parquet struct {
	path   string
	file   *os.File
	pq     *parquet.File
	schema types.Schema

	// timeScale maps leaf column index to the multiplier that converts raw
	// TIME values to nanoseconds. Only TIME columns have entries.
	timeScale map[int]int64
}

// OpenParquet opens the file and maps its schema into engine types. Nested
// groups, repeated fields, and physical types without an engine
// representation are rejected here rather than at read time.
func OpenParquet(path string) (*Parquet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open parquet file")
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat parquet file")
	}
	pq, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "read parquet footer of %s", path)
	}
	schema, scales, err := parquetSchema(pq.Schema())
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "map parquet schema of %s", path)
	}
	return &Parquet{path: path, file: f, pq: pq, schema: schema, timeScale: scales}, nil
}

// Name implements the [Source] interface.
func (s *Parquet) Name() string { return filepath.Base(s.path) }

// Schema implements the [Source] interface.
func (s *Parquet) Schema() (types.Schema, error) { return s.schema, nil }

// NumRows returns the row count recorded in the file metadata without
// reading any row data.
func (s *Parquet) NumRows() int64 {
	var n int64
	for _, g := range s.pq.RowGroups() {
		n += g.NumRows()
	}
	return n
}

// Open implements the [Source] interface. Each call gets its own row
// reader, so a source may back several scans at once.
func (s *Parquet) Open(_ context.Context, opts OpenOptions) (RecordReader, error) {
	proj, err := projectSchema(s.schema, opts.Columns)
	if err != nil {
		return nil, err
	}
	// Leaf column index in the file -> field position in the output record.
	cols := make(map[int]int, proj.Len())
	for out, f := range proj.Fields {
		cols[s.schema.Index(f.Name)] = out
	}
	start, end := bounds(opts.Offset, opts.Limit, s.NumRows())
	rows := parquet.NewReader(s.pq)
	if err := rows.SeekToRow(start); err != nil {
		_ = rows.Close()
		return nil, errors.Wrapf(err, "seek to row %d in %s", start, s.path)
	}
	return &parquetReader{
		path:      s.path,
		rows:      rows,
		builder:   array.NewRecordBuilder(allocator(opts), types.ToArrowSchema(proj)),
		cols:      cols,
		timeScale: s.timeScale,
		remaining: end - start,
		batchSize: batchRows(opts),
	}, nil
}

// Close releases the underlying file handle. Readers opened from the source
// must be closed first.
func (s *Parquet) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return errors.Wrap(err, "close parquet file")
}

// parquetSchema maps a flat Parquet schema to engine fields. It also
// collects the nanosecond multiplier for TIME columns, which the engine
// stores at a fixed resolution.
func parquetSchema(s *parquet.Schema) (types.Schema, map[int]int64, error) {
	fields := make([]types.Field, 0, len(s.Fields()))
	scales := make(map[int]int64)
	for i, f := range s.Fields() {
		if len(f.Fields()) > 0 {
			return types.Schema{}, nil, errors.Errorf("nested group %q is not supported", f.Name())
		}
		if f.Repeated() {
			return types.Schema{}, nil, errors.Errorf("repeated field %q is not supported", f.Name())
		}
		dt, scale, err := parquetFieldType(f)
		if err != nil {
			return types.Schema{}, nil, err
		}
		if scale > 0 {
			scales[i] = scale
		}
		fields = append(fields, types.Field{Name: f.Name(), Type: dt})
	}
	return types.NewSchema(fields...), scales, nil
}

func parquetFieldType(f parquet.Field) (types.DataType, int64, error) {
	t := f.Type()
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil:
			return types.String, 0, nil
		case lt.Date != nil:
			return types.Date, 0, nil
		case lt.Timestamp != nil:
			unit := types.UnitMilliseconds
			switch {
			case lt.Timestamp.Unit.Micros != nil:
				unit = types.UnitMicroseconds
			case lt.Timestamp.Unit.Nanos != nil:
				unit = types.UnitNanoseconds
			}
			return types.Datetime(unit), 0, nil
		case lt.Time != nil:
			// The engine keeps time-of-day at nanosecond resolution, which
			// only round-trips from 64-bit time columns.
			if t.Kind() != parquet.Int64 {
				return types.Invalid, 0, errors.Errorf("column %q: only 64-bit TIME is supported", f.Name())
			}
			if lt.Time.Unit.Nanos != nil {
				return types.Time, 1, nil
			}
			return types.Time, 1000, nil
		case lt.Integer != nil:
			dt, ok := intWidthType(int(lt.Integer.BitWidth), lt.Integer.IsSigned)
			if !ok {
				return types.Invalid, 0, errors.Errorf("column %q: unsupported integer width %d", f.Name(), lt.Integer.BitWidth)
			}
			return dt, 0, nil
		case lt.Unknown != nil:
			return types.Null, 0, nil
		case lt.Map != nil, lt.List != nil, lt.Decimal != nil, lt.Bson != nil, lt.UUID != nil:
			return types.Invalid, 0, errors.Errorf("column %q: unsupported logical type %s", f.Name(), lt)
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return types.Bool, 0, nil
	case parquet.Int32:
		return types.Int32, 0, nil
	case parquet.Int64:
		return types.Int64, 0, nil
	case parquet.Float:
		return types.Float32, 0, nil
	case parquet.Double:
		return types.Float64, 0, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return types.String, 0, nil
	default:
		return types.Invalid, 0, errors.Errorf("column %q: unsupported physical type %s", f.Name(), t.Kind())
	}
}

func intWidthType(bits int, signed bool) (types.DataType, bool) {
	if signed {
		switch bits {
		case 8:
			return types.Int8, true
		case 16:
			return types.Int16, true
		case 32:
			return types.Int32, true
		case 64:
			return types.Int64, true
		}
		return types.Invalid, false
	}
	switch bits {
	case 8:
		return types.UInt8, true
	case 16:
		return types.UInt16, true
	case 32:
		return types.UInt32, true
	case 64:
		return types.UInt64, true
	}
	return types.Invalid, false
}

// parquetReader decodes row batches into Arrow records. Values are routed
// by leaf column index, so projections simply skip columns no output field
// wants.
type parquetReader struct {
	path      string
	rows      *parquet.Reader
	builder   *array.RecordBuilder
	cols      map[int]int
	timeScale map[int]int64
	buf       []parquet.Row
	remaining int64
	batchSize int64
	done      bool
}

func (r *parquetReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done || r.remaining <= 0 {
		return nil, io.EOF
	}
	want := min(r.batchSize, r.remaining)
	if int64(cap(r.buf)) < want {
		r.buf = make([]parquet.Row, want)
	}
	buf := r.buf[:want]

	var got int64
	for got < want && !r.done {
		n, err := r.rows.ReadRows(buf[got:])
		for _, row := range buf[got : got+int64(n)] {
			if aerr := r.appendRow(row); aerr != nil {
				return nil, errors.Wrapf(aerr, "decode parquet row in %s", r.path)
			}
		}
		got += int64(n)
		switch {
		case errors.Is(err, io.EOF):
			r.done = true
		case err != nil:
			return nil, errors.Wrapf(err, "read parquet rows from %s", r.path)
		}
	}
	r.remaining -= got
	if got == 0 {
		return nil, io.EOF
	}
	return r.builder.NewRecord(), nil
}

func (r *parquetReader) appendRow(row parquet.Row) error {
	for _, v := range row {
		out, ok := r.cols[v.Column()]
		if !ok {
			continue
		}
		if err := appendParquetValue(r.builder.Field(out), v, r.timeScale[v.Column()]); err != nil {
			return err
		}
	}
	return nil
}

func (r *parquetReader) Close() error {
	r.builder.Release()
	return errors.Wrap(r.rows.Close(), "close parquet reader")
}

func appendParquetValue(b array.Builder, v parquet.Value, timeScale int64) error {
	if v.IsNull() {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(v.Boolean())
	case *array.Int8Builder:
		b.Append(int8(v.Int32()))
	case *array.Int16Builder:
		b.Append(int16(v.Int32()))
	case *array.Int32Builder:
		b.Append(v.Int32())
	case *array.Int64Builder:
		b.Append(v.Int64())
	case *array.Uint8Builder:
		b.Append(uint8(v.Int32()))
	case *array.Uint16Builder:
		b.Append(uint16(v.Int32()))
	case *array.Uint32Builder:
		b.Append(uint32(v.Int32()))
	case *array.Uint64Builder:
		b.Append(uint64(v.Int64()))
	case *array.Float32Builder:
		b.Append(v.Float())
	case *array.Float64Builder:
		b.Append(v.Double())
	case *array.StringBuilder:
		b.Append(string(v.ByteArray()))
	case *array.Date32Builder:
		b.Append(arrow.Date32(v.Int32()))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v.Int64()))
	case *array.Time64Builder:
		b.Append(arrow.Time64(v.Int64() * timeScale))
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return errors.Errorf("unsupported column type %s", b.Type())
	}
	return nil
}
