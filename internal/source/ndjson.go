package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/AmirulAndalib/polars/internal/types"
)

// jsonRows keeps numbers as json.Number so integer columns are not forced
// through float64.
var jsonRows = jsoniter.Config{UseNumber: true}.Froze()

// DefaultInferLength is the number of leading rows scanned to infer an
// NDJSON schema when the caller does not choose one.
const DefaultInferLength = 100

// NDJSON serves rows from a newline-delimited JSON file: one object per
// line, blank lines skipped. Fields keep the order in which they first
// appear in the file.
type NDJSON struct {
	path   string
	schema types.Schema
}

// OpenNDJSON infers the schema from the first inferLen rows
// (DefaultInferLength when inferLen <= 0). Integer-valued numbers infer as
// i64 and fractional ones as f64; a column seen with both is f64. A field
// never seen with a non-null value infers as null.
func OpenNDJSON(path string, inferLen int) (*NDJSON, error) {
	if inferLen <= 0 {
		inferLen = DefaultInferLength
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open ndjson file")
	}
	defer func() { _ = f.Close() }()
	schema, err := inferNDJSONSchema(bufio.NewReader(f), inferLen)
	if err != nil {
		return nil, errors.Wrapf(err, "infer schema of %s", path)
	}
	return &NDJSON{path: path, schema: schema}, nil
}

// Name implements the [Source] interface.
func (s *NDJSON) Name() string { return filepath.Base(s.path) }

// Schema implements the [Source] interface.
func (s *NDJSON) Schema() (types.Schema, error) { return s.schema, nil }

// Open implements the [Source] interface. The file is reopened per call, so
// a source may back several scans at once.
func (s *NDJSON) Open(_ context.Context, opts OpenOptions) (RecordReader, error) {
	proj, err := projectSchema(s.schema, opts.Columns)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "open ndjson file")
	}
	return &ndjsonReader{
		path:      s.path,
		file:      f,
		lines:     bufio.NewReader(f),
		builder:   array.NewRecordBuilder(allocator(opts), types.ToArrowSchema(proj)),
		fields:    proj.Fields,
		row:       make(map[string]interface{}, proj.Len()),
		skip:      max(opts.Offset, 0),
		remaining: opts.Limit,
		batchSize: batchRows(opts),
	}, nil
}

// readLine returns the next line without its terminator and surrounding
// whitespace. The final line may come back together with io.EOF.
func readLine(r *bufio.Reader) ([]byte, error) {
	raw, err := r.ReadBytes('\n')
	return bytes.TrimSpace(raw), err
}

func inferNDJSONSchema(r *bufio.Reader, inferLen int) (types.Schema, error) {
	var order []string
	kinds := make(map[string]types.DataType)
	rows, line := 0, 0
	for rows < inferLen {
		raw, err := readLine(r)
		line++
		if len(raw) > 0 {
			if lerr := inferNDJSONLine(raw, &order, kinds); lerr != nil {
				return types.Schema{}, errors.Wrapf(lerr, "line %d", line)
			}
			rows++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return types.Schema{}, err
		}
	}
	fields := make([]types.Field, len(order))
	for i, name := range order {
		fields[i] = types.Field{Name: name, Type: kinds[name]}
	}
	return types.NewSchema(fields...), nil
}

// inferNDJSONLine folds one row into the running schema. The iterator walks
// object keys in document order, which fixes the column order of fields
// first seen on this line.
func inferNDJSONLine(raw []byte, order *[]string, kinds map[string]types.DataType) error {
	it := jsonRows.BorrowIterator(raw)
	defer jsonRows.ReturnIterator(it)
	for field := it.ReadObject(); field != ""; field = it.ReadObject() {
		dt, err := jsonValueType(it.Read())
		if err != nil {
			return errors.Wrapf(err, "field %q", field)
		}
		have, ok := kinds[field]
		if !ok {
			*order = append(*order, field)
			kinds[field] = dt
			continue
		}
		merged, err := mergeJSONType(have, dt)
		if err != nil {
			return errors.Wrapf(err, "field %q", field)
		}
		kinds[field] = merged
	}
	if it.Error != nil && !errors.Is(it.Error, io.EOF) {
		return it.Error
	}
	return nil
}

func jsonValueType(v interface{}) (types.DataType, error) {
	switch v := v.(type) {
	case nil:
		return types.Null, nil
	case bool:
		return types.Bool, nil
	case string:
		return types.String, nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return types.Int64, nil
		}
		return types.Float64, nil
	default:
		return types.Invalid, errors.Errorf("nested value of type %T is not supported", v)
	}
}

func mergeJSONType(have, next types.DataType) (types.DataType, error) {
	switch {
	case have.IsNull():
		return next, nil
	case next.IsNull(), have.Equal(next):
		return have, nil
	case have.IsNumeric() && next.IsNumeric():
		return types.Float64, nil
	default:
		return types.Invalid, errors.Errorf("types %s and %s cannot be unified", have, next)
	}
}

type ndjsonReader struct {
	path      string
	file      *os.File
	lines     *bufio.Reader
	builder   *array.RecordBuilder
	fields    []types.Field
	row       map[string]interface{}
	line      int64
	skip      int64
	remaining int64
	batchSize int64
	done      bool
}

func (r *ndjsonReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done || r.remaining == 0 {
		return nil, io.EOF
	}
	want := r.batchSize
	if r.remaining > 0 {
		want = min(want, r.remaining)
	}
	var got int64
	for got < want {
		raw, err := readLine(r.lines)
		r.line++
		if len(raw) > 0 {
			switch {
			case r.skip > 0:
				r.skip--
			default:
				if aerr := r.appendLine(raw); aerr != nil {
					return nil, errors.Wrapf(aerr, "%s: line %d", r.path, r.line)
				}
				got++
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, errors.Wrapf(err, "read %s", r.path)
			}
			r.done = true
			break
		}
	}
	if r.remaining > 0 {
		r.remaining -= got
	}
	if got == 0 {
		return nil, io.EOF
	}
	return r.builder.NewRecord(), nil
}

func (r *ndjsonReader) appendLine(raw []byte) error {
	clear(r.row)
	if err := jsonRows.Unmarshal(raw, &r.row); err != nil {
		return err
	}
	for i, f := range r.fields {
		if err := appendJSONValue(r.builder.Field(i), r.row[f.Name]); err != nil {
			return errors.Wrapf(err, "column %q", f.Name)
		}
	}
	return nil
}

func (r *ndjsonReader) Close() error {
	r.builder.Release()
	return errors.Wrapf(r.file.Close(), "close %s", r.path)
}

// appendJSONValue stores one decoded value. Rows past the inference window
// may disagree with the inferred type, which surfaces here.
func appendJSONValue(b array.Builder, v interface{}) error {
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
		if n, ok := v.(json.Number); ok {
			x, err := n.Int64()
			if err != nil {
				return errors.Errorf("cannot store number %s in i64 column", n)
			}
			b.Append(x)
			return nil
		}
	case *array.Float64Builder:
		if n, ok := v.(json.Number); ok {
			x, err := n.Float64()
			if err != nil {
				return errors.Errorf("cannot store number %s in f64 column", n)
			}
			b.Append(x)
			return nil
		}
	case *array.StringBuilder:
		if x, ok := v.(string); ok {
			b.Append(x)
			return nil
		}
	}
	return errors.Errorf("cannot store %T value in %s column", v, b.Type())
}
