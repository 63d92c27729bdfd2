package source

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/AmirulAndalib/polars/internal/types"
)

// InMemory serves an Arrow record that already lives in memory. It is the
// source behind frames constructed directly from Go values.
type InMemory struct {
	name string
	rec  arrow.Record
}

// NewInMemory wraps a record into a source. The source retains the record
// until released.
func NewInMemory(name string, rec arrow.Record) *InMemory {
	rec.Retain()
	return &InMemory{name: name, rec: rec}
}

// Name implements the [Source] interface.
func (s *InMemory) Name() string {
	if s.name == "" {
		return "memory"
	}
	return s.name
}

// Schema implements the [Source] interface.
func (s *InMemory) Schema() (types.Schema, error) {
	return types.FromArrowSchema(s.rec.Schema())
}

// Open implements the [Source] interface.
func (s *InMemory) Open(_ context.Context, opts OpenOptions) (RecordReader, error) {
	rec := s.rec
	if len(opts.Columns) > 0 {
		projected, err := projectRecord(rec, opts.Columns)
		if err != nil {
			return nil, err
		}
		defer projected.Release()
		return newSliceReader(projected, opts), nil
	}
	return newSliceReader(rec, opts), nil
}

// Release drops the source's reference to the underlying record.
func (s *InMemory) Release() {
	if s.rec != nil {
		s.rec.Release()
		s.rec = nil
	}
}

func projectRecord(rec arrow.Record, columns []string) (arrow.Record, error) {
	schema := rec.Schema()
	fields := make([]arrow.Field, 0, len(columns))
	cols := make([]arrow.Array, 0, len(columns))
	for _, name := range columns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("column %q not found in source", name)
		}
		fields = append(fields, schema.Field(indices[0]))
		cols = append(cols, rec.Column(indices[0]))
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows()), nil
}
