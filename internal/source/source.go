// Package source defines the table providers that feed plan leaves: Arrow
// records already in memory, Parquet files, and newline-delimited JSON
// files. Sources advertise their schema for planning and support column
// projection and row limits so that pushdown rules have something to push
// into.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/types"
)

// Source is a table provider.
type Source interface {
	// Name identifies the source in plan output.
	Name() string

	// Schema returns the full column layout of the source.
	Schema() (types.Schema, error)

	// Open starts reading. Readers honor the projection and limit given in
	// the options.
	Open(ctx context.Context, opts OpenOptions) (RecordReader, error)
}

// OpenOptions controls what a reader produces.
type OpenOptions struct {
	// Alloc is the allocator for produced records.
	Alloc memory.Allocator

	// Columns restricts output to the named columns in the given order.
	// Empty means all columns in schema order.
	Columns []string

	// Offset skips rows before producing output.
	Offset int64

	// Limit caps produced rows. Negative means unbounded.
	Limit int64

	// BatchSize is the target rows per record. Zero or negative lets the
	// source choose.
	BatchSize int64
}

// RecordReader produces a sequence of records and reports io.EOF when
// exhausted.
type RecordReader interface {
	Read(ctx context.Context) (arrow.Record, error)
	Close() error
}

// bounds normalizes offset/limit against a known total row count.
func bounds(offset, limit, total int64) (start, end int64) {
	start = min(max(offset, 0), total)
	if limit < 0 {
		return start, total
	}
	return start, min(start+limit, total)
}

// defaultBatchRows is the record size used when the caller does not choose
// one.
const defaultBatchRows = 4096

func allocator(opts OpenOptions) memory.Allocator {
	if opts.Alloc != nil {
		return opts.Alloc
	}
	return memory.DefaultAllocator
}

func batchRows(opts OpenOptions) int64 {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return defaultBatchRows
}

// projectSchema restricts a schema to the named columns, in the given order.
func projectSchema(s types.Schema, columns []string) (types.Schema, error) {
	if len(columns) == 0 {
		return s, nil
	}
	fields := make([]types.Field, len(columns))
	for i, name := range columns {
		f, ok := s.Field(name)
		if !ok {
			return types.Schema{}, fmt.Errorf("column %q not found in source", name)
		}
		fields[i] = f
	}
	return types.NewSchema(fields...), nil
}

// sliceReader yields one record slice and then io.EOF, splitting into
// batches when a batch size is set.
type sliceReader struct {
	rec       arrow.Record
	pos, end  int64
	batchSize int64
}

func newSliceReader(rec arrow.Record, opts OpenOptions) *sliceReader {
	start, end := bounds(opts.Offset, opts.Limit, rec.NumRows())
	bs := opts.BatchSize
	if bs <= 0 {
		bs = end - start
	}
	rec.Retain()
	return &sliceReader{rec: rec, pos: start, end: end, batchSize: bs}
}

func (r *sliceReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.rec == nil || r.pos >= r.end {
		return nil, io.EOF
	}
	stop := min(r.pos+r.batchSize, r.end)
	out := r.rec.NewSlice(r.pos, stop)
	r.pos = stop
	return out, nil
}

func (r *sliceReader) Close() error {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	return nil
}
