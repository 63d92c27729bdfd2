package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/source"
)

type scanOptions struct {
	Alloc     memory.Allocator
	BatchSize int64
}

// scanPipeline reads records from a table source. The source is opened on
// the first read so that building a plan stays cheap and a pipeline that is
// closed without being read never touches the source.
type scanPipeline struct {
	node   *physical.TableScan
	opts   scanOptions
	logger log.Logger

	reader source.RecordReader
	err    error
}

func newScanPipeline(node *physical.TableScan, opts scanOptions, logger log.Logger) Pipeline {
	return &scanPipeline{node: node, opts: opts, logger: logger}
}

// Read implements the [Pipeline] interface.
func (p *scanPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.reader == nil {
		reader, err := p.node.Source.Open(ctx, source.OpenOptions{
			Alloc:     p.opts.Alloc,
			Columns:   p.node.Projections,
			Offset:    p.node.Offset,
			Limit:     p.node.Limit,
			BatchSize: p.opts.BatchSize,
		})
		if err != nil {
			p.err = fmt.Errorf("opening table source: %w", err)
			return nil, p.err
		}
		level.Debug(p.logger).Log("msg", "opened table source",
			"columns", len(p.node.Projections), "offset", p.node.Offset, "limit", p.node.Limit)
		p.reader = reader
	}

	rec, err := p.reader.Read(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.err = EOF
		} else {
			p.err = err
		}
		return nil, p.err
	}
	return rec, nil
}

// Close implements the [Pipeline] interface.
func (p *scanPipeline) Close() {
	if p.reader == nil {
		return
	}
	if err := p.reader.Close(); err != nil {
		level.Warn(p.logger).Log("msg", "failed to close table source reader", "err", err)
	}
	p.reader = nil
}
