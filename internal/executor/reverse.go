package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
)

// reversePipeline flips the row order of its input. It buffers every input
// batch first, then emits the batches last to first with the rows of each
// batch reversed.
type reversePipeline struct {
	input Pipeline
	mem   memory.Allocator

	buffered bool
	batches  []arrow.Record
	err      error
}

func newReversePipeline(input Pipeline, mem memory.Allocator) Pipeline {
	return &reversePipeline{input: input, mem: mem}
}

// Read implements the [Pipeline] interface.
func (p *reversePipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}

	if !p.buffered {
		for {
			rec, err := p.input.Read(ctx)
			if errors.Is(err, EOF) {
				break
			}
			if err != nil {
				p.err = err
				return nil, err
			}
			p.batches = append(p.batches, rec)
		}
		p.buffered = true
	}

	if len(p.batches) == 0 {
		p.err = EOF
		return nil, EOF
	}
	last := p.batches[len(p.batches)-1]
	p.batches = p.batches[:len(p.batches)-1]
	defer last.Release()

	indices := make([]int, last.NumRows())
	for i := range indices {
		indices[i] = len(indices) - 1 - i
	}
	out, err := takeRecord(p.mem, last, indices)
	if err != nil {
		p.err = err
		return nil, err
	}
	return out, nil
}

// Close implements the [Pipeline] interface.
func (p *reversePipeline) Close() {
	for _, rec := range p.batches {
		rec.Release()
	}
	p.batches = nil
	p.input.Close()
}
