package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// filterPipeline keeps the rows for which every predicate is true. A null
// predicate value drops the row. Length-sensitive predicates force the
// input to materialize so they see whole columns.
type filterPipeline struct {
	node      *physical.Filter
	input     Pipeline
	evaluator expressionEvaluator

	streaming bool
	done      bool
	err       error
}

func newFilterPipeline(node *physical.Filter, input Pipeline, evaluator expressionEvaluator) Pipeline {
	streaming := true
	for _, pred := range node.Predicates {
		if !physical.IsElementwise(pred) {
			streaming = false
			break
		}
	}
	return &filterPipeline{
		node:      node,
		input:     input,
		evaluator: evaluator,
		streaming: streaming,
	}
}

// Read implements the [Pipeline] interface.
func (p *filterPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}

	if !p.streaming {
		if p.done {
			p.err = EOF
			return nil, EOF
		}
		// The filter does not change the column layout, so its own schema
		// doubles as the input schema.
		rec, err := readAll(ctx, p.input, p.evaluator.mem, types.ToArrowSchema(p.node.Schema()))
		if err != nil {
			p.err = err
			return nil, err
		}
		defer rec.Release()
		p.done = true
		out, err := p.apply(ctx, rec)
		if err != nil {
			p.err = err
		}
		return out, err
	}

	// Skip over batches with no surviving rows instead of emitting empty
	// records.
	for {
		rec, err := p.input.Read(ctx)
		if err != nil {
			p.err = err
			return nil, err
		}
		out, err := p.apply(ctx, rec)
		rec.Release()
		if err != nil {
			p.err = err
			return nil, err
		}
		if out.NumRows() == 0 {
			out.Release()
			continue
		}
		return out, nil
	}
}

func (p *filterPipeline) apply(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	for _, pred := range p.node.Predicates {
		arr, err := p.evaluator.eval(ctx, pred, rec)
		if err != nil {
			return nil, err
		}
		mask, err := broadcastTo(p.evaluator.mem, arr, n)
		arr.Release()
		if err != nil {
			return nil, err
		}
		vals := boolValues(mask)
		for i := 0; i < n; i++ {
			if keep[i] && (mask.IsNull(i) || !vals(i)) {
				keep[i] = false
			}
		}
		mask.Release()
	}

	indices := make([]int, 0, n)
	for i, ok := range keep {
		if ok {
			indices = append(indices, i)
		}
	}
	return takeRecord(p.evaluator.mem, rec, indices)
}

// Close implements the [Pipeline] interface.
func (p *filterPipeline) Close() {
	p.input.Close()
}
