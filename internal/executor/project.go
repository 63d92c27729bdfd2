package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// projectPipeline evaluates the projection's expression list. When every
// expression is elementwise the projection streams batch by batch;
// otherwise the input materializes first so length-sensitive expressions
// see whole columns.
type projectPipeline struct {
	node      *physical.Projection
	input     Pipeline
	evaluator expressionEvaluator

	// inputSchema reconstructs an empty input when the pipeline below
	// produces no batches.
	inputSchema *arrow.Schema

	streaming bool
	done      bool
	err       error
}

func newProjectPipeline(node *physical.Projection, input Pipeline, evaluator expressionEvaluator, inputSchema types.Schema) Pipeline {
	streaming := true
	columnar := node.Mode == physical.ProjectExtend
	for _, col := range node.Columns {
		if !physical.IsElementwise(col.Expression) {
			streaming = false
			break
		}
		if referencesColumn(col.Expression) {
			columnar = true
		}
	}

	return &projectPipeline{
		node:        node,
		input:       input,
		evaluator:   evaluator,
		inputSchema: types.ToArrowSchema(inputSchema),

		// A projection of pure literals produces a fixed number of rows
		// regardless of input batching, so it cannot stream.
		streaming: streaming && columnar,
	}
}

// Read implements the [Pipeline] interface.
func (p *projectPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}

	if p.streaming {
		rec, err := p.input.Read(ctx)
		if err != nil {
			p.err = err
			return nil, err
		}
		defer rec.Release()
		return p.evalBatch(ctx, rec)
	}

	if p.done {
		p.err = EOF
		return nil, EOF
	}
	rec, err := readAll(ctx, p.input, p.evaluator.mem, p.inputSchema)
	if err != nil {
		p.err = err
		return nil, err
	}
	defer rec.Release()
	p.done = true
	return p.evalBatch(ctx, rec)
}

func (p *projectPipeline) evalBatch(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, len(p.node.Columns))
	names := make([]string, 0, len(p.node.Columns))
	for _, col := range p.node.Columns {
		arr, err := p.evaluator.eval(ctx, col.Expression, rec)
		if err != nil {
			releaseAll(cols)
			p.err = err
			return nil, err
		}
		cols = append(cols, arr)
		names = append(names, col.Name)
	}

	var out arrow.Record
	var err error
	if p.node.Mode == physical.ProjectExtend {
		out, err = extendRecord(p.evaluator.mem, rec, names, cols)
	} else {
		out, err = assembleColumns(p.evaluator.mem, names, cols, -1)
	}
	if err != nil {
		p.err = err
		return nil, err
	}
	return out, nil
}

// Close implements the [Pipeline] interface.
func (p *projectPipeline) Close() {
	p.input.Close()
}

// assembleColumns builds a record from evaluated columns, broadcasting
// single-row results to the common height. With forcedLen < 0 the height is
// the agreed length of the multi-row results, or 1 when every result is a
// single row. Consumes cols.
func assembleColumns(mem memory.Allocator, names []string, cols []arrow.Array, forcedLen int) (arrow.Record, error) {
	height := forcedLen
	if height < 0 {
		height = 1
		for _, col := range cols {
			if col.Len() == 1 {
				continue
			}
			if height != 1 && col.Len() != height {
				releaseAll(cols)
				return nil, fmt.Errorf("%w: cannot combine series of length %d with series of length %d",
					errors.ErrShape, height, col.Len())
			}
			height = col.Len()
		}
	}

	out := make([]arrow.Array, len(cols))
	for i, col := range cols {
		arr, err := broadcastTo(mem, col, height)
		if err != nil {
			releaseAll(out[:i])
			releaseAll(cols[i:])
			return nil, err
		}
		col.Release()
		out[i] = arr
	}
	return recordFromColumns(names, out, int64(height)), nil
}

// extendRecord merges evaluated columns into the input record. A result
// whose name matches an input column replaces it in place; new names append
// on the right. Consumes cols.
func extendRecord(mem memory.Allocator, rec arrow.Record, names []string, cols []arrow.Array) (arrow.Record, error) {
	height := int(rec.NumRows())

	outNames := make([]string, rec.NumCols())
	outCols := make([]arrow.Array, rec.NumCols())
	index := make(map[string]int, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		outNames[i] = rec.ColumnName(i)
		outCols[i] = rec.Column(i)
		outCols[i].Retain()
		index[outNames[i]] = i
	}

	for i, col := range cols {
		arr, err := broadcastTo(mem, col, height)
		if err != nil {
			releaseAll(outCols)
			releaseAll(cols[i:])
			return nil, err
		}
		col.Release()
		if at, ok := index[names[i]]; ok {
			outCols[at].Release()
			outCols[at] = arr
			continue
		}
		index[names[i]] = len(outCols)
		outNames = append(outNames, names[i])
		outCols = append(outCols, arr)
	}
	return recordFromColumns(outNames, outCols, int64(height)), nil
}

// referencesColumn reports whether the expression reads any input column.
func referencesColumn(e physical.Expression) bool {
	if _, ok := e.(*physical.ColumnExpr); ok {
		return true
	}
	for _, child := range physical.Children(e) {
		if referencesColumn(child) {
			return true
		}
	}
	return false
}
