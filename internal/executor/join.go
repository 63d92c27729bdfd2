package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// joinPipeline matches rows on key equality by building a hash table over
// the fully materialized right input and probing it with left batches as
// they stream through. A left row with several matches repeats once per
// match. Null keys never match; a left join keeps such rows with nulls on
// the right side, an inner join drops them.
type joinPipeline struct {
	node        *physical.HashJoin
	left, right Pipeline
	evaluator   expressionEvaluator
	rightSchema *arrow.Schema

	built     bool
	rightRec  arrow.Record
	rightKeys []arrow.Array
	table     *swiss.Map[uint64, []int32]
	digest    xxhash.Digest

	err error
}

func newJoinPipeline(node *physical.HashJoin, left, right Pipeline, evaluator expressionEvaluator, rightSchema types.Schema) Pipeline {
	return &joinPipeline{
		node:        node,
		left:        left,
		right:       right,
		evaluator:   evaluator,
		rightSchema: types.ToArrowSchema(rightSchema),
	}
}

// Read implements the [Pipeline] interface.
func (p *joinPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	if !p.built {
		if err := p.build(ctx); err != nil {
			p.err = err
			return nil, err
		}
		p.built = true
	}

	for {
		rec, err := p.left.Read(ctx)
		if err != nil {
			p.err = err
			return nil, err
		}
		out, err := p.probe(ctx, rec)
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

// build materializes the right input and indexes its rows by key hash.
func (p *joinPipeline) build(ctx context.Context) error {
	rec, err := readAll(ctx, p.right, p.evaluator.mem, p.rightSchema)
	if err != nil {
		return err
	}
	p.rightRec = rec

	n := int(rec.NumRows())
	for _, key := range p.node.RightKeys {
		arr, err := p.evaluator.eval(ctx, key, rec)
		if err != nil {
			return err
		}
		aligned, err := broadcastTo(p.evaluator.mem, arr, n)
		arr.Release()
		if err != nil {
			return err
		}
		p.rightKeys = append(p.rightKeys, aligned)
	}

	p.table = swiss.NewMap[uint64, []int32](uint32(max(n, 1)))
	for j := 0; j < n; j++ {
		if anyNull(p.rightKeys, j) {
			continue
		}
		h, err := hashRow(&p.digest, p.rightKeys, j)
		if err != nil {
			return err
		}
		rows, _ := p.table.Get(h)
		p.table.Put(h, append(rows, int32(j)))
	}
	return nil
}

// probe matches one left batch against the right table and assembles the
// output rows.
func (p *joinPipeline) probe(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())

	leftKeys := make([]arrow.Array, 0, len(p.node.LeftKeys))
	defer releaseAll(leftKeys)
	for _, key := range p.node.LeftKeys {
		arr, err := p.evaluator.eval(ctx, key, rec)
		if err != nil {
			return nil, err
		}
		aligned, err := broadcastTo(p.evaluator.mem, arr, n)
		arr.Release()
		if err != nil {
			return nil, err
		}
		leftKeys = append(leftKeys, aligned)
	}

	keepNullKeys := p.node.How == logical.JoinTypeLeft
	leftIdx := make([]int, 0, n)
	rightIdx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if anyNull(leftKeys, i) {
			if keepNullKeys {
				leftIdx = append(leftIdx, i)
				rightIdx = append(rightIdx, -1)
			}
			continue
		}
		h, err := hashRow(&p.digest, leftKeys, i)
		if err != nil {
			return nil, err
		}
		matched := false
		if rows, ok := p.table.Get(h); ok {
			for _, j := range rows {
				if rowsEqual(leftKeys, i, p.rightKeys, int(j)) {
					leftIdx = append(leftIdx, i)
					rightIdx = append(rightIdx, int(j))
					matched = true
				}
			}
		}
		if !matched && keepNullKeys {
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, -1)
		}
	}

	return p.assemble(rec, leftIdx, rightIdx)
}

func (p *joinPipeline) assemble(rec arrow.Record, leftIdx, rightIdx []int) (arrow.Record, error) {
	leftOut, err := takeRecord(p.evaluator.mem, rec, leftIdx)
	if err != nil {
		return nil, err
	}
	defer leftOut.Release()

	fields := p.node.Schema().Fields
	names := make([]string, 0, len(fields))
	cols := make([]arrow.Array, 0, len(fields))
	for i := 0; i < int(leftOut.NumCols()); i++ {
		col := leftOut.Column(i)
		col.Retain()
		names = append(names, leftOut.ColumnName(i))
		cols = append(cols, col)
	}

	for _, jc := range p.node.RightColumns {
		indices := p.rightRec.Schema().FieldIndices(jc.Name)
		if len(indices) == 0 {
			releaseAll(cols)
			return nil, fmt.Errorf("%w: %s", errors.ErrColumnNotFound, jc.Name)
		}
		arr, err := gatherOrNull(p.evaluator.mem, p.rightRec.Column(indices[0]), rightIdx)
		if err != nil {
			releaseAll(cols)
			return nil, err
		}
		names = append(names, jc.OutName)
		cols = append(cols, arr)
	}
	return recordFromColumns(names, cols, int64(len(leftIdx))), nil
}

// Close implements the [Pipeline] interface.
func (p *joinPipeline) Close() {
	releaseAll(p.rightKeys)
	p.rightKeys = nil
	if p.rightRec != nil {
		p.rightRec.Release()
		p.rightRec = nil
	}
	p.left.Close()
	p.right.Close()
}

// gatherOrNull copies the rows of arr named by indices, appending a null
// for every negative index.
func gatherOrNull(mem memory.Allocator, arr arrow.Array, indices []int) (arrow.Array, error) {
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(len(indices))
	for _, idx := range indices {
		if idx < 0 {
			b.AppendNull()
			continue
		}
		if err := copyValue(b, arr, idx); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}
