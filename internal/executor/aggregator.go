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
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// aggregatePipeline materializes its input, partitions the rows into groups
// by key equality, and evaluates the aggregation expressions once per group
// against the group's rows. Groups always emit in order of first
// appearance, which satisfies maintain_order for free. Without keys the
// whole input forms a single group.
type aggregatePipeline struct {
	node      *physical.HashAggregate
	input     Pipeline
	evaluator expressionEvaluator

	inputSchema *arrow.Schema

	done bool
	err  error
}

func newAggregatePipeline(node *physical.HashAggregate, input Pipeline, evaluator expressionEvaluator, inputSchema types.Schema) Pipeline {
	return &aggregatePipeline{
		node:        node,
		input:       input,
		evaluator:   evaluator,
		inputSchema: types.ToArrowSchema(inputSchema),
	}
}

// Read implements the [Pipeline] interface.
func (p *aggregatePipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
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

	out, err := p.apply(ctx, rec)
	if err != nil {
		p.err = err
	}
	return out, err
}

func (p *aggregatePipeline) apply(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())

	keys := make([]arrow.Array, 0, len(p.node.Keys))
	defer releaseAll(keys)
	for _, key := range p.node.Keys {
		arr, err := p.evaluator.eval(ctx, key.Expression, rec)
		if err != nil {
			return nil, err
		}
		aligned, err := broadcastTo(p.evaluator.mem, arr, n)
		arr.Release()
		if err != nil {
			return nil, err
		}
		keys = append(keys, aligned)
	}

	groups, err := p.partition(keys, n)
	if err != nil {
		return nil, err
	}

	fields := p.node.Schema().Fields
	names := make([]string, 0, len(fields))
	cols := make([]arrow.Array, 0, len(fields))
	fail := func(err error) (arrow.Record, error) {
		releaseAll(cols)
		return nil, err
	}

	// Key columns carry the first row of each group.
	firstRows := make([]int, len(groups))
	for g, rows := range groups {
		firstRows[g] = rows[0]
	}
	for k, key := range keys {
		arr, err := takeArray(p.evaluator.mem, key, firstRows)
		if err != nil {
			return fail(err)
		}
		names = append(names, p.node.Keys[k].Name)
		cols = append(cols, arr)
	}

	// Aggregations evaluate per group on a sub-record of the group's rows
	// and must reduce each group to exactly one row.
	results := make([][]arrow.Array, len(p.node.Aggs))
	defer func() {
		for _, parts := range results {
			releaseAll(parts)
		}
	}()
	for _, rows := range groups {
		sub, err := takeRecord(p.evaluator.mem, rec, rows)
		if err != nil {
			return fail(err)
		}
		for a, agg := range p.node.Aggs {
			arr, err := p.evaluator.eval(ctx, agg.Expression, sub)
			if err != nil {
				sub.Release()
				return fail(err)
			}
			if arr.Len() != 1 {
				arr.Release()
				sub.Release()
				return fail(fmt.Errorf("%w: aggregation %q produced %d rows for a group of %d rows; implode keeps per-row values",
					errors.ErrShape, agg.Name, arr.Len(), len(rows)))
			}
			results[a] = append(results[a], arr)
		}
		sub.Release()
	}

	for a, agg := range p.node.Aggs {
		arr, err := concatParts(p.evaluator.mem, results[a], fields[len(keys)+a].Type)
		if err != nil {
			return fail(err)
		}
		names = append(names, agg.Name)
		cols = append(cols, arr)
	}

	return recordFromColumns(names, cols, int64(len(groups))), nil
}

// partition buckets the row indices by key equality, in first-seen order.
func (p *aggregatePipeline) partition(keys []arrow.Array, n int) ([][]int, error) {
	if len(keys) == 0 {
		if n == 0 {
			return nil, nil
		}
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}, nil
	}

	var digest xxhash.Digest
	table := swiss.NewMap[uint64, []int32](uint32(max(n, 1)))
	var groups [][]int
	for i := 0; i < n; i++ {
		h, err := hashRow(&digest, keys, i)
		if err != nil {
			return nil, err
		}
		gids, _ := table.Get(h)
		found := -1
		for _, g := range gids {
			if rowsEqual(keys, i, keys, groups[g][0]) {
				found = int(g)
				break
			}
		}
		if found < 0 {
			found = len(groups)
			groups = append(groups, nil)
			table.Put(h, append(gids, int32(found)))
		}
		groups[found] = append(groups[found], i)
	}
	return groups, nil
}

// concatParts joins the per-group single-row results into one column. With
// no groups the column is empty but keeps the resolved type.
func concatParts(mem memory.Allocator, parts []arrow.Array, dtype types.DataType) (arrow.Array, error) {
	switch len(parts) {
	case 0:
		b := array.NewBuilder(mem, types.ToArrow(dtype))
		defer b.Release()
		return b.NewArray(), nil
	case 1:
		parts[0].Retain()
		return parts[0], nil
	}
	return array.Concatenate(parts, mem)
}

// Close implements the [Pipeline] interface.
func (p *aggregatePipeline) Close() {
	p.input.Close()
}
