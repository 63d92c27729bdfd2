package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// sortPipeline materializes its input and emits a single record with the
// rows reordered by the sort keys. The sort is stable, so rows that compare
// equal keep their input order.
type sortPipeline struct {
	node      *physical.Sort
	input     Pipeline
	evaluator expressionEvaluator

	done bool
	err  error
}

func newSortPipeline(node *physical.Sort, input Pipeline, evaluator expressionEvaluator) Pipeline {
	return &sortPipeline{node: node, input: input, evaluator: evaluator}
}

// Read implements the [Pipeline] interface.
func (p *sortPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.done {
		p.err = EOF
		return nil, EOF
	}

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

func (p *sortPipeline) apply(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())

	keys := make([]arrow.Array, 0, len(p.node.By))
	defer releaseAll(keys)
	for _, by := range p.node.By {
		arr, err := p.evaluator.eval(ctx, by, rec)
		if err != nil {
			return nil, err
		}
		key, err := broadcastTo(p.evaluator.mem, arr, n)
		arr.Release()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	desc, err := spreadFlags(p.node.Descending, len(keys))
	if err != nil {
		return nil, err
	}
	order, err := sortIndices(keys, desc, p.node.NullsLast)
	if err != nil {
		return nil, err
	}
	return takeRecord(p.evaluator.mem, rec, order)
}

// Close implements the [Pipeline] interface.
func (p *sortPipeline) Close() {
	p.input.Close()
}

// sortIndices returns the stable permutation ordering the rows by the key
// columns. Null placement is independent of the per-key direction.
func sortIndices(keys []arrow.Array, descending []bool, nullsLast bool) ([]int, error) {
	n := 0
	if len(keys) > 0 {
		n = keys[0].Len()
	}

	cmps := make([]func(i, j int) int, len(keys))
	for k, key := range keys {
		cmp, err := rowComparator(key)
		if err != nil {
			return nil, err
		}
		cmps[k] = cmp
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		for k, key := range keys {
			c := nullAwareCompare(key, cmps[k], i, j, descending[k], nullsLast)
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return order, nil
}

func nullAwareCompare(arr arrow.Array, cmp func(i, j int) int, i, j int, descending, nullsLast bool) int {
	in, jn := arr.IsNull(i), arr.IsNull(j)
	switch {
	case in && jn:
		return 0
	case in:
		if nullsLast {
			return 1
		}
		return -1
	case jn:
		if nullsLast {
			return -1
		}
		return 1
	}
	c := cmp(i, j)
	if descending {
		return -c
	}
	return c
}

// rowComparator returns a three-way comparison of two non-null rows of the
// same array. Floats order NaN above every other value.
func rowComparator(arr arrow.Array) (func(i, j int) int, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		return func(i, j int) int { return compareOrdered(boolRank(a.Value(i)), boolRank(a.Value(j))) }, nil
	case *array.String:
		return func(i, j int) int { return strings.Compare(a.Value(i), a.Value(j)) }, nil
	}
	if vals, ok := floatValues(arr); ok {
		return func(i, j int) int { return compareFloat(vals(i), vals(j)) }, nil
	}
	if vals, ok := signedValues(arr); ok {
		return func(i, j int) int { return compareOrdered(vals(i), vals(j)) }, nil
	}
	if vals, ok := unsignedValues(arr); ok {
		return func(i, j int) int { return compareOrdered(vals(i), vals(j)) }, nil
	}
	return nil, fmt.Errorf("%w: sorting is not supported for dtype %s", errors.ErrCompute, arr.DataType())
}
