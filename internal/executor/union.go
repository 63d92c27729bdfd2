package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/AmirulAndalib/polars/internal/errors"
)

// newUnionPipeline concatenates its inputs vertically in input order. Each
// input is wrapped in a prefetcher, so later inputs produce their first
// batches while earlier ones drain.
func newUnionPipeline(inputs []Pipeline) Pipeline {
	prefetched := make([]Pipeline, len(inputs))
	for i, input := range inputs {
		prefetched[i] = newPrefetchingPipeline(input)
	}

	var current int
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (arrow.Record, error) {
		for current < len(inputs) {
			rec, err := inputs[current].Read(ctx)
			if errors.Is(err, EOF) {
				current++
				continue
			}
			return rec, err
		}
		return nil, EOF
	}, prefetched...)
}
