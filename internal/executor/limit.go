package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// newLimitPipeline skips the first skip rows of its input and passes at
// most fetch rows through after that. A negative fetch passes everything
// from skip on. Both bounds may cross batch boundaries, so they reduce
// gradually as batches stream through.
func newLimitPipeline(input Pipeline, skip, fetch int64) Pipeline {
	var (
		skipRemaining  = skip
		fetchRemaining = fetch
	)

	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (arrow.Record, error) {
		for {
			if fetchRemaining == 0 {
				return nil, EOF
			}

			rec, err := inputs[0].Read(ctx)
			if err != nil {
				return nil, err
			}

			// Constrain the slice bounds to the record.
			rows := rec.NumRows()
			start := min(skipRemaining, rows)
			end := rows
			if fetchRemaining > 0 {
				end = min(start+fetchRemaining, rows)
			}
			skipRemaining -= start

			length := end - start
			if length == 0 {
				rec.Release()
				continue
			}
			if fetchRemaining > 0 {
				fetchRemaining -= length
			}

			if start == 0 && end == rows {
				return rec, nil
			}
			out := rec.NewSlice(start, end)
			rec.Release()
			return out, nil
		}
	}, input)
}
