package executor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

func (e expressionEvaluator) evalFunction(ctx context.Context, expr *physical.FuncExpr, rec arrow.Record) (arrow.Array, error) {
	inputs, err := e.evalInputs(ctx, expr.Inputs, rec)
	if err != nil {
		return nil, err
	}
	defer releaseAll(inputs)

	switch expr.Op {
	case types.FunctionKindCumCount:
		return cumCountKernel(e.mem, inputs[0], expr.Options.Reverse)
	case types.FunctionKindCumSum:
		return cumSumKernel(e.mem, inputs[0], expr.Dtype, expr.Options.Reverse)
	case types.FunctionKindHead:
		return sliceKernel(e.mem, inputs[0], true, expr.Options.N)
	case types.FunctionKindTail:
		return sliceKernel(e.mem, inputs[0], false, expr.Options.N)
	case types.FunctionKindReverse:
		return reverseKernel(e.mem, inputs[0])
	case types.FunctionKindFromEpoch:
		return fromEpochKernel(e.mem, inputs[0], expr)
	case types.FunctionKindArcTan2:
		return arcTan2Kernel(e.mem, inputs, expr.Dtype)
	case types.FunctionKindCorr:
		return corrKernel(e.mem, inputs, expr.Options.Method)
	case types.FunctionKindCov:
		return covKernel(e.mem, inputs, expr.Options.Ddof)
	case types.FunctionKindArgSortBy:
		return argSortByKernel(e.mem, inputs, expr.Options.Descending)
	case types.FunctionKindFillNull:
		return fillNullKernel(e.mem, inputs)
	default:
		return nil, fmt.Errorf("%w: function %s", errors.ErrNotImplemented, expr.Op)
	}
}

// cumCountKernel counts non-null values cumulatively. The output never
// contains nulls.
func cumCountKernel(mem memory.Allocator, arr arrow.Array, reverse bool) (arrow.Array, error) {
	n := arr.Len()
	counts := make([]uint32, n)
	count := uint32(0)
	iterate(n, reverse, func(i int) {
		if !arr.IsNull(i) {
			count++
		}
		counts[i] = count
	})

	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.AppendValues(counts, nil)
	return b.NewArray(), nil
}

// iterate visits indices 0..n-1 in ascending or descending order.
func iterate(n int, reverse bool, fn func(int)) {
	if reverse {
		for i := n - 1; i >= 0; i-- {
			fn(i)
		}
		return
	}
	for i := 0; i < n; i++ {
		fn(i)
	}
}

// cumSumKernel computes a running sum. Nulls stay null in the output
// without resetting the accumulator.
func cumSumKernel(mem memory.Allocator, arr arrow.Array, dtype types.DataType, reverse bool) (arrow.Array, error) {
	if dtype.IsNull() {
		arr.Retain()
		return arr, nil
	}
	n := arr.Len()
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)

	emit := func(append func(i int) error) error {
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			if err := append(i); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	switch {
	case dtype.IsFloat():
		vals, ok := numericFloatValues(arr)
		if !ok {
			return nil, fmt.Errorf("%w: cum_sum not supported for %s input", errors.ErrCompute, arr.DataType())
		}
		sums := make([]float64, n)
		sum := 0.0
		iterate(n, reverse, func(i int) {
			if !arr.IsNull(i) {
				sum += vals(i)
				sums[i] = sum
			}
		})
		err = emit(func(i int) error { return appendFloat(b, sums[i]) })

	case dtype.IsUnsignedInteger():
		vals, ok := unsignedLane(arr)
		if !ok {
			return nil, fmt.Errorf("%w: cum_sum not supported for %s input", errors.ErrCompute, arr.DataType())
		}
		sums := make([]uint64, n)
		sum := uint64(0)
		iterate(n, reverse, func(i int) {
			if !arr.IsNull(i) {
				sum += vals(i)
				sums[i] = sum
			}
		})
		err = emit(func(i int) error { return appendUnsigned(b, sums[i]) })

	default:
		vals, ok := signedValues(arr)
		if !ok {
			return nil, fmt.Errorf("%w: cum_sum not supported for %s input", errors.ErrCompute, arr.DataType())
		}
		sums := make([]int64, n)
		sum := int64(0)
		iterate(n, reverse, func(i int) {
			if !arr.IsNull(i) {
				sum += vals(i)
				sums[i] = sum
			}
		})
		err = emit(func(i int) error { return appendSigned(b, sums[i]) })
	}
	if err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// sliceKernel keeps the first or last n values of a column.
func sliceKernel(mem memory.Allocator, arr arrow.Array, head bool, n int64) (arrow.Array, error) {
	keep := int(n)
	if keep > arr.Len() {
		keep = arr.Len()
	}
	start := 0
	if !head {
		start = arr.Len() - keep
	}

	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(keep)
	for i := start; i < start+keep; i++ {
		if err := copyValue(b, arr, i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func reverseKernel(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	n := arr.Len()
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(n)
	for i := n - 1; i >= 0; i-- {
		if err := copyValue(b, arr, i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// fromEpochKernel reinterprets integer epoch offsets as a date or datetime
// column. Seconds scale up to the microsecond resolution of the output.
func fromEpochKernel(mem memory.Allocator, arr arrow.Array, expr *physical.FuncExpr) (arrow.Array, error) {
	vals, ok := signedValues(arr)
	if !ok {
		return nil, fmt.Errorf("%w: from_epoch requires an integer column, got %s", errors.ErrCompute, arr.DataType())
	}
	scale := int64(1)
	if expr.Options.Unit == "s" {
		scale = 1_000_000
	}

	b := array.NewBuilder(mem, types.ToArrow(expr.Dtype))
	defer b.Release()
	n := arr.Len()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		if err := appendSigned(b, vals(i)*scale); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func arcTan2Kernel(mem memory.Allocator, inputs []arrow.Array, dtype types.DataType) (arrow.Array, error) {
	aligned, n, err := alignAll(mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	y, ok := floatValues(aligned[0])
	if !ok {
		return nil, fmt.Errorf("%w: arctan2 requires float inputs, got %s", errors.ErrCompute, aligned[0].DataType())
	}
	x, ok := floatValues(aligned[1])
	if !ok {
		return nil, fmt.Errorf("%w: arctan2 requires float inputs, got %s", errors.ErrCompute, aligned[1].DataType())
	}

	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if aligned[0].IsNull(i) || aligned[1].IsNull(i) {
			b.AppendNull()
			continue
		}
		if err := appendFloat(b, math.Atan2(y(i), x(i))); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// validPairs extracts the rows where both columns are non-null, as floats.
func validPairs(a, b arrow.Array) ([]float64, []float64, error) {
	av, ok := numericFloatValues(a)
	if !ok {
		return nil, nil, fmt.Errorf("%w: expected a numeric column, got %s", errors.ErrCompute, a.DataType())
	}
	bv, ok := numericFloatValues(b)
	if !ok {
		return nil, nil, fmt.Errorf("%w: expected a numeric column, got %s", errors.ErrCompute, b.DataType())
	}
	var xs, ys []float64
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) || b.IsNull(i) {
			continue
		}
		xs = append(xs, av(i))
		ys = append(ys, bv(i))
	}
	return xs, ys, nil
}

// corrKernel computes the correlation coefficient of two columns as a
// single-row result. Rows with a null on either side drop out.
func corrKernel(mem memory.Allocator, inputs []arrow.Array, method string) (arrow.Array, error) {
	aligned, _, err := alignAll(mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	xs, ys, err := validPairs(aligned[0], aligned[1])
	if err != nil {
		return nil, err
	}

	b := array.NewFloat64Builder(mem)
	defer b.Release()
	if len(xs) == 0 {
		b.AppendNull()
		return b.NewArray(), nil
	}
	if method == "spearman" {
		xs, ys = rankAverage(xs), rankAverage(ys)
	}
	b.Append(pearson(xs, ys))
	return b.NewArray(), nil
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	return sxy / math.Sqrt(sxx*syy)
}

// rankAverage assigns fractional ranks, averaging the positions of ties.
func rankAverage(vals []float64) []float64 {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })

	ranks := make([]float64, len(vals))
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && vals[order[end]] == vals[order[start]] {
			end++
		}
		// Positions are 1-based; ties share the mean of their positions.
		rank := float64(start+end+1) / 2
		for i := start; i < end; i++ {
			ranks[order[i]] = rank
		}
		start = end
	}
	return ranks
}

// covKernel computes the covariance of two columns with the given delta
// degrees of freedom as a single-row result.
func covKernel(mem memory.Allocator, inputs []arrow.Array, ddof int) (arrow.Array, error) {
	aligned, _, err := alignAll(mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	xs, ys, err := validPairs(aligned[0], aligned[1])
	if err != nil {
		return nil, err
	}

	b := array.NewFloat64Builder(mem)
	defer b.Release()
	if len(xs) == 0 || len(xs) <= ddof {
		b.AppendNull()
		return b.NewArray(), nil
	}

	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var sxy float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
	}
	b.Append(sxy / (n - float64(ddof)))
	return b.NewArray(), nil
}

// argSortByKernel returns the permutation that would sort the key columns,
// as an index column.
func argSortByKernel(mem memory.Allocator, inputs []arrow.Array, descending []bool) (arrow.Array, error) {
	aligned, n, err := alignAll(mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	desc, err := spreadFlags(descending, len(aligned))
	if err != nil {
		return nil, err
	}
	order, err := sortIndices(aligned, desc, false)
	if err != nil {
		return nil, err
	}

	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.Reserve(n)
	for _, idx := range order {
		b.Append(uint32(idx))
	}
	return b.NewArray(), nil
}

// spreadFlags broadcasts a single flag to n columns.
func spreadFlags(flags []bool, n int) ([]bool, error) {
	switch len(flags) {
	case 0:
		return make([]bool, n), nil
	case 1:
		out := make([]bool, n)
		for i := range out {
			out[i] = flags[0]
		}
		return out, nil
	case n:
		return flags, nil
	default:
		return nil, fmt.Errorf("%w: the length of `descending` (%d) does not match the number of sort columns (%d)",
			errors.ErrInvalidParameter, len(flags), n)
	}
}

func fillNullKernel(mem memory.Allocator, inputs []arrow.Array) (arrow.Array, error) {
	aligned, n, err := alignAll(mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	input, fill := aligned[0], aligned[1]
	b := array.NewBuilder(mem, input.DataType())
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		src := input
		if input.IsNull(i) {
			src = fill
		}
		if err := copyValue(b, src, i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}
