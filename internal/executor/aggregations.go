package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/axiomhq/hyperloglog"
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// evalAgg reduces a column to a single row. Inside a grouped aggregation
// the evaluator re-enters here once per group with the group's rows.
func (e expressionEvaluator) evalAgg(ctx context.Context, expr *physical.AggExpr, rec arrow.Record) (arrow.Array, error) {
	if expr.Op == types.AggKindLen {
		b := array.NewUint32Builder(e.mem)
		defer b.Release()
		b.Append(uint32(rec.NumRows()))
		return b.NewArray(), nil
	}

	input, err := e.eval(ctx, expr.Input, rec)
	if err != nil {
		return nil, err
	}
	defer input.Release()

	// Aggregations over an untyped null column resolve to a null result;
	// only the counting forms and implode keep a concrete output type.
	if expr.Dtype.IsNull() {
		return nullArray(e.mem, expr.Dtype, 1), nil
	}

	switch expr.Op {
	case types.AggKindSum:
		return sumKernel(e.mem, input, expr.Dtype)
	case types.AggKindMean:
		return meanKernel(e.mem, input, expr.Dtype)
	case types.AggKindMin:
		return minMaxKernel(e.mem, input, false)
	case types.AggKindMax:
		return minMaxKernel(e.mem, input, true)
	case types.AggKindMedian:
		return quantileKernel(e.mem, input, 0.5, "linear", expr.Dtype)
	case types.AggKindQuantile:
		return quantileKernel(e.mem, input, expr.Quantile, expr.Interpolation, expr.Dtype)
	case types.AggKindStd:
		return stdVarKernel(e.mem, input, expr.Ddof, true, expr.Dtype)
	case types.AggKindVar:
		return stdVarKernel(e.mem, input, expr.Ddof, false, expr.Dtype)
	case types.AggKindCount:
		return countKernel(e.mem, input)
	case types.AggKindNUnique:
		return nUniqueKernel(e.mem, input)
	case types.AggKindApproxNUnique:
		return approxNUniqueKernel(e.mem, input)
	case types.AggKindFirst:
		return positionalKernel(e.mem, input, 0)
	case types.AggKindLast:
		return positionalKernel(e.mem, input, input.Len()-1)
	case types.AggKindImplode:
		return implodeKernel(e.mem, input, expr.Dtype)
	default:
		return nil, fmt.Errorf("%w: aggregation %s", errors.ErrNotImplemented, expr.Op)
	}
}

func unsupportedAgg(op string, arr arrow.Array) error {
	return fmt.Errorf("%w: %s not supported for dtype %s", errors.ErrCompute, op, arr.DataType())
}

// unsignedLane reads unsigned integers, counting true booleans as one.
func unsignedLane(arr arrow.Array) (func(int) uint64, bool) {
	if bools, ok := arr.(*array.Boolean); ok {
		return func(i int) uint64 { return uint64(boolRank(bools.Value(i))) }, true
	}
	return unsignedValues(arr)
}

// sumKernel adds the non-null values. An empty or all-null column sums to
// zero.
func sumKernel(mem memory.Allocator, arr arrow.Array, dtype types.DataType) (arrow.Array, error) {
	n := arr.Len()
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()

	var err error
	switch {
	case dtype.IsFloat():
		vals, ok := numericFloatValues(arr)
		if !ok {
			return nil, unsupportedAgg("sum", arr)
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			if !arr.IsNull(i) {
				sum += vals(i)
			}
		}
		err = appendFloat(b, sum)

	case dtype.IsUnsignedInteger():
		vals, ok := unsignedLane(arr)
		if !ok {
			return nil, unsupportedAgg("sum", arr)
		}
		sum := uint64(0)
		for i := 0; i < n; i++ {
			if !arr.IsNull(i) {
				sum += vals(i)
			}
		}
		err = appendUnsigned(b, sum)

	default:
		vals, ok := signedValues(arr)
		if !ok {
			return nil, unsupportedAgg("sum", arr)
		}
		sum := int64(0)
		for i := 0; i < n; i++ {
			if !arr.IsNull(i) {
				sum += vals(i)
			}
		}
		err = appendSigned(b, sum)
	}
	if err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// meanKernel averages the non-null values. Temporal means round to the
// nearest tick of the input resolution.
func meanKernel(mem memory.Allocator, arr arrow.Array, dtype types.DataType) (arrow.Array, error) {
	vals, ok := numericFloatValues(arr)
	if !ok {
		return nil, unsupportedAgg("mean", arr)
	}

	var sum float64
	var count int
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		sum += vals(i)
		count++
	}

	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	if count == 0 {
		b.AppendNull()
		return b.NewArray(), nil
	}
	mean := sum / float64(count)

	var err error
	if dtype.IsTemporal() {
		err = appendSigned(b, int64(math.Round(mean)))
	} else {
		err = appendFloat(b, mean)
	}
	if err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// minMaxKernel finds the smallest or largest non-null value. Floats order
// NaN above every other value.
func minMaxKernel(mem memory.Allocator, arr arrow.Array, wantMax bool) (arrow.Array, error) {
	op := "min"
	if wantMax {
		op = "max"
	}
	cmp, err := rowComparator(arr)
	if err != nil {
		return nil, unsupportedAgg(op, arr)
	}

	best := -1
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		if c := cmp(i, best); (wantMax && c > 0) || (!wantMax && c < 0) {
			best = i
		}
	}

	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	if best < 0 {
		b.AppendNull()
		return b.NewArray(), nil
	}
	if err := copyValue(b, arr, best); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// quantileKernel computes an exact quantile over the sorted non-null
// values. Temporal outputs interpolate on integer ticks to keep precision
// at nanosecond timestamps.
func quantileKernel(mem memory.Allocator, arr arrow.Array, q float64, interp string, dtype types.DataType) (arrow.Array, error) {
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()

	if dtype.IsTemporal() {
		vals, ok := signedValues(arr)
		if !ok {
			return nil, unsupportedAgg("quantile", arr)
		}
		xs := make([]int64, 0, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			if !arr.IsNull(i) {
				xs = append(xs, vals(i))
			}
		}
		if len(xs) == 0 {
			b.AppendNull()
			return b.NewArray(), nil
		}
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		if err := appendSigned(b, intQuantile(xs, q, interp)); err != nil {
			return nil, err
		}
		return b.NewArray(), nil
	}

	vals, ok := numericFloatValues(arr)
	if !ok {
		return nil, unsupportedAgg("quantile", arr)
	}
	xs := make([]float64, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if !arr.IsNull(i) {
			xs = append(xs, vals(i))
		}
	}
	if len(xs) == 0 {
		b.AppendNull()
		return b.NewArray(), nil
	}
	sort.Slice(xs, func(i, j int) bool { return compareFloat(xs[i], xs[j]) < 0 })
	if err := appendFloat(b, floatQuantile(xs, q, interp)); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

func floatQuantile(xs []float64, q float64, interp string) float64 {
	pos := q * float64(len(xs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	switch interp {
	case "lower":
		return xs[lo]
	case "higher":
		return xs[hi]
	case "midpoint":
		return (xs[lo] + xs[hi]) / 2
	case "nearest":
		return xs[int(math.Round(pos))]
	default: // linear
		frac := pos - float64(lo)
		return xs[lo] + frac*(xs[hi]-xs[lo])
	}
}

func intQuantile(xs []int64, q float64, interp string) int64 {
	pos := q * float64(len(xs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	switch interp {
	case "lower":
		return xs[lo]
	case "higher":
		return xs[hi]
	case "midpoint":
		return xs[lo] + (xs[hi]-xs[lo])/2
	case "nearest":
		return xs[int(math.Round(pos))]
	default: // linear on the delta, which stays small even for epoch ticks
		frac := pos - float64(lo)
		return xs[lo] + int64(math.Round(frac*float64(xs[hi]-xs[lo])))
	}
}

// stdVarKernel computes the variance of the non-null values with the given
// delta degrees of freedom, or its square root.
func stdVarKernel(mem memory.Allocator, arr arrow.Array, ddof int, sqrt bool, dtype types.DataType) (arrow.Array, error) {
	op := "var"
	if sqrt {
		op = "std"
	}
	vals, ok := numericFloatValues(arr)
	if !ok {
		return nil, unsupportedAgg(op, arr)
	}

	var sum float64
	var count int
	for i := 0; i < arr.Len(); i++ {
		if !arr.IsNull(i) {
			sum += vals(i)
			count++
		}
	}

	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	if count <= ddof {
		b.AppendNull()
		return b.NewArray(), nil
	}

	mean := sum / float64(count)
	var ss float64
	for i := 0; i < arr.Len(); i++ {
		if !arr.IsNull(i) {
			d := vals(i) - mean
			ss += d * d
		}
	}
	v := ss / float64(count-ddof)
	if sqrt {
		v = math.Sqrt(v)
	}
	if err := appendFloat(b, v); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// countKernel counts the non-null values.
func countKernel(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	count := uint32(0)
	for i := 0; i < arr.Len(); i++ {
		if !arr.IsNull(i) {
			count++
		}
	}
	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.Append(count)
	return b.NewArray(), nil
}

// nUniqueKernel counts distinct values exactly. Null counts as one distinct
// value.
func nUniqueKernel(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	keys := []arrow.Array{arr}
	var digest xxhash.Digest
	table := swiss.NewMap[uint64, []int32](uint32(max(arr.Len(), 1)))

	distinct := uint32(0)
	for i := 0; i < arr.Len(); i++ {
		h, err := hashRow(&digest, keys, i)
		if err != nil {
			return nil, err
		}
		rows, _ := table.Get(h)
		dup := false
		for _, j := range rows {
			if rowsEqual(keys, i, keys, int(j)) {
				dup = true
				break
			}
		}
		if !dup {
			table.Put(h, append(rows, int32(i)))
			distinct++
		}
	}

	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.Append(distinct)
	return b.NewArray(), nil
}

// approxNUniqueKernel estimates the distinct count with a hyperloglog
// sketch over the canonical row hashes.
func approxNUniqueKernel(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	sketch, err := hyperloglog.NewSketch(14, true)
	if err != nil {
		return nil, err
	}

	keys := []arrow.Array{arr}
	var digest xxhash.Digest
	var buf [8]byte
	for i := 0; i < arr.Len(); i++ {
		h, err := hashRow(&digest, keys, i)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf[:], h)
		sketch.Insert(buf[:])
	}

	b := array.NewUint32Builder(mem)
	defer b.Release()
	b.Append(uint32(sketch.Estimate()))
	return b.NewArray(), nil
}

// positionalKernel picks one row by position; out of range yields null.
func positionalKernel(mem memory.Allocator, arr arrow.Array, idx int) (arrow.Array, error) {
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	if idx < 0 || idx >= arr.Len() {
		b.AppendNull()
		return b.NewArray(), nil
	}
	if err := copyValue(b, arr, idx); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

// implodeKernel packs the whole column into a single list value.
func implodeKernel(mem memory.Allocator, arr arrow.Array, dtype types.DataType) (arrow.Array, error) {
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	lb, ok := b.(*array.ListBuilder)
	if !ok {
		return nil, unsupportedAgg("implode", arr)
	}

	lb.Append(true)
	vb := lb.ValueBuilder()
	for i := 0; i < arr.Len(); i++ {
		if err := copyValue(vb, arr, i); err != nil {
			return nil, err
		}
	}
	return lb.NewArray(), nil
}
