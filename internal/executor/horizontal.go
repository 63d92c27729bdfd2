package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// evalHorizontal evaluates a row-wise reduction across its input columns.
// Inputs are coerced to the output type up front, so the kernels operate on
// equally typed, equally sized arrays.
func (e expressionEvaluator) evalHorizontal(ctx context.Context, expr *physical.HorizontalExpr, rec arrow.Record) (arrow.Array, error) {
	inputs, err := e.evalInputs(ctx, expr.Inputs, rec)
	if err != nil {
		return nil, err
	}
	defer releaseAll(inputs)

	target := expr.Dtype
	if expr.Op == types.HorizontalKindAny || expr.Op == types.HorizontalKindAll {
		target = types.Bool
	}
	if target.IsNull() {
		n := 1
		for _, in := range inputs {
			if in.Len() != 1 {
				n = in.Len()
				break
			}
		}
		return nullArray(e.mem, target, n), nil
	}

	coerced, err := castAll(e.mem, inputs, target)
	if err != nil {
		return nil, err
	}
	defer releaseAll(coerced)
	aligned, n, err := alignAll(e.mem, coerced)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	switch expr.Op {
	case types.HorizontalKindSum:
		return horizontalSum(e.mem, aligned, n, expr.IgnoreNulls, target)
	case types.HorizontalKindMean:
		return horizontalMean(e.mem, aligned, n, expr.IgnoreNulls, target)
	case types.HorizontalKindMin:
		return horizontalMinMax(e.mem, aligned, n, target, true)
	case types.HorizontalKindMax:
		return horizontalMinMax(e.mem, aligned, n, target, false)
	case types.HorizontalKindAny:
		return horizontalAnyAll(e.mem, aligned, n, expr.IgnoreNulls, true)
	case types.HorizontalKindAll:
		return horizontalAnyAll(e.mem, aligned, n, expr.IgnoreNulls, false)
	case types.HorizontalKindCoalesce:
		return horizontalCoalesce(e.mem, aligned, n, target)
	default:
		return nil, fmt.Errorf("%w: horizontal reduction %s", errors.ErrNotImplemented, expr.Op)
	}
}

func castAll(mem memory.Allocator, arrs []arrow.Array, to types.DataType) ([]arrow.Array, error) {
	out := make([]arrow.Array, 0, len(arrs))
	for _, arr := range arrs {
		cast, err := castArray(mem, arr, to, true)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, cast)
	}
	return out, nil
}

func horizontalSum(mem memory.Allocator, arrs []arrow.Array, n int, ignoreNulls bool, dtype types.DataType) (arrow.Array, error) {
	if dtype.Kind() == types.KindString {
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			var parts string
			seen := 0
			for _, arr := range arrs {
				if arr.IsNull(i) {
					continue
				}
				parts += arr.(*array.String).Value(i)
				seen++
			}
			if seen == 0 || (!ignoreNulls && seen < len(arrs)) {
				b.AppendNull()
				continue
			}
			b.Append(parts)
		}
		return b.NewArray(), nil
	}

	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)

	switch {
	case dtype.IsFloat():
		vals := floatAccessors(arrs)
		for i := 0; i < n; i++ {
			sum, seen := 0.0, 0
			for j, arr := range arrs {
				if arr.IsNull(i) {
					continue
				}
				sum += vals[j](i)
				seen++
			}
			if err := appendSumFloat(b, sum, seen, len(arrs), ignoreNulls); err != nil {
				return nil, err
			}
		}
	case dtype.IsSignedInteger(), dtype.Kind() == types.KindDuration:
		vals := make([]func(int) int64, len(arrs))
		for j, arr := range arrs {
			vals[j], _ = signedValues(arr)
		}
		for i := 0; i < n; i++ {
			sum, seen := int64(0), 0
			for j, arr := range arrs {
				if arr.IsNull(i) {
					continue
				}
				sum += vals[j](i)
				seen++
			}
			if seen == 0 || (!ignoreNulls && seen < len(arrs)) {
				b.AppendNull()
				continue
			}
			if err := appendSigned(b, sum); err != nil {
				return nil, err
			}
		}
	case dtype.IsUnsignedInteger():
		vals := make([]func(int) uint64, len(arrs))
		for j, arr := range arrs {
			vals[j], _ = unsignedValues(arr)
		}
		for i := 0; i < n; i++ {
			sum, seen := uint64(0), 0
			for j, arr := range arrs {
				if arr.IsNull(i) {
					continue
				}
				sum += vals[j](i)
				seen++
			}
			if seen == 0 || (!ignoreNulls && seen < len(arrs)) {
				b.AppendNull()
				continue
			}
			if err := appendUnsigned(b, sum); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: sum_horizontal not supported for dtype %s", errors.ErrCompute, dtype)
	}
	return b.NewArray(), nil
}

func appendSumFloat(b array.Builder, sum float64, seen, total int, ignoreNulls bool) error {
	if seen == 0 || (!ignoreNulls && seen < total) {
		b.AppendNull()
		return nil
	}
	return appendFloat(b, sum)
}

func horizontalMean(mem memory.Allocator, arrs []arrow.Array, n int, ignoreNulls bool, dtype types.DataType) (arrow.Array, error) {
	vals := floatAccessors(arrs)
	for _, v := range vals {
		if v == nil {
			return nil, fmt.Errorf("%w: mean_horizontal not supported for dtype %s", errors.ErrCompute, dtype)
		}
	}
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		sum, seen := 0.0, 0
		for j, arr := range arrs {
			if arr.IsNull(i) {
				continue
			}
			sum += vals[j](i)
			seen++
		}
		if seen == 0 || (!ignoreNulls && seen < len(arrs)) {
			b.AppendNull()
			continue
		}
		if err := appendFloat(b, sum/float64(seen)); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func floatAccessors(arrs []arrow.Array) []func(int) float64 {
	vals := make([]func(int) float64, len(arrs))
	for j, arr := range arrs {
		vals[j], _ = numericFloatValues(arr)
	}
	return vals
}

// horizontalMinMax picks the smallest or largest non-null value of each
// row. NaN orders above any other float value.
func horizontalMinMax(mem memory.Allocator, arrs []arrow.Array, n int, dtype types.DataType, isMin bool) (arrow.Array, error) {
	cmp, err := crossComparator(arrs, dtype)
	if err != nil {
		return nil, err
	}

	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		best := -1
		for j, arr := range arrs {
			if arr.IsNull(i) {
				continue
			}
			if best < 0 {
				best = j
				continue
			}
			c := cmp(j, best, i)
			if (isMin && c < 0) || (!isMin && c > 0) {
				best = j
			}
		}
		if best < 0 {
			b.AppendNull()
			continue
		}
		if err := copyValue(b, arrs[best], i); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// crossComparator compares the values of two equally typed arrays of the
// set at a shared row index.
func crossComparator(arrs []arrow.Array, dtype types.DataType) (func(j, k, i int) int, error) {
	switch {
	case dtype.IsFloat():
		vals := floatAccessors(arrs)
		return func(j, k, i int) int {
			return compareFloat(vals[j](i), vals[k](i))
		}, nil
	case dtype.IsSignedInteger(), dtype.IsTemporal():
		vals := make([]func(int) int64, len(arrs))
		for j, arr := range arrs {
			vals[j], _ = signedValues(arr)
		}
		return func(j, k, i int) int {
			return compareOrdered(vals[j](i), vals[k](i))
		}, nil
	case dtype.IsUnsignedInteger():
		vals := make([]func(int) uint64, len(arrs))
		for j, arr := range arrs {
			vals[j], _ = unsignedValues(arr)
		}
		return func(j, k, i int) int {
			return compareOrdered(vals[j](i), vals[k](i))
		}, nil
	case dtype.Kind() == types.KindString:
		return func(j, k, i int) int {
			a, b := arrs[j].(*array.String).Value(i), arrs[k].(*array.String).Value(i)
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}, nil
	case dtype.Kind() == types.KindBool:
		return func(j, k, i int) int {
			a := boolRank(arrs[j].(*array.Boolean).Value(i))
			b := boolRank(arrs[k].(*array.Boolean).Value(i))
			return compareOrdered(a, b)
		}, nil
	default:
		return nil, fmt.Errorf("%w: cannot compare values of type %s", errors.ErrCompute, dtype)
	}
}

// compareFloat is a total order over floats with NaN above all other
// values.
func compareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// horizontalAnyAll implements Kleene disjunction and conjunction across
// columns. With ignoreNulls set, nulls drop out of the row instead of
// participating in the three-valued logic.
func horizontalAnyAll(mem memory.Allocator, arrs []arrow.Array, n int, ignoreNulls, isAny bool) (arrow.Array, error) {
	b := array.NewBooleanBuilder(mem)
	defer b.Release()
	b.Reserve(n)

	vals := make([]func(int) bool, len(arrs))
	for j, arr := range arrs {
		vals[j] = boolValues(arr)
	}

	for i := 0; i < n; i++ {
		decided := false
		sawNull := false
		for j, arr := range arrs {
			if arr.IsNull(i) {
				sawNull = true
				continue
			}
			if vals[j](i) == isAny {
				// true decides any, false decides all.
				b.Append(isAny)
				decided = true
				break
			}
		}
		if decided {
			continue
		}
		if sawNull && !ignoreNulls {
			b.AppendNull()
			continue
		}
		b.Append(!isAny)
	}
	return b.NewArray(), nil
}

func horizontalCoalesce(mem memory.Allocator, arrs []arrow.Array, n int, dtype types.DataType) (arrow.Array, error) {
	b := array.NewBuilder(mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		filled := false
		for _, arr := range arrs {
			if arr.IsNull(i) {
				continue
			}
			if err := copyValue(b, arr, i); err != nil {
				return nil, err
			}
			filled = true
			break
		}
		if !filled {
			b.AppendNull()
		}
	}
	return b.NewArray(), nil
}

// evalFold folds the input columns left to right through a user function.
// The accumulator starts from the explicit initializer, or from the first
// input for reductions, which therefore pass a single input through
// untouched.
func (e expressionEvaluator) evalFold(ctx context.Context, expr *physical.FoldExpr, rec arrow.Record) (arrow.Array, error) {
	inputs, err := e.evalInputs(ctx, expr.Inputs, rec)
	if err != nil {
		return nil, err
	}
	defer releaseAll(inputs)
	aligned, n, err := alignAll(e.mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	// states[0] is the initial accumulator; each folded input appends the
	// accumulator state after combining it.
	var states []arrow.Array
	defer func() { releaseAll(states) }()

	rest := aligned
	if expr.Acc != nil {
		acc, err := e.eval(ctx, expr.Acc, rec)
		if err != nil {
			return nil, err
		}
		start, err := broadcastTo(e.mem, acc, n)
		acc.Release()
		if err != nil {
			return nil, err
		}
		states = append(states, start)
	} else {
		aligned[0].Retain()
		states = append(states, aligned[0])
		rest = aligned[1:]
	}

	for _, next := range rest {
		folded, err := expr.Fn(e.mem, states[len(states)-1], next)
		if err != nil {
			return nil, fmt.Errorf("%w: fold function: %v", errors.ErrCompute, err)
		}
		if folded.Len() != n {
			folded.Release()
			return nil, fmt.Errorf("%w: fold function returned %d rows, expected %d",
				errors.ErrShape, folded.Len(), n)
		}
		states = append(states, folded)
	}

	switch expr.Op {
	case logical.FoldKindCumFold, logical.FoldKindCumReduce:
		fields := states
		if expr.Op == logical.FoldKindCumFold && !expr.IncludeInit {
			fields = states[1:]
		}
		st, err := array.NewStructArray(fields, expr.FieldNames)
		if err != nil {
			return nil, fmt.Errorf("%w: assemble struct column: %v", errors.ErrCompute, err)
		}
		return st, nil
	default:
		out := states[len(states)-1]
		out.Retain()
		return out, nil
	}
}

// broadcastTo repeats a length-1 array to length n. Longer arrays must
// already have the target length.
func broadcastTo(mem memory.Allocator, arr arrow.Array, n int) (arrow.Array, error) {
	switch arr.Len() {
	case n:
		arr.Retain()
		return arr, nil
	case 1:
		return repeatValue(mem, arr, 0, n)
	default:
		return nil, fmt.Errorf("%w: cannot combine series of length %d with series of length %d",
			errors.ErrShape, n, arr.Len())
	}
}

// AddArrays adds two numeric arrays elementwise after coercing them to
// their supertype, broadcasting length-1 operands. It backs the built-in
// horizontal cumulative sum.
func AddArrays(mem memory.Allocator, a, b arrow.Array) (arrow.Array, error) {
	at, err := types.FromArrow(a.DataType())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCompute, err)
	}
	bt, err := types.FromArrow(b.DataType())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCompute, err)
	}
	st, ok := types.Supertype(at, bt)
	if !ok {
		return nil, fmt.Errorf("%w: failed to determine supertype of %s and %s", errors.ErrCompute, at, bt)
	}
	if st.Kind() == types.KindBool {
		// Summing booleans counts the true values.
		st = types.IdxType
	}
	if !st.IsNumeric() && !st.IsNull() {
		return nil, fmt.Errorf("%w: ADD not supported for dtype %s", errors.ErrCompute, st)
	}

	ca, err := castArray(mem, a, st, true)
	if err != nil {
		return nil, err
	}
	defer ca.Release()
	cb, err := castArray(mem, b, st, true)
	if err != nil {
		return nil, err
	}
	defer cb.Release()
	la, lb, err := alignPair(mem, ca, cb)
	if err != nil {
		return nil, err
	}
	defer la.Release()
	defer lb.Release()

	expr := &physical.BinaryExpr{
		Op:    types.BinOpKindAdd,
		Left:  &physical.ColumnExpr{Name: "a", Dtype: st},
		Right: &physical.ColumnExpr{Name: "b", Dtype: st},
		Dtype: st,
	}
	if st.IsNull() {
		return nullArray(mem, st, la.Len()), nil
	}
	return numericKernel(mem, expr, la, lb)
}
