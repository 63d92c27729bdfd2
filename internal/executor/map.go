package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/sync/errgroup"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// evalMap invokes a user function. Batch and group modes hand the function
// whole materialized columns; element mode calls it once per row. Inside a
// grouped aggregation the evaluator re-enters here per group, so group mode
// sees exactly one group's rows; outside aggregation the whole column acts
// as a single group.
func (e expressionEvaluator) evalMap(ctx context.Context, expr *physical.MapExpr, rec arrow.Record) (arrow.Array, error) {
	inputs, err := e.evalInputs(ctx, expr.Inputs, rec)
	if err != nil {
		return nil, err
	}
	defer releaseAll(inputs)

	aligned, _, err := alignAll(e.mem, inputs)
	if err != nil {
		return nil, err
	}
	defer releaseAll(aligned)

	switch expr.Mode {
	case logical.MapModeBatches:
		return e.evalMapBatches(expr, aligned)
	case logical.MapModeElements:
		return e.evalMapElements(expr, aligned[0])
	case logical.MapModeGroups:
		return e.evalMapGroups(expr, aligned)
	default:
		return nil, fmt.Errorf("%w: map mode %s", errors.ErrNotImplemented, expr.Mode)
	}
}

// packLists implodes each column into a single list value.
func packLists(mem memory.Allocator, cols []arrow.Array) ([]arrow.Array, error) {
	packed := make([]arrow.Array, len(cols))
	for i, col := range cols {
		inner, err := types.FromArrow(col.DataType())
		if err != nil {
			releaseAll(packed[:i])
			return nil, err
		}
		arr, err := implodeKernel(mem, col, types.List(inner))
		if err != nil {
			releaseAll(packed[:i])
			return nil, err
		}
		packed[i] = arr
	}
	return packed, nil
}

// evalMapBatches hands the function its evaluation unit: the whole column
// in a projection, one group's rows under aggregation. With agg_list the
// unit packs into a single list value first.
func (e expressionEvaluator) evalMapBatches(expr *physical.MapExpr, cols []arrow.Array) (arrow.Array, error) {
	if expr.AggList {
		packed, err := packLists(e.mem, cols)
		if err != nil {
			return nil, err
		}
		defer releaseAll(packed)
		cols = packed
	}

	out, err := expr.BatchFn(e.mem, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: map function: %v", errors.ErrCompute, err)
	}
	return e.castMapResult(out, expr.Dtype)
}

func (e expressionEvaluator) evalMapGroups(expr *physical.MapExpr, cols []arrow.Array) (arrow.Array, error) {
	if expr.AggList {
		packed, err := packLists(e.mem, cols)
		if err != nil {
			return nil, err
		}
		defer releaseAll(packed)
		cols = packed
	}

	out, err := expr.BatchFn(e.mem, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: map function: %v", errors.ErrCompute, err)
	}

	if expr.ReturnsScalar {
		if out.Len() != 1 {
			n := out.Len()
			out.Release()
			return nil, fmt.Errorf("%w: map function declared returns_scalar but produced %d rows for one group",
				errors.ErrCompute, n)
		}
		return e.castMapResult(out, expr.Dtype)
	}

	// Same-length group results keep their rows as one nested list per
	// group.
	cast, err := e.castMapResult(out, expr.Dtype)
	if err != nil {
		return nil, err
	}
	defer cast.Release()
	inner, err := types.FromArrow(cast.DataType())
	if err != nil {
		return nil, err
	}
	return implodeKernel(e.mem, cast, types.List(inner))
}

// castMapResult aligns a user function result with the declared return
// type. An unknown declared type trusts the result. Consumes out.
func (e expressionEvaluator) castMapResult(out arrow.Array, dtype types.DataType) (arrow.Array, error) {
	if dtype.IsUnknown() || arrow.TypeEqual(out.DataType(), types.ToArrow(dtype)) {
		return out, nil
	}
	defer out.Release()
	return castArray(e.mem, out, dtype, true)
}

func (e expressionEvaluator) evalMapElements(expr *physical.MapExpr, input arrow.Array) (arrow.Array, error) {
	n := input.Len()
	read, err := scalarReader(input)
	if err != nil {
		return nil, err
	}

	name := ""
	if expr.PassName {
		name = expr.InputName
	}

	results := make([]any, n)
	call := func(i int) error {
		if input.IsNull(i) && expr.SkipNulls {
			return nil
		}
		out, err := expr.ElemFn(logical.ElementCall{Value: read(i), Name: name})
		if err != nil {
			return fmt.Errorf("%w: map function: %v", errors.ErrCompute, err)
		}
		results[i] = out
		return nil
	}

	if expr.Strategy == logical.StrategyThreading && n > 1 {
		// Partition the rows into independent contiguous chunks. The
		// function contract requires concurrency safety in this mode.
		workers := min(e.maxThreads, n)
		chunk := (n + workers - 1) / workers
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			start := w * chunk
			end := min(start+chunk, n)
			if start >= end {
				break
			}
			g.Go(func() error {
				for i := start; i < end; i++ {
					if err := call(i); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < n; i++ {
			if err := call(i); err != nil {
				return nil, err
			}
		}
	}

	dtype := expr.Dtype
	if dtype.IsUnknown() {
		inferred, ok := probeResultType(results)
		if !ok {
			// Every output is null; there is nothing to infer from.
			return nullArray(e.mem, types.Null, n), nil
		}
		dtype = inferred
	}

	b := array.NewBuilder(e.mem, types.ToArrow(dtype))
	defer b.Release()
	b.Reserve(n)
	for _, v := range results {
		if err := appendAny(b, v); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// scalarReader converts rows into plain Go values for element calls:
// integers widen to int64 or uint64, floats to float64, temporals pass
// their ticks.
func scalarReader(arr arrow.Array) (func(int) any, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		return func(i int) any { return a.Value(i) }, nil
	case *array.String:
		return func(i int) any { return a.Value(i) }, nil
	case *array.Null:
		return func(int) any { return nil }, nil
	}
	if vals, ok := floatValues(arr); ok {
		return func(i int) any { return vals(i) }, nil
	}
	if vals, ok := signedValues(arr); ok {
		return func(i int) any { return vals(i) }, nil
	}
	if vals, ok := unsignedValues(arr); ok {
		return func(i int) any { return vals(i) }, nil
	}
	return nil, fmt.Errorf("%w: element mapping not supported for dtype %s", errors.ErrCompute, arr.DataType())
}

// probeResultType infers the output type from the first non-null result.
func probeResultType(results []any) (types.DataType, bool) {
	for _, v := range results {
		switch v.(type) {
		case nil:
			continue
		case bool:
			return types.Bool, true
		case int, int8, int16, int32, int64:
			return types.Int64, true
		case uint, uint8, uint16, uint32, uint64:
			return types.UInt64, true
		case float32, float64:
			return types.Float64, true
		case string:
			return types.String, true
		default:
			return types.Unknown, false
		}
	}
	return types.Unknown, false
}

// appendAny appends a plain Go value to the builder, coercing integers into
// float builders. A value the builder cannot hold is a type inconsistency.
func appendAny(b array.Builder, v any) error {
	fail := func() error {
		return fmt.Errorf("%w: map function returned %T, which does not fit output dtype %s",
			errors.ErrCompute, v, b.Type())
	}

	switch v := v.(type) {
	case nil:
		b.AppendNull()
		return nil
	case bool:
		bb, ok := b.(*array.BooleanBuilder)
		if !ok {
			return fail()
		}
		bb.Append(v)
		return nil
	case string:
		sb, ok := b.(*array.StringBuilder)
		if !ok {
			return fail()
		}
		sb.Append(v)
		return nil
	case float32:
		if appendFloat(b, float64(v)) != nil {
			return fail()
		}
		return nil
	case float64:
		if appendFloat(b, v) != nil {
			return fail()
		}
		return nil
	case int, int8, int16, int32, int64:
		x := reflectInt(v)
		if appendSigned(b, x) == nil {
			return nil
		}
		if appendFloat(b, float64(x)) == nil {
			return nil
		}
		return fail()
	case uint, uint8, uint16, uint32, uint64:
		x := reflectUint(v)
		if appendUnsigned(b, x) == nil {
			return nil
		}
		if appendFloat(b, float64(x)) == nil {
			return nil
		}
		return fail()
	default:
		return fail()
	}
}

func reflectInt(v any) int64 {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func reflectUint(v any) uint64 {
	switch v := v.(type) {
	case uint:
		return uint64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	}
	return 0
}
