package polars

import (
	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/types"
)

// Escape hatches apply arbitrary user code where no built-in expression
// fits. The optimizer treats such nodes as opaque barriers: it cannot push
// predicates or projections through them, and unless a return type is
// declared the output schema stays unknown until the function has run on a
// first probe value. Constructing an escape hatch without a declared
// return type therefore emits an inefficiency advisory on the package's
// warning channel.

// BatchFunction transforms whole materialized columns into one output
// column of the same length. The executor may invoke it concurrently for
// independent batches or groups; it must not rely on call serialization or
// shared mutable state.
type BatchFunction = logical.BatchFunction

// ElementFunction transforms one scalar value at a time.
type ElementFunction = logical.ElementFunction

// ElementCall is the per-value invocation context of an [ElementFunction].
type ElementCall = logical.ElementCall

// Invocation disciplines for [Expr.MapElements].
const (
	// StrategyThreadLocal invokes the function sequentially.
	StrategyThreadLocal = logical.StrategyThreadLocal
	// StrategyThreading invokes the function in parallel across
	// independent row partitions.
	StrategyThreading = logical.StrategyThreading
)

// MapBatchesOpts configures [MapBatches]. The zero value declares nothing
// and packs nothing.
type MapBatchesOpts struct {
	// ReturnDtype declares the output type. When left invalid the type is
	// inferred from the function's result at evaluation time.
	ReturnDtype DataType
	// AggList packs the function's input into a single list value before
	// the call: each group's rows under aggregation, the whole column
	// otherwise.
	AggList bool
}

// MapElementsOpts configures [Expr.MapElements]. The zero value skips
// nulls, runs sequentially, and declares no return type.
type MapElementsOpts struct {
	// ReturnDtype declares the output element type. When left invalid the
	// type is inferred from a first non-null probe of the results.
	ReturnDtype DataType
	// IncludeNulls invokes the function for null inputs too. By default a
	// null input never reaches the function and yields null directly.
	IncludeNulls bool
	// Strategy picks the invocation discipline, [StrategyThreadLocal] by
	// default. Unrecognized values fail the collect with
	// [ErrInvalidParameter] before any row is processed.
	Strategy string
	// PassName makes the source column's name available to the function
	// through [ElementCall].
	PassName bool
}

// MapGroupsOpts configures [MapGroups]. The zero value declares no return
// type and collapses each group to one row.
type MapGroupsOpts struct {
	// ReturnDtype declares the output type. When left invalid the type is
	// inferred from the function's result at evaluation time.
	ReturnDtype DataType
	// ReturnsColumn declares that the function returns a same-length
	// column per group, kept as a nested list field, instead of collapsing
	// the group to one value.
	ReturnsColumn bool
}

func declaredDtype(dt DataType) *types.DataType {
	if dt.Kind() == types.KindInvalid {
		return nil
	}
	return &dt
}

func advisory(node *logical.MapExpr) Expr {
	if node.ReturnDtype == nil {
		warn("msg", "escape hatch has no declared return type; the schema stays unknown until the function runs and the optimizer cannot rewrite across it",
			"expr", node.String())
	}
	return wrapExpr(node)
}

// MapBatches applies the function to the whole materialized columns of the
// input expressions at once, producing a single column of matching length.
func MapBatches(exprs []Expr, fn BatchFunction, opts ...MapBatchesOpts) Expr {
	var o MapBatchesOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	return advisory(&logical.MapExpr{
		Mode:        logical.MapModeBatches,
		Inputs:      unwrapExprs(exprs),
		BatchFn:     fn,
		ReturnDtype: declaredDtype(o.ReturnDtype),
		AggList:     o.AggList,
	})
}

// MapBatches applies the function to this expression's whole materialized
// column.
func (e Expr) MapBatches(fn BatchFunction, opts ...MapBatchesOpts) Expr {
	return MapBatches([]Expr{e}, fn, opts...)
}

// MapGroups applies the function to one group's materialized columns at a
// time in a group-by context. By default the function collapses each group
// to a single value; see [MapGroupsOpts.ReturnsColumn] for the list form.
func MapGroups(exprs []Expr, fn BatchFunction, opts ...MapGroupsOpts) Expr {
	var o MapGroupsOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	return advisory(&logical.MapExpr{
		Mode:          logical.MapModeGroups,
		Inputs:        unwrapExprs(exprs),
		BatchFn:       fn,
		ReturnDtype:   declaredDtype(o.ReturnDtype),
		ReturnsScalar: !o.ReturnsColumn,
	})
}

// MapGroups applies the function to this expression's column one group at
// a time.
func (e Expr) MapGroups(fn BatchFunction, opts ...MapGroupsOpts) Expr {
	return MapGroups([]Expr{e}, fn, opts...)
}

// MapElements applies the function to one value at a time. Null inputs are
// skipped unless [MapElementsOpts.IncludeNulls] is set, and the invocation
// discipline follows [MapElementsOpts.Strategy]. Prefer built-in
// expressions where one exists: element calls defeat both vectorized
// execution and the optimizer.
func (e Expr) MapElements(fn ElementFunction, opts ...MapElementsOpts) Expr {
	var o MapElementsOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	strategy := o.Strategy
	if strategy == "" {
		strategy = StrategyThreadLocal
	}
	return advisory(&logical.MapExpr{
		Mode:        logical.MapModeElements,
		Inputs:      []logical.Expr{e.node},
		ElemFn:      fn,
		ReturnDtype: declaredDtype(o.ReturnDtype),
		SkipNulls:   !o.IncludeNulls,
		Strategy:    strategy,
		PassName:    o.PassName,
	})
}

// Map applies the function to whole materialized columns.
//
// Deprecated: renamed to [MapBatches].
func Map(exprs []Expr, fn BatchFunction, opts ...MapBatchesOpts) Expr {
	deprecated("Map", "MapBatches")
	return MapBatches(exprs, fn, opts...)
}

// Apply applies the function per group in a group-by context.
//
// Deprecated: renamed to [MapGroups].
func Apply(exprs []Expr, fn BatchFunction, opts ...MapGroupsOpts) Expr {
	deprecated("Apply", "MapGroups")
	return MapGroups(exprs, fn, opts...)
}
