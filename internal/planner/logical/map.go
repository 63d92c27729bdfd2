package logical

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/AmirulAndalib/polars/internal/types"
)

// Strategies accepted by element-wise mapping.
const (
	StrategyThreadLocal = "thread_local"
	StrategyThreading   = "threading"
)

// BatchFunction transforms whole materialized columns into one output column
// of the same length. It may be invoked concurrently for independent
// evaluation units and must not rely on call serialization.
type BatchFunction func(alloc memory.Allocator, columns []arrow.Array) (arrow.Array, error)

// FoldFunction combines the accumulator column with the next input column.
// Inputs are whole columns; the result must have the same length.
type FoldFunction func(alloc memory.Allocator, acc, next arrow.Array) (arrow.Array, error)

// ElementCall is the per-value invocation context for element-wise mapping.
// Name is only populated when the mapping was constructed with pass_name.
type ElementCall struct {
	Value any
	Name  string
}

// ElementFunction transforms one scalar value at a time.
type ElementFunction func(call ElementCall) (any, error)

// MapMode selects the escape-hatch invocation contract.
type MapMode uint32

const (
	MapModeInvalid MapMode = iota

	// MapModeBatches passes full materialized columns to the function.
	MapModeBatches
	// MapModeElements passes one scalar value at a time.
	MapModeElements
	// MapModeGroups passes one group's materialized columns during
	// aggregation.
	MapModeGroups
)

// String returns the string representation of the MapMode.
func (m MapMode) String() string {
	switch m {
	case MapModeBatches:
		return "map_batches"
	case MapModeElements:
		return "map_elements"
	case MapModeGroups:
		return "map_groups"
	default:
		return "invalid"
	}
}

// MapExpr is an escape hatch: a function-application node whose body is
// arbitrary external code. The optimizer treats it as an opaque barrier with
// an unknown schema unless ReturnDtype is declared.
type MapExpr struct {
	Mode   MapMode
	Inputs []Expr

	// BatchFn serves batch and group modes, ElemFn serves element mode.
	BatchFn BatchFunction
	ElemFn  ElementFunction

	// ReturnDtype is the declared output type. When nil the type stays
	// unknown until evaluation, where it is inferred from a first non-null
	// probe.
	ReturnDtype *types.DataType

	// SkipNulls keeps the function from ever being invoked on a null input
	// in element mode; the output row is null directly.
	SkipNulls bool
	// Strategy is the element invocation discipline, validated before
	// construction: thread_local (sequential) or threading (parallel row
	// partitions).
	Strategy string
	// PassName makes the source column name available to the function.
	PassName bool
	// ReturnsScalar declares that a group function collapses each group to
	// one row.
	ReturnsScalar bool
	// AggList packs each group into a list value before calling the
	// function in batch mode under aggregation.
	AggList bool
}

// Kind implements the [Expr] interface.
func (*MapExpr) Kind() ExprKind { return ExprKindMap }

// String returns the string representation of the escape hatch.
func (m *MapExpr) String() string {
	args := make([]string, len(m.Inputs))
	for i, in := range m.Inputs {
		args[i] = in.String()
	}
	return fmt.Sprintf("%s(%s)", m.Mode, strings.Join(args, ", "))
}

func (*MapExpr) isExpr() {}
