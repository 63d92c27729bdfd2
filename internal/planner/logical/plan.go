package logical

import "fmt"

// Plan is a node in the logical plan tree. Plans are persistent: every
// transformation wraps its input in a new node and inputs are never mutated,
// so prefixes are freely shared between derived plans.
type Plan interface {
	fmt.Stringer

	// Type returns the plan node type.
	Type() PlanType

	// Inputs returns the child plans in order.
	Inputs() []Plan

	isPlan()
}

// PlanType identifies the concrete type of a plan node.
type PlanType uint32

const (
	PlanTypeInvalid PlanType = iota

	PlanTypeMakeTable
	PlanTypeProjection
	PlanTypeWithColumns
	PlanTypeRename
	PlanTypeFilter
	PlanTypeAggregate
	PlanTypeJoin
	PlanTypeUnion
	PlanTypeSort
	PlanTypeSlice
	PlanTypeReverse
	PlanTypeCache
)

// String returns the string representation of the PlanType.
func (t PlanType) String() string {
	switch t {
	case PlanTypeMakeTable:
		return "MakeTable"
	case PlanTypeProjection:
		return "Projection"
	case PlanTypeWithColumns:
		return "WithColumns"
	case PlanTypeRename:
		return "Rename"
	case PlanTypeFilter:
		return "Filter"
	case PlanTypeAggregate:
		return "Aggregate"
	case PlanTypeJoin:
		return "Join"
	case PlanTypeUnion:
		return "Union"
	case PlanTypeSort:
		return "Sort"
	case PlanTypeSlice:
		return "Slice"
	case PlanTypeReverse:
		return "Reverse"
	case PlanTypeCache:
		return "Cache"
	default:
		return "Invalid"
	}
}
