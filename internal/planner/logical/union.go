package logical

import "fmt"

// Union concatenates its inputs vertically, preserving input order. All
// inputs must resolve to identical schemas.
type Union struct {
	Plans []Plan
}

// NewUnion creates a vertical concatenation of plans.
func NewUnion(plans []Plan) *Union {
	return &Union{Plans: plans}
}

// Type implements the [Plan] interface.
func (*Union) Type() PlanType { return PlanTypeUnion }

// Inputs implements the [Plan] interface.
func (u *Union) Inputs() []Plan { return u.Plans }

// String returns the disassembled SSA form of the node.
func (u *Union) String() string {
	return fmt.Sprintf("Union [inputs=%d]", len(u.Plans))
}

func (*Union) isPlan() {}
