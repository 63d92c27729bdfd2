package logical

import "fmt"

// Aggregate groups the input rows by the key expressions and evaluates one
// aggregation expression per output column within each group.
type Aggregate struct {
	Input Plan
	Keys  []Expr
	Aggs  []Expr

	// MaintainOrder makes group output order follow first appearance of
	// each key in the input instead of being unspecified.
	MaintainOrder bool
}

// NewAggregate creates a grouped aggregation over the input plan.
func NewAggregate(input Plan, keys, aggs []Expr) *Aggregate {
	return &Aggregate{Input: input, Keys: keys, Aggs: aggs}
}

// Type implements the [Plan] interface.
func (*Aggregate) Type() PlanType { return PlanTypeAggregate }

// Inputs implements the [Plan] interface.
func (a *Aggregate) Inputs() []Plan { return []Plan{a.Input} }

// String returns the disassembled SSA form of the node.
func (a *Aggregate) String() string {
	return fmt.Sprintf("Aggregate [keys=(%s), aggs=(%s)]", exprList(a.Keys), exprList(a.Aggs))
}

func (*Aggregate) isPlan() {}
