package logical

import "fmt"

// Filter keeps the rows for which the boolean predicate evaluates to true.
// Null predicate rows are dropped.
type Filter struct {
	Input     Plan
	Predicate Expr
}

// NewFilter creates a filter over the input plan.
func NewFilter(input Plan, predicate Expr) *Filter {
	return &Filter{Input: input, Predicate: predicate}
}

// Type implements the [Plan] interface.
func (*Filter) Type() PlanType { return PlanTypeFilter }

// Inputs implements the [Plan] interface.
func (f *Filter) Inputs() []Plan { return []Plan{f.Input} }

// String returns the disassembled SSA form of the node.
func (f *Filter) String() string {
	return fmt.Sprintf("Filter [predicate=%s]", f.Predicate)
}

func (*Filter) isPlan() {}
