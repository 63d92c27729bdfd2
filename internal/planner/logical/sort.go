package logical

import "fmt"

// Sort orders rows by the given expressions. Descending applies per sort
// expression and must match its length.
type Sort struct {
	Input      Plan
	By         []Expr
	Descending []bool
	NullsLast  bool
}

// NewSort creates a sort over the input plan.
func NewSort(input Plan, by []Expr, descending []bool, nullsLast bool) *Sort {
	return &Sort{Input: input, By: by, Descending: descending, NullsLast: nullsLast}
}

// Type implements the [Plan] interface.
func (*Sort) Type() PlanType { return PlanTypeSort }

// Inputs implements the [Plan] interface.
func (s *Sort) Inputs() []Plan { return []Plan{s.Input} }

// String returns the disassembled SSA form of the node.
func (s *Sort) String() string {
	return fmt.Sprintf("Sort [by=(%s), descending=%v]", exprList(s.By), s.Descending)
}

func (*Sort) isPlan() {}
