package logical

import (
	"fmt"
	"strings"
)

// Projection replaces the input's columns with the evaluated expression
// list.
type Projection struct {
	Input Plan
	Exprs []Expr
}

// NewProjection creates a projection over the input plan.
func NewProjection(input Plan, exprs []Expr) *Projection {
	return &Projection{Input: input, Exprs: exprs}
}

// Type implements the [Plan] interface.
func (*Projection) Type() PlanType { return PlanTypeProjection }

// Inputs implements the [Plan] interface.
func (p *Projection) Inputs() []Plan { return []Plan{p.Input} }

// String returns the disassembled SSA form of the node.
func (p *Projection) String() string {
	return fmt.Sprintf("Projection [exprs=(%s)]", exprList(p.Exprs))
}

func (*Projection) isPlan() {}

// WithColumns keeps the input's columns and adds or replaces the evaluated
// expression list. An expression whose output name matches an existing
// column replaces it in place; new names append in order.
type WithColumns struct {
	Input Plan
	Exprs []Expr
}

// NewWithColumns creates a with_columns node over the input plan.
func NewWithColumns(input Plan, exprs []Expr) *WithColumns {
	return &WithColumns{Input: input, Exprs: exprs}
}

// Type implements the [Plan] interface.
func (*WithColumns) Type() PlanType { return PlanTypeWithColumns }

// Inputs implements the [Plan] interface.
func (w *WithColumns) Inputs() []Plan { return []Plan{w.Input} }

// String returns the disassembled SSA form of the node.
func (w *WithColumns) String() string {
	return fmt.Sprintf("WithColumns [exprs=(%s)]", exprList(w.Exprs))
}

func (*WithColumns) isPlan() {}

func exprList(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
