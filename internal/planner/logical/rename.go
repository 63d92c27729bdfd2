package logical

import (
	"fmt"
	"strings"
)

// Rename replaces column names while keeping order, types, and values. Old
// and New pair up by index. Renames apply simultaneously, so swapping two
// names is well defined.
type Rename struct {
	Input Plan
	Old   []string
	New   []string
}

// NewRename creates a rename of columns of the input plan.
func NewRename(input Plan, old, new []string) *Rename {
	return &Rename{Input: input, Old: old, New: new}
}

// Type implements the [Plan] interface.
func (*Rename) Type() PlanType { return PlanTypeRename }

// Inputs implements the [Plan] interface.
func (r *Rename) Inputs() []Plan { return []Plan{r.Input} }

// String returns the disassembled SSA form of the node.
func (r *Rename) String() string {
	pairs := make([]string, len(r.Old))
	for i := range r.Old {
		pairs[i] = fmt.Sprintf("%s->%s", r.Old[i], r.New[i])
	}
	return fmt.Sprintf("Rename [%s]", strings.Join(pairs, ", "))
}

func (*Rename) isPlan() {}
