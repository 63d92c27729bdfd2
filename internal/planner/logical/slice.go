package logical

import "fmt"

// Slice keeps Len rows starting at Offset. A negative Len keeps everything
// from Offset on.
type Slice struct {
	Input  Plan
	Offset int64
	Len    int64
}

// NewSlice creates a slice of the input plan.
func NewSlice(input Plan, offset, length int64) *Slice {
	return &Slice{Input: input, Offset: offset, Len: length}
}

// Type implements the [Plan] interface.
func (*Slice) Type() PlanType { return PlanTypeSlice }

// Inputs implements the [Plan] interface.
func (s *Slice) Inputs() []Plan { return []Plan{s.Input} }

// String returns the disassembled SSA form of the node.
func (s *Slice) String() string {
	return fmt.Sprintf("Slice [offset=%d, len=%d]", s.Offset, s.Len)
}

func (*Slice) isPlan() {}

// Reverse flips the row order of its input.
type Reverse struct {
	Input Plan
}

// NewReverse creates a reversal of the input plan.
func NewReverse(input Plan) *Reverse {
	return &Reverse{Input: input}
}

// Type implements the [Plan] interface.
func (*Reverse) Type() PlanType { return PlanTypeReverse }

// Inputs implements the [Plan] interface.
func (r *Reverse) Inputs() []Plan { return []Plan{r.Input} }

// String returns the disassembled SSA form of the node.
func (*Reverse) String() string { return "Reverse" }

func (*Reverse) isPlan() {}
