package logical

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/source"
)

// MakeTable is a leaf node producing rows from a table source.
type MakeTable struct {
	Source source.Source
}

// NewMakeTable creates a leaf node over the given source.
func NewMakeTable(src source.Source) *MakeTable {
	return &MakeTable{Source: src}
}

// Type implements the [Plan] interface.
func (*MakeTable) Type() PlanType { return PlanTypeMakeTable }

// Inputs implements the [Plan] interface.
func (*MakeTable) Inputs() []Plan { return nil }

// String returns the disassembled SSA form of the node.
func (t *MakeTable) String() string {
	return fmt.Sprintf("MakeTable [source=%s]", t.Source.Name())
}

func (*MakeTable) isPlan() {}
