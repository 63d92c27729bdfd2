package logical

import "fmt"

// Cache marks its input for shared materialization: the subplan executes at
// most once per collect even when referenced from multiple branches. The
// optimizer inserts these for structurally identical subplans; users insert
// them explicitly through the frame API.
type Cache struct {
	Input Plan
	ID    string
}

// NewCache creates a cache point over the input plan.
func NewCache(input Plan, id string) *Cache {
	return &Cache{Input: input, ID: id}
}

// Type implements the [Plan] interface.
func (*Cache) Type() PlanType { return PlanTypeCache }

// Inputs implements the [Plan] interface.
func (c *Cache) Inputs() []Plan { return []Plan{c.Input} }

// String returns the disassembled SSA form of the node.
func (c *Cache) String() string {
	return fmt.Sprintf("Cache [id=%s]", c.ID)
}

func (*Cache) isPlan() {}
