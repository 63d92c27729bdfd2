package logical

import "fmt"

// JoinType is the join strategy.
type JoinType uint8

const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
)

// String returns the string representation of the JoinType.
func (t JoinType) String() string {
	switch t {
	case JoinTypeInner:
		return "inner"
	case JoinTypeLeft:
		return "left"
	default:
		return fmt.Sprintf("JoinType(%d)", t)
	}
}

// Join combines two plans on equality of the key expressions.
type Join struct {
	Left, Right Plan
	LeftOn      []Expr
	RightOn     []Expr
	How         JoinType

	// Suffix disambiguates right-side column names colliding with left-side
	// ones. Defaults to "_right" when empty.
	Suffix string
}

// NewJoin creates a join of two plans.
func NewJoin(left, right Plan, leftOn, rightOn []Expr, how JoinType) *Join {
	return &Join{Left: left, Right: right, LeftOn: leftOn, RightOn: rightOn, How: how}
}

// Type implements the [Plan] interface.
func (*Join) Type() PlanType { return PlanTypeJoin }

// Inputs implements the [Plan] interface.
func (j *Join) Inputs() []Plan { return []Plan{j.Left, j.Right} }

// String returns the disassembled SSA form of the node.
func (j *Join) String() string {
	return fmt.Sprintf("Join [how=%s, left_on=(%s), right_on=(%s)]", j.How, exprList(j.LeftOn), exprList(j.RightOn))
}

func (*Join) isPlan() {}
