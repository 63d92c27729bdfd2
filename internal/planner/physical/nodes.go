package physical

import (
	"fmt"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/source"
	"github.com/AmirulAndalib/polars/internal/types"
)

// NodeType represents the type of a node in the physical plan.
type NodeType uint32

const (
	_ NodeType = iota // zero-value is an invalid type

	NodeTypeTableScan
	NodeTypeProjection
	NodeTypeFilter
	NodeTypeHashAggregate
	NodeTypeHashJoin
	NodeTypeSort
	NodeTypeLimit
	NodeTypeUnion
	NodeTypeReverse
	NodeTypeCache
)

// String returns the string representation of the [NodeType].
func (t NodeType) String() string {
	switch t {
	case NodeTypeTableScan:
		return "TableScan"
	case NodeTypeProjection:
		return "Projection"
	case NodeTypeFilter:
		return "Filter"
	case NodeTypeHashAggregate:
		return "HashAggregate"
	case NodeTypeHashJoin:
		return "HashJoin"
	case NodeTypeSort:
		return "Sort"
	case NodeTypeLimit:
		return "Limit"
	case NodeTypeUnion:
		return "Union"
	case NodeTypeReverse:
		return "Reverse"
	case NodeTypeCache:
		return "Cache"
	default:
		panic(fmt.Sprintf("unknown node type %d", t))
	}
}

// Node is the common interface of all nodes in a physical plan. Nodes form a
// directed acyclic graph held by [Plan]; shared subplans appear as nodes with
// multiple parents.
type Node interface {
	// ID returns a unique identifier of the node in the plan.
	ID() string
	// Type returns the type of the node.
	Type() NodeType
	// Schema returns the resolved output schema of the node.
	Schema() types.Schema
	// Accept dispatches to the visitor method for the concrete node type.
	Accept(Visitor) error

	setID(string)
	isNode()
}

// TableScan reads rows from a table source. The optimizer narrows
// Projections, Offset and Limit so the source can skip work; a nil
// Projections slice reads every column, and pushdown always keeps at least
// one column so the scan can report row counts.
type TableScan struct {
	id     string
	schema types.Schema

	Source      source.Source
	Projections []string
	Offset      int64
	Limit       int64 // -1 reads everything from Offset on
}

func (*TableScan) isNode() {}

func (n *TableScan) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *TableScan) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*TableScan) Type() NodeType { return NodeTypeTableScan }

// Schema implements the [Node] interface.
func (n *TableScan) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *TableScan) Accept(v Visitor) error { return v.VisitTableScan(n) }

// ProjectionMode controls whether a projection replaces the input columns or
// extends them.
type ProjectionMode uint8

const (
	// ProjectSelect replaces the input columns with the expression list.
	ProjectSelect ProjectionMode = iota
	// ProjectExtend keeps the input columns and adds or replaces the
	// evaluated expression list.
	ProjectExtend
)

// String returns the string representation of the [ProjectionMode].
func (m ProjectionMode) String() string {
	if m == ProjectExtend {
		return "extend"
	}
	return "select"
}

// Projection evaluates a list of named expressions against each batch.
type Projection struct {
	id     string
	schema types.Schema

	Columns []NamedExpression
	Mode    ProjectionMode
}

func (*Projection) isNode() {}

func (n *Projection) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Projection) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Projection) Type() NodeType { return NodeTypeProjection }

// Schema implements the [Node] interface.
func (n *Projection) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Projection) Accept(v Visitor) error { return v.VisitProjection(n) }

// Filter keeps the rows for which every predicate evaluates to true. Rows
// with a null predicate value are dropped.
type Filter struct {
	id     string
	schema types.Schema

	Predicates []Expression
}

func (*Filter) isNode() {}

func (n *Filter) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Filter) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Filter) Type() NodeType { return NodeTypeFilter }

// Schema implements the [Node] interface.
func (n *Filter) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Filter) Accept(v Visitor) error { return v.VisitFilter(n) }

// HashAggregate groups rows by the key expressions using a hash table and
// evaluates one aggregation per output column within each group. Without
// keys the whole input forms a single group.
type HashAggregate struct {
	id     string
	schema types.Schema

	Keys []NamedExpression
	Aggs []NamedExpression

	// MaintainOrder emits groups in order of first appearance instead of
	// hash order.
	MaintainOrder bool
}

func (*HashAggregate) isNode() {}

func (n *HashAggregate) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *HashAggregate) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*HashAggregate) Type() NodeType { return NodeTypeHashAggregate }

// Schema implements the [Node] interface.
func (n *HashAggregate) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *HashAggregate) Accept(v Visitor) error { return v.VisitHashAggregate(n) }

// HashJoin combines its left and right inputs on key equality by building a
// hash table over the right side and probing it with the left. Right-side
// key columns named by a plain column reference are dropped from the output;
// remaining right columns colliding with left names carry the suffix.
type HashJoin struct {
	id     string
	schema types.Schema

	LeftKeys  []Expression
	RightKeys []Expression
	How       logical.JoinType
	Suffix    string

	// RightColumns maps the kept right-side columns to their output names
	// after suffixing, in right input schema order.
	RightColumns []JoinColumn
}

// JoinColumn names one right-side column carried into the join output.
type JoinColumn struct {
	Name    string // name in the right input schema
	OutName string // output name, suffixed on collision
}

func (*HashJoin) isNode() {}

func (n *HashJoin) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *HashJoin) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*HashJoin) Type() NodeType { return NodeTypeHashJoin }

// Schema implements the [Node] interface.
func (n *HashJoin) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *HashJoin) Accept(v Visitor) error { return v.VisitHashJoin(n) }

// Sort orders rows by the given expressions.
type Sort struct {
	id     string
	schema types.Schema

	By         []Expression
	Descending []bool
	NullsLast  bool
}

func (*Sort) isNode() {}

func (n *Sort) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Sort) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Sort) Type() NodeType { return NodeTypeSort }

// Schema implements the [Node] interface.
func (n *Sort) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Sort) Accept(v Visitor) error { return v.VisitSort(n) }

// Limit skips the first Skip rows and fetches at most Fetch rows after that.
type Limit struct {
	id     string
	schema types.Schema

	Skip  int64
	Fetch int64 // -1 fetches everything from Skip on
}

func (*Limit) isNode() {}

func (n *Limit) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Limit) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Limit) Type() NodeType { return NodeTypeLimit }

// Schema implements the [Node] interface.
func (n *Limit) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Limit) Accept(v Visitor) error { return v.VisitLimit(n) }

// Union concatenates its inputs vertically in input order.
type Union struct {
	id     string
	schema types.Schema
}

func (*Union) isNode() {}

func (n *Union) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Union) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Union) Type() NodeType { return NodeTypeUnion }

// Schema implements the [Node] interface.
func (n *Union) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Union) Accept(v Visitor) error { return v.VisitUnion(n) }

// Reverse flips the row order of its input.
type Reverse struct {
	id     string
	schema types.Schema
}

func (*Reverse) isNode() {}

func (n *Reverse) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Reverse) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Reverse) Type() NodeType { return NodeTypeReverse }

// Schema implements the [Node] interface.
func (n *Reverse) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Reverse) Accept(v Visitor) error { return v.VisitReverse(n) }

// Cache materializes its input at most once per collect, no matter how many
// parents read from it. Key is the structural fingerprint of the subplan
// below; nodes inserted by subplan elimination share a key exactly when
// their subplans are structurally identical.
type Cache struct {
	id     string
	schema types.Schema

	Key     uint64
	CacheID string
}

func (*Cache) isNode() {}

func (n *Cache) setID(id string) { n.id = id }

// ID implements the [Node] interface.
func (n *Cache) ID() string {
	if n.id == "" {
		return fmt.Sprintf("%p", n)
	}
	return n.id
}

// Type implements the [Node] interface.
func (*Cache) Type() NodeType { return NodeTypeCache }

// Schema implements the [Node] interface.
func (n *Cache) Schema() types.Schema { return n.schema }

// Accept implements the [Node] interface.
func (n *Cache) Accept(v Visitor) error { return v.VisitCache(n) }
