package physical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/util/dag"
)

// Plan is an executable physical plan: a directed acyclic graph of [Node]s.
// Edges point from a node to the nodes producing its input, so leaves are
// table scans and the single root produces the query result. A node with
// multiple parents is a shared subplan.
type Plan struct {
	graph dag.Graph[Node]
	seq   map[NodeType]int
}

// addNode registers the node in the plan graph and assigns it a stable,
// human-readable identifier such as "filter_2".
func (p *Plan) addNode(n Node) Node {
	if p.seq == nil {
		p.seq = make(map[NodeType]int)
	}
	p.seq[n.Type()]++
	n.setID(fmt.Sprintf("%s_%d", strings.ToLower(n.Type().String()), p.seq[n.Type()]))
	// The per-type counter makes the identifier unique within the plan.
	_ = p.graph.Add(n)
	return n
}

// addEdge connects a parent node to the child node producing its input.
func (p *Plan) addEdge(e dag.Edge[Node]) error {
	return p.graph.AddEdge(e)
}

// eliminateNode removes a node from the plan, reconnecting its parents to
// its children.
func (p *Plan) eliminateNode(n Node) {
	p.graph.Eliminate(n)
}

// replaceNode substitutes old with repl, rewiring all edges.
func (p *Plan) replaceNode(old, repl Node) error {
	return p.graph.Replace(old, repl)
}

// redirectEdge repoints the parent's edge from one child to another.
func (p *Plan) redirectEdge(parent, from, to Node) error {
	return p.graph.RedirectEdge(parent, from, to)
}

// prune drops every node not reachable from the root. Rewrites that redirect
// edges away from a subplan leave it orphaned; pruning removes the leftovers.
func (p *Plan) prune() {
	root, err := p.graph.Root()
	if err != nil {
		return
	}
	reachable := make(map[Node]struct{}, p.graph.Len())
	_ = p.graph.Walk(root, func(n Node) error {
		reachable[n] = struct{}{}
		return nil
	}, dag.PreOrderWalk)

	var rebuilt dag.Graph[Node]
	for _, n := range p.graph.Nodes() {
		if _, ok := reachable[n]; ok {
			_ = rebuilt.Add(n)
		}
	}
	for _, n := range rebuilt.Nodes() {
		for _, child := range p.graph.Children(n) {
			_ = rebuilt.AddEdge(dag.Edge[Node]{Parent: n, Child: child})
		}
	}
	p.graph = rebuilt
}

// Children returns the input nodes of n in edge insertion order.
func (p *Plan) Children(n Node) []Node {
	return p.graph.Children(n)
}

// Parents returns the nodes consuming the output of n.
func (p *Plan) Parents(n Node) []Node {
	return p.graph.Parents(n)
}

// Nodes returns all nodes of the plan in insertion order.
func (p *Plan) Nodes() []Node {
	return p.graph.Nodes()
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int {
	return p.graph.Len()
}

// Roots returns all nodes without parents.
func (p *Plan) Roots() []Node {
	return p.graph.Roots()
}

// Root returns the root node of the plan, of which the plan must have
// exactly one.
func (p *Plan) Root() (Node, error) {
	return p.graph.Root()
}

// Leaves returns all nodes without children.
func (p *Plan) Leaves() []Node {
	return p.graph.Leaves()
}

// Walk traverses the plan graph from n in the given order, visiting every
// reachable node exactly once.
func (p *Plan) Walk(n Node, fn dag.WalkFunc[Node], order dag.WalkOrder) error {
	return p.graph.Walk(n, fn, order)
}

// DeepCopy clones the plan graph so that optimizer rewrites on the copy
// leave the original intact. Node structs are shallow-copied; expressions
// are immutable and safely shared between plans.
func (p *Plan) DeepCopy() *Plan {
	clone := &Plan{seq: make(map[NodeType]int)}
	for k, v := range p.seq {
		clone.seq[k] = v
	}

	mapping := make(map[Node]Node, p.graph.Len())
	for _, n := range p.graph.Nodes() {
		copied := copyNode(n)
		mapping[n] = copied
		_ = clone.graph.Add(copied)
	}
	for _, n := range p.graph.Nodes() {
		for _, child := range p.graph.Children(n) {
			_ = clone.graph.AddEdge(dag.Edge[Node]{Parent: mapping[n], Child: mapping[child]})
		}
	}
	return clone
}

func copyNode(n Node) Node {
	switch n := n.(type) {
	case *TableScan:
		clone := *n
		clone.Projections = append([]string(nil), n.Projections...)
		return &clone
	case *Projection:
		clone := *n
		clone.Columns = append([]NamedExpression(nil), n.Columns...)
		return &clone
	case *Filter:
		clone := *n
		clone.Predicates = append([]Expression(nil), n.Predicates...)
		return &clone
	case *HashAggregate:
		clone := *n
		clone.Keys = append([]NamedExpression(nil), n.Keys...)
		clone.Aggs = append([]NamedExpression(nil), n.Aggs...)
		return &clone
	case *HashJoin:
		clone := *n
		clone.LeftKeys = append([]Expression(nil), n.LeftKeys...)
		clone.RightKeys = append([]Expression(nil), n.RightKeys...)
		clone.RightColumns = append([]JoinColumn(nil), n.RightColumns...)
		return &clone
	case *Sort:
		clone := *n
		clone.By = append([]Expression(nil), n.By...)
		clone.Descending = append([]bool(nil), n.Descending...)
		return &clone
	case *Limit:
		clone := *n
		return &clone
	case *Union:
		clone := *n
		return &clone
	case *Reverse:
		clone := *n
		return &clone
	case *Cache:
		clone := *n
		return &clone
	default:
		panic(fmt.Sprintf("unknown node type %T", n))
	}
}
