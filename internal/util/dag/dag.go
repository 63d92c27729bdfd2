// Package dag provides a generic directed acyclic graph used for query
// plans. Nodes are identified by ID; edges point from parent (consumer) to
// child (producer).
package dag

import (
	"errors"
	"fmt"
	"slices"
)

// Node is the constraint for types that can be stored in a [Graph].
type Node interface {
	comparable
	ID() string
}

// Edge is a directed connection between a parent and a child node.
type Edge[NodeType Node] struct {
	Parent, Child NodeType
}

// Graph is a DAG with insertion-ordered nodes. The zero value is ready to
// use.
type Graph[NodeType Node] struct {
	nodes    []NodeType
	byID     map[string]NodeType
	children map[NodeType][]NodeType
	parents  map[NodeType][]NodeType
}

// Add inserts a node into the graph. Adding a node whose ID is already
// present is an error.
func (g *Graph[NodeType]) Add(n NodeType) error {
	if g.byID == nil {
		g.byID = make(map[string]NodeType)
		g.children = make(map[NodeType][]NodeType)
		g.parents = make(map[NodeType][]NodeType)
	}
	if _, ok := g.byID[n.ID()]; ok {
		return fmt.Errorf("node %s already exists", n.ID())
	}
	g.byID[n.ID()] = n
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge connects parent to child. Both nodes must already be part of the
// graph.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	if _, ok := g.byID[e.Parent.ID()]; !ok {
		return fmt.Errorf("parent node %s does not exist", e.Parent.ID())
	}
	if _, ok := g.byID[e.Child.ID()]; !ok {
		return fmt.Errorf("child node %s does not exist", e.Child.ID())
	}
	if e.Parent == e.Child {
		return fmt.Errorf("self-referencing edge on node %s", e.Parent.ID())
	}
	g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	return nil
}

// Children returns the nodes the given node points to, in edge insertion
// order.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType {
	return g.children[n]
}

// Parents returns the nodes pointing to the given node.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType {
	return g.parents[n]
}

// Nodes returns all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() []NodeType {
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph[NodeType]) Len() int {
	return len(g.nodes)
}

// Lookup returns the node with the given ID.
func (g *Graph[NodeType]) Lookup(id string) (NodeType, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Roots returns all nodes without parents.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Root returns the single root of the graph. It is an error for the graph to
// have zero or multiple roots.
func (g *Graph[NodeType]) Root() (NodeType, error) {
	var zero NodeType
	roots := g.Roots()
	if len(roots) != 1 {
		return zero, fmt.Errorf("graph must have exactly one root node, got %d", len(roots))
	}
	return roots[0], nil
}

// Leaves returns all nodes without children.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.nodes {
		if len(g.children[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Eliminate removes a node, reconnecting each of its parents to each of its
// children so that paths through the node survive its removal.
func (g *Graph[NodeType]) Eliminate(n NodeType) {
	parents := g.parents[n]
	children := g.children[n]

	for _, p := range parents {
		g.children[p] = replaceOrRemove(g.children[p], n, children)
	}
	for _, c := range children {
		g.parents[c] = replaceOrRemove(g.parents[c], n, parents)
	}

	delete(g.children, n)
	delete(g.parents, n)
	delete(g.byID, n.ID())
	g.nodes = slices.DeleteFunc(g.nodes, func(other NodeType) bool { return other == n })
}

// Replace swaps a node for another, preserving all edges. The replacement
// must not already be part of the graph.
func (g *Graph[NodeType]) Replace(old, repl NodeType) error {
	if _, ok := g.byID[repl.ID()]; ok {
		return fmt.Errorf("node %s already exists", repl.ID())
	}
	if _, ok := g.byID[old.ID()]; !ok {
		return fmt.Errorf("node %s does not exist", old.ID())
	}

	g.byID[repl.ID()] = repl
	delete(g.byID, old.ID())
	g.nodes[slices.Index(g.nodes, old)] = repl

	g.children[repl] = g.children[old]
	g.parents[repl] = g.parents[old]
	delete(g.children, old)
	delete(g.parents, old)

	for _, p := range g.parents[repl] {
		substitute(g.children[p], old, repl)
	}
	for _, c := range g.children[repl] {
		substitute(g.parents[c], old, repl)
	}
	return nil
}

// RedirectEdge repoints the parent's edge from one child to another. The new
// child must already be part of the graph.
func (g *Graph[NodeType]) RedirectEdge(parent, from, to NodeType) error {
	if _, ok := g.byID[to.ID()]; !ok {
		return fmt.Errorf("node %s does not exist", to.ID())
	}
	i := slices.Index(g.children[parent], from)
	if i < 0 {
		return fmt.Errorf("node %s is not a child of %s", from.ID(), parent.ID())
	}
	g.children[parent][i] = to
	g.parents[from] = slices.DeleteFunc(g.parents[from], func(n NodeType) bool { return n == parent })
	g.parents[to] = append(g.parents[to], parent)
	return nil
}

func replaceOrRemove[NodeType Node](list []NodeType, n NodeType, repl []NodeType) []NodeType {
	out := make([]NodeType, 0, len(list)+len(repl))
	for _, item := range list {
		if item == n {
			out = append(out, repl...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func substitute[NodeType Node](list []NodeType, old, repl NodeType) {
	for i, item := range list {
		if item == old {
			list[i] = repl
		}
	}
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Contains(n NodeType) bool {
	_, ok := s[n]
	return ok
}

func (s nodeSet[NodeType]) Add(n NodeType) {
	s[n] = struct{}{}
}

// WalkOrder defines the order in which a node and its children are visited.
type WalkOrder uint8

const (
	// PreOrderWalk processes the current node before visiting any of its
	// children.
	PreOrderWalk WalkOrder = iota

	// PostOrderWalk processes the current node after visiting all of its
	// children.
	PostOrderWalk
)

// WalkFunc is invoked for each node during a walk. Walking stops when
// WalkFunc returns a non-nil error.
type WalkFunc[NodeType Node] func(n NodeType) error

// Walk performs a depth-first traversal of outgoing edges starting at n,
// invoking fn for each reachable node exactly once.
func (g *Graph[NodeType]) Walk(n NodeType, fn WalkFunc[NodeType], order WalkOrder) error {
	visited := make(nodeSet[NodeType])
	switch order {
	case PreOrderWalk:
		return g.preOrderWalk(n, fn, visited)
	case PostOrderWalk:
		return g.postOrderWalk(n, fn, visited)
	default:
		return errors.New("unsupported walk order. must be one of PreOrderWalk and PostOrderWalk")
	}
}

func (g *Graph[NodeType]) preOrderWalk(n NodeType, fn WalkFunc[NodeType], visited nodeSet[NodeType]) error {
	if visited.Contains(n) {
		return nil
	}
	visited.Add(n)

	if err := fn(n); err != nil {
		return err
	}

	for _, child := range g.children[n] {
		if err := g.preOrderWalk(child, fn, visited); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph[NodeType]) postOrderWalk(n NodeType, fn WalkFunc[NodeType], visited nodeSet[NodeType]) error {
	if visited.Contains(n) {
		return nil
	}
	visited.Add(n)

	for _, child := range g.children[n] {
		if err := g.postOrderWalk(child, fn, visited); err != nil {
			return err
		}
	}

	return fn(n)
}
