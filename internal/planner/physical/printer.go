package physical

import (
	"fmt"
	"strings"

	"github.com/AmirulAndalib/polars/internal/planner/tree"
)

// BuildTree converts a physical plan node and its children into a tree
// structure that can be used for visualization and debugging purposes.
// Shared subplans appear once under every consumer.
func BuildTree(p *Plan, n Node) *tree.Node {
	return toTree(p, n)
}

func toTree(p *Plan, n Node) *tree.Node {
	root := toTreeNode(n)
	for _, child := range p.Children(n) {
		if ch := toTree(p, child); ch != nil {
			root.Children = append(root.Children, ch)
		}
	}
	return root
}

func toTreeNode(n Node) *tree.Node {
	treeNode := tree.NewNode(n.Type().String(), n.ID())
	switch node := n.(type) {
	case *TableScan:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("source", false, node.Source.Name()),
		}
		if node.Projections != nil {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("projections", true, toAnySlice(node.Projections)...))
		}
		if node.Offset != 0 || node.Limit >= 0 {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("offset", false, node.Offset),
				tree.NewProperty("limit", false, node.Limit))
		}
	case *Projection:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("mode", false, node.Mode),
			tree.NewProperty("columns", true, toAnySlice(node.Columns)...),
		}
	case *Filter:
		for i := range node.Predicates {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty(fmt.Sprintf("predicate[%d]", i), false, node.Predicates[i].String()))
		}
	case *HashAggregate:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("keys", true, toAnySlice(node.Keys)...),
			tree.NewProperty("aggs", true, toAnySlice(node.Aggs)...),
		}
		if node.MaintainOrder {
			treeNode.Properties = append(treeNode.Properties,
				tree.NewProperty("maintain_order", false, true))
		}
	case *HashJoin:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("how", false, node.How),
			tree.NewProperty("left_on", true, toAnySlice(node.LeftKeys)...),
			tree.NewProperty("right_on", true, toAnySlice(node.RightKeys)...),
		}
	case *Sort:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("by", true, toAnySlice(node.By)...),
			tree.NewProperty("descending", true, toAnySlice(node.Descending)...),
			tree.NewProperty("nulls_last", false, node.NullsLast),
		}
	case *Limit:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("offset", false, node.Skip),
			tree.NewProperty("limit", false, node.Fetch),
		}
	case *Cache:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("id", false, node.CacheID),
			tree.NewProperty("key", false, fmt.Sprintf("%016x", node.Key)),
		}
	}
	return treeNode
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree converts a physical [Plan] into a human-readable tree
// representation. It processes each root node in the plan graph, and returns
// the combined string output of all trees joined by newlines.
func PrintAsTree(p *Plan) string {
	results := make([]string, 0, len(p.Roots()))

	for _, root := range p.Roots() {
		sb := &strings.Builder{}
		printer := tree.NewPrinter(sb)
		node := BuildTree(p, root)
		printer.Print(node)
		results = append(results, sb.String())
	}

	return strings.Join(results, "\n")
}
