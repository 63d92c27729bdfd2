package tree

import (
	"fmt"
	"io"
)

const (
	connectorBranch = "├── "
	connectorLeaf   = "└── "
	paddingBranch   = "│   "
	paddingLeaf     = "    "
)

// Printer writes a tree to an io.Writer.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes the tree rooted at node, one line per node.
func (p *Printer) Print(node *Node) {
	fmt.Fprintln(p.w, node.headline())
	p.printChildren(node.Children, "")
}

func (p *Printer) printChildren(children []*Node, prefix string) {
	for i, child := range children {
		connector, padding := connectorBranch, paddingBranch
		if i == len(children)-1 {
			connector, padding = connectorLeaf, paddingLeaf
		}
		fmt.Fprintf(p.w, "%s%s%s\n", prefix, connector, child.headline())
		p.printChildren(child.Children, prefix+padding)
	}
}
