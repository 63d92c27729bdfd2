// Package tree renders hierarchical plan structures as human-readable text
// trees with box-drawing connectors.
package tree

import (
	"fmt"
	"strings"
)

// Property is a key-value pair attached to a node. A multi-value property is
// rendered as `key=(v1, v2, ...)`, a single-value property as `key=value`.
type Property struct {
	// Key is the name of the property.
	Key string
	// Values holds the value(s) of the property.
	Values []any
	// IsMultiValue marks whether the property is a multi-value property.
	IsMultiValue bool
}

// NewProperty creates a property with the given key, multi-value flag, and
// values.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{Key: key, Values: values, IsMultiValue: multi}
}

func (p Property) String() string {
	if p.IsMultiValue {
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		return fmt.Sprintf("%s=(%s)", p.Key, strings.Join(parts, ", "))
	}
	if len(p.Values) == 0 {
		return p.Key
	}
	return fmt.Sprintf("%s=%v", p.Key, p.Values[0])
}

// Node is a node in the printable tree. Each node has a display name, an
// optional identifier, properties, and children.
type Node struct {
	// Name is the display name of the node.
	Name string
	// ID is an optional identifier, rendered as #ID after the name.
	ID string
	// Properties contains the key-value properties of the node.
	Properties []Property
	// Children are the child nodes.
	Children []*Node
}

// NewNode creates a node with the given name, identifier, and properties.
func NewNode(name, id string, properties ...Property) *Node {
	return &Node{Name: name, ID: id, Properties: properties}
}

// AddChild creates a child node and attaches it.
func (n *Node) AddChild(name, id string, properties []Property) *Node {
	child := NewNode(name, id, properties...)
	n.Children = append(n.Children, child)
	return child
}

func (n *Node) headline() string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	if n.ID != "" {
		sb.WriteString(" #")
		sb.WriteString(n.ID)
	}
	for _, p := range n.Properties {
		sb.WriteString(" ")
		sb.WriteString(p.String())
	}
	return sb.String()
}
