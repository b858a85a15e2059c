// Package schema infers JSON-Schema style descriptions of tool inputs from Go struct types.
package schema

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSON schema type names
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// FormatDateTime is the format attached to timestamp fields
const FormatDateTime = "date-time"

// Node is a JSON-Schema shaped description of a value.
// Properties keep declaration order so listings are stable.
// Nodes returned by Infer and For are shared and must not be mutated.
type Node struct {
	Type        string                               `json:"type"`
	Properties  *orderedmap.OrderedMap[string, *Node] `json:"properties,omitempty"`
	Format      string                               `json:"format,omitempty"`
	Description string                               `json:"description,omitempty"`
}

// Property returns the named child of an object node
func (n *Node) Property(name string) (*Node, bool) {
	if n == nil || n.Properties == nil {
		return nil, false
	}
	return n.Properties.Get(name)
}

// Set adds or replaces a child property and returns n for chaining.
// Only valid on nodes being assembled by hand.
func (n *Node) Set(name string, child *Node) *Node {
	if n.Properties == nil {
		n.Properties = orderedmap.New[string, *Node]()
	}
	n.Properties.Set(name, child)
	return n
}

// PropertyNames lists child property names in order
func (n *Node) PropertyNames() []string {
	if n == nil || n.Properties == nil {
		return nil
	}
	names := make([]string, 0, n.Properties.Len())
	for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (n *Node) String() string {
	js, _ := json.Marshal(n)
	return string(js)
}

// Empty returns the schema used for tools that declare no input:
// {"type":"object","properties":{}}
func Empty() *Node {
	return NewObject()
}

// NewObject creates an object node with an empty property set
func NewObject() *Node {
	return &Node{
		Type:       TypeObject,
		Properties: orderedmap.New[string, *Node](),
	}
}

// Object creates an opaque object node without properties
func Object(description string) *Node {
	return &Node{Type: TypeObject, Description: description}
}

// String creates a string node
func String(description string) *Node {
	return &Node{Type: TypeString, Description: description}
}

// DateTime creates a string node with date-time format
func DateTime(description string) *Node {
	return &Node{Type: TypeString, Format: FormatDateTime, Description: description}
}

// Integer creates an integer node
func Integer(description string) *Node {
	return &Node{Type: TypeInteger, Description: description}
}

// Number creates a number node
func Number(description string) *Node {
	return &Node{Type: TypeNumber, Description: description}
}

// Boolean creates a boolean node
func Boolean(description string) *Node {
	return &Node{Type: TypeBoolean, Description: description}
}

// Array creates an array node
func Array(description string) *Node {
	return &Node{Type: TypeArray, Description: description}
}
