package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidTree is returned when a payload does not decode to a named tree.
var ErrInvalidTree = errors.New("protocol: invalid tree")

// Property is a named value attached to a Tree node. Values are one of
// string, bool, int64, float64 or []byte.
type Property struct {
	Name  string
	Value any
}

// Tree is the self-describing payload of a generic event: a typed node with
// ordered properties and child nodes.
type Tree struct {
	Type     string
	props    []Property
	Children []*Tree
}

// NewTree returns an empty node of the given type.
func NewTree(typ string) *Tree {
	return &Tree{Type: typ}
}

// Valid reports whether the node has a type.
func (t *Tree) Valid() bool {
	return t != nil && t.Type != ""
}

// Set assigns a property, replacing an existing one with the same name.
// Integer kinds are stored as int64 and float32 as float64.
func (t *Tree) Set(name string, value any) *Tree {
	v := normalize(value)
	for i := range t.props {
		if t.props[i].Name == name {
			t.props[i].Value = v
			return t
		}
	}
	t.props = append(t.props, Property{Name: name, Value: v})
	return t
}

// Add appends a child node and returns the parent.
func (t *Tree) Add(child *Tree) *Tree {
	t.Children = append(t.Children, child)
	return t
}

// Properties returns the properties in insertion order.
func (t *Tree) Properties() []Property {
	out := make([]Property, len(t.props))
	copy(out, t.props)
	return out
}

// Get returns the raw value of a property.
func (t *Tree) Get(name string) (any, bool) {
	if t == nil {
		return nil, false
	}
	for _, p := range t.props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Has reports whether the property exists.
func (t *Tree) Has(name string) bool {
	_, ok := t.Get(name)
	return ok
}

// Int returns a numeric property as int64, or def when missing or not numeric.
func (t *Tree) Int(name string, def int64) int64 {
	v, ok := t.Get(name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return def
}

// Float returns a numeric property as float64, or def when missing or not numeric.
func (t *Tree) Float(name string, def float64) float64 {
	v, ok := t.Get(name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// String returns a property rendered as a string, or def when missing.
func (t *Tree) String(name string, def string) string {
	v, ok := t.Get(name)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return def
}

// Bool returns a boolean property, or def when missing.
func (t *Tree) Bool(name string, def bool) bool {
	v, ok := t.Get(name)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	}
	return def
}

type wireProp struct {
	Name  string `msgpack:"n"`
	Value any    `msgpack:"v"`
}

type wireNode struct {
	Type     string     `msgpack:"t"`
	Props    []wireProp `msgpack:"p,omitempty"`
	Children []wireNode `msgpack:"c,omitempty"`
}

func (t *Tree) toWire() wireNode {
	n := wireNode{Type: t.Type}
	for _, p := range t.props {
		n.Props = append(n.Props, wireProp{Name: p.Name, Value: p.Value})
	}
	for _, c := range t.Children {
		if c == nil {
			continue
		}
		n.Children = append(n.Children, c.toWire())
	}
	return n
}

func fromWire(n wireNode) *Tree {
	t := NewTree(n.Type)
	for _, p := range n.Props {
		t.Set(p.Name, p.Value)
	}
	for _, c := range n.Children {
		t.Add(fromWire(c))
	}
	return t
}

// MarshalBinary serializes the tree with msgpack.
func (t *Tree) MarshalBinary() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidTree
	}
	return msgpack.Marshal(t.toWire())
}

// UnmarshalTree decodes a tree produced by MarshalBinary.
func UnmarshalTree(data []byte) (*Tree, error) {
	var n wireNode
	if err := msgpack.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}
	if n.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidTree)
	}
	return fromWire(n), nil
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return uintToValue(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return uintToValue(n)
	case float32:
		return float64(n)
	case float64, string, bool, []byte:
		return n
	case nil:
		return nil
	default:
		return fmt.Sprint(n)
	}
}

func uintToValue(n uint64) any {
	if n > math.MaxInt64 {
		return float64(n)
	}
	return int64(n)
}
