// Package confnode provides the hierarchical configuration tree that
// smearcepter chains are described with: typed nodes carrying string
// attributes and ordered child nodes.
//
// Trees are loaded from YAML or XML. Getters convert attributes on demand
// and wrap every failure in ErrConfig, since a bad configuration is fatal at
// setup time.
package confnode

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/smearceptance/internal/units"
)

// ErrConfig marks configuration errors.
var ErrConfig = errors.New("configuration error")

// Node is one element of a configuration tree.
type Node struct {
	Type     string
	Attrs    map[string]string
	Children []*Node
	// Source locates the node for diagnostics, e.g. "chain.yaml:12".
	Source string
}

// New builds a node with the given type and attributes, mainly for tests
// and programmatic chains.
func New(typ string, attrs map[string]string, children ...*Node) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Node{Type: typ, Attrs: attrs, Children: children}
}

// Name returns the instance name, which may be empty.
func (n *Node) Name() string {
	return n.Attrs["Name"]
}

// Errorf builds a configuration error located at this node.
func (n *Node) Errorf(format string, args ...interface{}) error {
	loc := n.Type
	if name := n.Name(); name != "" {
		loc += " " + strconv.Quote(name)
	}
	if n.Source != "" {
		loc += " (" + n.Source + ")"
	}
	return fmt.Errorf("%w: %s: %s", ErrConfig, loc, fmt.Sprintf(format, args...))
}

// Has reports whether the attribute is present.
func (n *Node) Has(key string) bool {
	_, ok := n.Attrs[key]
	return ok
}

// Keys returns the attribute names in sorted order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a required attribute.
func (n *Node) String(key string) (string, error) {
	v, ok := n.Attrs[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", n.Errorf("missing required attribute %q", key)
	}
	return strings.TrimSpace(v), nil
}

// StringOr returns an optional attribute.
func (n *Node) StringOr(key, def string) string {
	v, ok := n.Attrs[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// Float returns a required float attribute.
func (n *Node) Float(key string) (float64, error) {
	s, err := n.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, n.Errorf("attribute %q: invalid number %q", key, s)
	}
	return v, nil
}

// FloatOr returns an optional float attribute.
func (n *Node) FloatOr(key string, def float64) (float64, error) {
	if !n.Has(key) {
		return def, nil
	}
	return n.Float(key)
}

// Int returns a required integer attribute.
func (n *Node) Int(key string) (int, error) {
	s, err := n.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, n.Errorf("attribute %q: invalid integer %q", key, s)
	}
	return v, nil
}

// IntOr returns an optional integer attribute.
func (n *Node) IntOr(key string, def int) (int, error) {
	if !n.Has(key) {
		return def, nil
	}
	return n.Int(key)
}

// Uint64Or returns an optional unsigned attribute, used for seeds.
func (n *Node) Uint64Or(key string, def uint64) (uint64, error) {
	if !n.Has(key) {
		return def, nil
	}
	s, err := n.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, n.Errorf("attribute %q: invalid unsigned integer %q", key, s)
	}
	return v, nil
}

// BoolOr returns an optional boolean attribute.
func (n *Node) BoolOr(key string, def bool) (bool, error) {
	if !n.Has(key) {
		return def, nil
	}
	s, err := n.String(key)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, n.Errorf("attribute %q: invalid boolean %q", key, s)
	}
	return v, nil
}

// PDGList parses a required comma-separated list of species codes.
func (n *Node) PDGList(key string) ([]int, error) {
	s, err := n.String(key)
	if err != nil {
		return nil, err
	}
	out, err := ParseIntList(s)
	if err != nil {
		return nil, n.Errorf("attribute %q: %v", key, err)
	}
	if len(out) == 0 {
		return nil, n.Errorf("attribute %q: empty PDG list", key)
	}
	return out, nil
}

// FloatList parses a required comma-separated list of numbers.
func (n *Node) FloatList(key string) ([]float64, error) {
	s, err := n.String(key)
	if err != nil {
		return nil, err
	}
	out, err := ParseFloatList(s)
	if err != nil {
		return nil, n.Errorf("attribute %q: %v", key, err)
	}
	return out, nil
}

// Energy looks up an energy-valued attribute that may carry a unit suffix
// (base, base_MeV, base_GeV, ...) and returns it in MeV. ok is false when no
// variant is present; more than one variant is an error.
func (n *Node) Energy(base string) (v float64, ok bool, err error) {
	found := ""
	for _, key := range n.Keys() {
		b, unit := units.SplitSuffix(key)
		if b != base || (unit == "" && key != base) {
			continue
		}
		if found != "" {
			return 0, false, n.Errorf("attribute %q given twice (%q and %q)", base, found, key)
		}
		found = key
	}
	if found == "" {
		return 0, false, nil
	}
	raw, err := n.Float(found)
	if err != nil {
		return 0, false, err
	}
	_, unit := units.SplitSuffix(found)
	if unit == "" {
		unit = units.MeV
	}
	return units.ToMeV(raw, unit), true, nil
}

// ChildrenOf returns the children with the given type, in order.
func (n *Node) ChildrenOf(typ string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first child of the given type.
func (n *Node) Child(typ string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Type == typ {
			return c, true
		}
	}
	return nil, false
}

// ParseIntList parses a comma-separated list of integers. Empty items are
// skipped.
func ParseIntList(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseFloatList parses a comma-separated list of floats. Empty items are
// skipped.
func ParseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
