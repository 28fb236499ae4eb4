package confnode

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxFileSize bounds configuration files read from disk.
const maxFileSize = 4 * 1024 * 1024

// Keys with special meaning in the YAML form.
const (
	yamlTypeKey     = "type"
	yamlChildrenKey = "children"
	yamlRootKey     = "smearcepters"
)

// Load reads the top-level nodes of a YAML (.yaml, .yml) or XML (.xml)
// configuration file.
func Load(path string) ([]*Node, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat config file: %v", ErrConfig, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrConfig, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
	}

	source := filepath.Base(cleanPath)
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data, source)
	case ".xml":
		return ParseXML(data, source)
	default:
		return nil, fmt.Errorf("%w: config file must be .yaml, .yml or .xml, got %q", ErrConfig, ext)
	}
}

// ParseYAML builds nodes from YAML. The document is either a sequence of
// nodes or a mapping holding that sequence under "smearcepters".
//
// Within a node mapping, "type" names the node, "children" holds a
// sequence of child nodes, scalar values become attributes, scalar
// sequences become comma-joined attributes and nested mappings become child
// nodes typed by their key.
func ParseYAML(data []byte, source string) ([]*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to parse YAML: %v", ErrConfig, source, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := resolve(doc.Content[0])

	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == yamlRootKey {
				root = resolve(root.Content[i+1])
				break
			}
		}
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: %s:%d: expected a sequence of nodes", ErrConfig, source, root.Line)
	}
	return yamlSequence(root, source)
}

func yamlSequence(seq *yaml.Node, source string) ([]*Node, error) {
	out := make([]*Node, 0, len(seq.Content))
	for _, item := range seq.Content {
		n, err := yamlNode(resolve(item), "", source)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func yamlNode(m *yaml.Node, typ, source string) (*Node, error) {
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s:%d: expected a mapping", ErrConfig, source, m.Line)
	}
	n := &Node{Type: typ, Attrs: map[string]string{}, Source: fmt.Sprintf("%s:%d", source, m.Line)}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i].Value
		val := resolve(m.Content[i+1])
		switch {
		case key == yamlTypeKey:
			n.Type = val.Value
		case key == yamlChildrenKey:
			if val.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("%w: %s:%d: %q must be a sequence", ErrConfig, source, val.Line, key)
			}
			children, err := yamlSequence(val, source)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, children...)
		case val.Kind == yaml.ScalarNode:
			n.Attrs[key] = val.Value
		case val.Kind == yaml.SequenceNode:
			parts := make([]string, 0, len(val.Content))
			for _, it := range val.Content {
				it = resolve(it)
				if it.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("%w: %s:%d: %q must be a list of scalars", ErrConfig, source, it.Line, key)
				}
				parts = append(parts, it.Value)
			}
			n.Attrs[key] = strings.Join(parts, ",")
		case val.Kind == yaml.MappingNode:
			child, err := yamlNode(val, key, source)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	}
	if n.Type == "" {
		return nil, fmt.Errorf("%w: %s: node without %q", ErrConfig, n.Source, yamlTypeKey)
	}
	return n, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// ParseXML builds nodes from XML. The document element is a container; its
// child elements are the returned top-level nodes.
func ParseXML(data []byte, source string) ([]*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		stack []*Node
		root  *Node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: failed to parse XML: %v", ErrConfig, source, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			n := &Node{Type: t.Name.Local, Attrs: map[string]string{}, Source: fmt.Sprintf("%s:%d", source, line)}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if root == nil {
		return nil, nil
	}
	return root.Children, nil
}
