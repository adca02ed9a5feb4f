// Package hierarchy parses uiautomator window dumps and decides whether two
// dumps show the same UI structure.
package hierarchy

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Node is one element of a UI dump.
type Node struct {
	Tag        string
	ClassName  string // "class" attribute; empty when absent
	Attributes map[string]string
	Children   []*Node
	Scrollable bool
	NAF        bool   // Not accessible to automation
	DisplayID  string // "id" of a <display> element
}

// IsDisplay reports whether the node is a multi-display container.
func (n *Node) IsDisplay() bool {
	return n.Tag == "display"
}

// Parse parses a uiautomator dump (with or without --windows) and returns the
// document element.
func Parse(data []byte) (*Node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var parseElement func(start xml.StartElement) (*Node, error)
	parseElement = func(start xml.StartElement) (*Node, error) {
		node := &Node{Tag: start.Name.Local, Attributes: make(map[string]string, len(start.Attr))}
		for _, attr := range start.Attr {
			node.Attributes[attr.Name.Local] = attr.Value
			switch attr.Name.Local {
			case "class":
				node.ClassName = attr.Value
			case "scrollable":
				node.Scrollable = attr.Value == "true"
			case "NAF":
				node.NAF = attr.Value == "true"
			case "id":
				if node.IsDisplay() {
					node.DisplayID = attr.Value
				}
			}
		}

		for {
			token, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			switch t := token.(type) {
			case xml.StartElement:
				child, err := parseElement(t)
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, child)
			case xml.EndElement:
				return node, nil
			}
		}
	}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid window dump: no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("invalid window dump: %w", err)
		}
		if start, ok := token.(xml.StartElement); ok {
			root, err := parseElement(start)
			if err != nil {
				return nil, fmt.Errorf("invalid window dump: %w", err)
			}
			return root, nil
		}
	}
}
