package search

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/eocatalog/config"
	"github.com/araddon/dateparse"
)

// ingestConversionRegex recognizes extraction paths of the form
// {path#converter}: the value found at path goes through the converter
// before entering the product properties.
var ingestConversionRegex = regexp.MustCompile(`^\{([^#{}]*)#([a-zA-Z_]\w*)\}$`)

// metadataPath splits a mapping extraction path into its optional ingest
// converter and the raw path.
func metadataPath(m config.Mapping) (converter, path string) {
	if groups := ingestConversionRegex.FindStringSubmatch(m.Path); groups != nil {
		return groups[2], groups[1]
	}
	return "", m.Path
}

// JSONValue reads a dotted path (optionally prefixed with "$.") from a json
// object tree. Missing keys return ok=false, never an error.
func JSONValue(item map[string]interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(path, "$.")
	var value interface{} = item
	for _, segment := range strings.Split(path, ".") {
		node, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if value, ok = node[segment]; !ok {
			return nil, false
		}
	}
	return value, true
}

// PropertiesFromJSON extracts the canonical metadata of a raw json item
// following the provider extraction map. Keys the item does not carry are
// omitted.
func PropertiesFromJSON(item map[string]interface{}, mapping map[string]config.Mapping) (map[string]interface{}, error) {
	properties := map[string]interface{}{}
	for key, m := range mapping {
		converter, path := metadataPath(m)
		value, ok := JSONValue(item, path)
		if !ok || value == nil {
			continue
		}
		if converter != "" {
			converted, err := applyIngestConverter(converter, value)
			if err != nil {
				return nil, fmt.Errorf("PropertiesFromJSON[%s]: %w", key, err)
			}
			value = converted
		}
		properties[key] = value
	}
	return properties, nil
}

func applyIngestConverter(converter string, value interface{}) (interface{}, error) {
	switch converter {
	case "to_iso_utc_datetime_from_milliseconds":
		var ms int64
		switch v := value.(type) {
		case float64:
			ms = int64(v)
		case int64:
			ms = v
		case string:
			var err error
			if ms, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("to_iso_utc_datetime_from_milliseconds: %w", err)
			}
		default:
			return nil, fmt.Errorf("to_iso_utc_datetime_from_milliseconds: unsupported value %T", value)
		}
		return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05Z"), nil
	case "to_iso_utc_datetime":
		t, err := dateparse.ParseAny(fmt.Sprintf("%v", value))
		if err != nil {
			return nil, fmt.Errorf("to_iso_utc_datetime: %w", err)
		}
		return t.UTC().Format("2006-01-02T15:04:05Z"), nil
	}
	return nil, fmt.Errorf("unknown ingest converter: %s", converter)
}

// XMLNode is a generic parsed XML element, the raw-item accessor for providers
// answering XML entries.
type XMLNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*XMLNode
	Text     string
}

// ParseXML builds the node tree of an XML document
func ParseXML(raw []byte) (*XMLNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	var root *XMLNode
	var stack []*XMLNode
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseXML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &XMLNode{Name: t.Name, Attrs: t.Attr}
			if len(stack) == 0 {
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("ParseXML: empty document")
	}
	return root, nil
}

// Marshal serializes the node back to XML bytes. Namespaces are written as a
// default xmlns per element so the output can be parsed again with the same
// namespace table.
func (n *XMLNode) Marshal() []byte {
	var buf bytes.Buffer
	n.marshal(&buf)
	return buf.Bytes()
}

func (n *XMLNode) marshal(buf *bytes.Buffer) {
	buf.WriteString("<" + n.Name.Local)
	if n.Name.Space != "" {
		buf.WriteString(` xmlns="` + n.Name.Space + `"`)
	}
	for _, a := range n.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		buf.WriteString(" " + a.Name.Local + `="` + escapeXML(a.Value) + `"`)
	}
	buf.WriteString(">")
	buf.WriteString(escapeXML(strings.TrimSpace(n.Text)))
	for _, child := range n.Children {
		child.marshal(buf)
	}
	buf.WriteString("</" + n.Name.Local + ">")
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Attr returns the value of an attribute ("" if absent)
func (n *XMLNode) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Find returns the descendants reachable through the given path, evaluated
// with the provider namespace map. A path is a /-separated list of
// [prefix:]local segments, each optionally constrained by one attribute
// predicate [@name='value'].
func (n *XMLNode) Find(path string, namespaces map[string]string) []*XMLNode {
	nodes := []*XMLNode{n}
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		name, predicate := splitPredicate(segment)
		space := ""
		if prefix, local, found := strings.Cut(name, ":"); found {
			space, name = namespaces[prefix], local
		}
		var next []*XMLNode
		for _, node := range nodes {
			for _, child := range node.Children {
				if child.Name.Local != name {
					continue
				}
				if space != "" && child.Name.Space != space {
					continue
				}
				if predicate != nil && child.Attr(predicate.name) != predicate.value {
					continue
				}
				next = append(next, child)
			}
		}
		nodes = next
	}
	return nodes
}

type attrPredicate struct{ name, value string }

var predicateRegex = regexp.MustCompile(`^(.*)\[@([^=\]]+)='([^']*)'\]$`)

func splitPredicate(segment string) (string, *attrPredicate) {
	if groups := predicateRegex.FindStringSubmatch(segment); groups != nil {
		return groups[1], &attrPredicate{name: groups[2], value: groups[3]}
	}
	return segment, nil
}

// XMLValue evaluates an xpath-like extraction expression on the node. The
// final path segment may be "@attr" (attribute of the last element) or
// "text()" (default).
func XMLValue(root *XMLNode, path string, namespaces map[string]string) (string, bool) {
	path = strings.Trim(path, "/")
	attr := ""
	if i := strings.LastIndex(path, "/@"); i >= 0 {
		attr, path = path[i+2:], path[:i]
	}
	path = strings.TrimSuffix(path, "/text()")
	nodes := root.Find(path, namespaces)
	if len(nodes) == 0 {
		return "", false
	}
	if attr != "" {
		return nodes[0].Attr(attr), true
	}
	return strings.TrimSpace(nodes[0].Text), true
}

// PropertiesFromXML extracts the canonical metadata of a raw XML entry
// following the provider extraction map and namespace table.
func PropertiesFromXML(raw []byte, mapping map[string]config.Mapping, namespaces map[string]string) (map[string]interface{}, error) {
	root, err := ParseXML(raw)
	if err != nil {
		return nil, fmt.Errorf("PropertiesFromXML: %w", err)
	}
	properties := map[string]interface{}{}
	for key, m := range mapping {
		converter, path := metadataPath(m)
		value, ok := XMLValue(root, path, namespaces)
		if !ok || value == "" {
			continue
		}
		if converter != "" {
			converted, err := applyIngestConverter(converter, value)
			if err != nil {
				return nil, fmt.Errorf("PropertiesFromXML[%s]: %w", key, err)
			}
			properties[key] = converted
			continue
		}
		properties[key] = value
	}
	return properties, nil
}
