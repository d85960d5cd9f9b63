package schema

import (
	"bytes"
	"encoding/json"
)

// Mapping keys and sub-field names as the backend expects them.
const (
	KeyProperties = "properties"
	KeyType       = "type"
	KeyAnalyzer   = "analyzer"
	KeyFields     = "fields"
	KeyFielddata  = "fielddata"
	KeyCopyTo     = "copy_to"
	KeyFormat     = "format"

	SubText      = "text"
	SubRaw       = "raw"
	SubRawLower  = "raw_lower"
	SubPinyin    = "pinyin"
	SubPinyinRaw = "pinyin_raw"

	// DateFormat accepts second-precision timestamps, dates and epoch millis.
	DateFormat = "yyyy-MM-dd HH:mm:ss||yyyy-MM-dd||epoch_millis"
)

// Node is one entry of a mapping tree.
// A leaf carries Type and its options. A composite carries only Properties.
type Node struct {
	Type      string
	Analyzer  string
	CopyTo    string
	Format    string
	Fielddata bool

	// Fields are alternate indexings of the same value, in emission order.
	Fields []Property

	// Properties are child fields of an object, in emission order.
	Properties []Property
}

// Property names a node.
type Property struct {
	Name string
	Node *Node
}

// IsLeaf reports whether the node is a typed value rather than an object.
func (n *Node) IsLeaf() bool {
	return n.Type != ""
}

// Field returns the named sub-field.
func (n *Node) Field(name string) (*Node, bool) {
	return lookup(n.Fields, name)
}

// Property returns the named child property.
func (n *Node) Property(name string) (*Node, bool) {
	return lookup(n.Properties, name)
}

func lookup(props []Property, name string) (*Node, bool) {
	for _, p := range props {
		if p.Name == name {
			return p.Node, true
		}
	}
	return nil, false
}

// MarshalJSON renders the node with a fixed key order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	w := objectWriter{buf: &buf}

	buf.WriteByte('{')
	if n.Type != "" {
		w.field(KeyType, n.Type)
	}
	if n.Analyzer != "" {
		w.field(KeyAnalyzer, n.Analyzer)
	}
	if n.CopyTo != "" {
		w.field(KeyCopyTo, n.CopyTo)
	}
	if n.Format != "" {
		w.field(KeyFormat, n.Format)
	}
	if n.Fielddata {
		w.field(KeyFielddata, true)
	}
	if len(n.Fields) > 0 {
		w.properties(KeyFields, n.Fields)
	}
	if len(n.Properties) > 0 || !n.IsLeaf() {
		w.properties(KeyProperties, n.Properties)
	}
	buf.WriteByte('}')

	return buf.Bytes(), w.err
}

type objectWriter struct {
	buf   *bytes.Buffer
	count int
	err   error
}

func (w *objectWriter) key(k string) {
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.count++
	kb, _ := json.Marshal(k)
	w.buf.Write(kb)
	w.buf.WriteByte(':')
}

func (w *objectWriter) field(k string, v any) {
	w.key(k)
	vb, err := json.Marshal(v)
	if err != nil && w.err == nil {
		w.err = err
	}
	w.buf.Write(vb)
}

func (w *objectWriter) properties(k string, props []Property) {
	w.key(k)
	inner := objectWriter{buf: w.buf}
	w.buf.WriteByte('{')
	for _, p := range props {
		inner.field(p.Name, p.Node)
	}
	w.buf.WriteByte('}')
	if inner.err != nil && w.err == nil {
		w.err = inner.err
	}
}

// Mapping is the compiled schema document of one domain type.
type Mapping struct {
	// TypeName is the registered type the mapping was compiled from.
	TypeName string

	Root *Node
}

// MarshalJSON renders {"properties": {...}}.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	return m.Root.MarshalJSON()
}

// JSON returns the compact document.
func (m *Mapping) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Indent returns the document indented for display and diffing.
func (m *Mapping) Indent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Properties returns the top-level properties.
func (m *Mapping) Properties() []Property {
	return m.Root.Properties
}

// Property returns a top-level property by name.
func (m *Mapping) Property(name string) (*Node, bool) {
	return m.Root.Property(name)
}
