package schema

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// DefaultMappingCacheSize bounds the number of compiled mappings kept.
const DefaultMappingCacheSize = 256

// Compiler turns registered types into mappings.
// Compiled mappings are cached; Compile is safe for concurrent use.
type Compiler struct {
	registry *Registry
	cache    *lru.Cache[string, *Mapping]
}

// NewCompiler creates a compiler over registry.
func NewCompiler(registry *Registry) *Compiler {
	cache, _ := lru.New[string, *Mapping](DefaultMappingCacheSize)
	return &Compiler{registry: registry, cache: cache}
}

// Registry returns the registry the compiler reads from.
func (c *Compiler) Registry() *Registry {
	return c.registry
}

// Compile builds the mapping of a registered type.
// The result must be treated as read-only: it is shared between callers.
func (c *Compiler) Compile(typeName string) (*Mapping, error) {
	if m, ok := c.cache.Get(typeName); ok {
		return m, nil
	}

	props, err := c.properties(typeName, []string{typeName})
	if err != nil {
		return nil, err
	}

	m := &Mapping{TypeName: typeName, Root: &Node{Properties: props}}
	c.cache.Add(typeName, m)
	return m, nil
}

// properties compiles the flattened fields of typeName. path holds the
// composite types currently being expanded.
func (c *Compiler) properties(typeName string, path []string) ([]Property, error) {
	fields, err := c.registry.Fields(typeName)
	if err != nil {
		return nil, err
	}
	return c.compileFields(typeName, fields, path)
}

func (c *Compiler) compileFields(typeName string, fields []FieldDescriptor, path []string) ([]Property, error) {
	props := make([]Property, 0, len(fields))
	for _, f := range fields {
		node, err := c.node(typeName, f, path)
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Name: f.Name, Node: node})
	}
	return props, nil
}

func (c *Compiler) node(owner string, f FieldDescriptor, path []string) (*Node, error) {
	switch f.Type {
	case Object:
		return c.composite(owner, f, path)

	case List:
		if f.Elem == ElemString {
			return &Node{Type: Keyword.BackendName()}, nil
		}
		return c.composite(owner, f, path)

	case Text:
		return textNode(f), nil

	case Date:
		return &Node{Type: Date.BackendName(), Format: DateFormat}, nil

	default:
		n := &Node{Type: f.Type.BackendName()}
		if f.Analyzer != AnalyzerDefault {
			n.Analyzer = f.Analyzer.BackendName()
		}
		return n, nil
	}
}

func (c *Compiler) composite(owner string, f FieldDescriptor, path []string) (*Node, error) {
	if f.Elem == "" {
		return nil, serrors.New(serrors.ErrCodeMappingInvalid,
			fmt.Sprintf("field %s.%s: %s without element type", owner, f.Name, f.Type), nil)
	}
	def, ok := c.registry.Lookup(f.Elem)
	if !ok {
		return nil, serrors.New(serrors.ErrCodeMappingInvalid,
			fmt.Sprintf("field %s.%s: unknown element type %q", owner, f.Name, f.Elem), nil)
	}
	for _, p := range path {
		if p == f.Elem {
			return nil, serrors.New(serrors.ErrCodeMappingInvalid,
				fmt.Sprintf("field %s.%s: recursive type %s", owner, f.Name, strings.Join(append(path, f.Elem), " -> ")), nil)
		}
	}

	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	next = append(next, f.Elem)

	// OBJECT takes the declared type's own fields; a LIST element brings its
	// inheritance chain.
	var (
		props []Property
		err   error
	)
	if f.Type == Object {
		props, err = c.compileFields(f.Elem, def.Fields, next)
	} else {
		props, err = c.properties(f.Elem, next)
	}
	if err != nil {
		return nil, err
	}
	return &Node{Properties: props}, nil
}

func textNode(f FieldDescriptor) *Node {
	text := Text.BackendName()
	raw := Property{Name: SubRaw, Node: &Node{Type: Keyword.BackendName()}}

	switch f.Analyzer {
	case AnalyzerPinyin:
		return &Node{
			Type: text,
			Fields: []Property{
				{Name: SubText, Node: &Node{Type: text, Analyzer: AnalyzerStandard.BackendName()}},
				{Name: SubPinyin, Node: &Node{Type: text, Analyzer: AnalyzerPinyin.BackendName()}},
				raw,
				{Name: SubPinyinRaw, Node: &Node{Type: text, Analyzer: AnalyzerPinyinRaw.BackendName(), Fielddata: true}},
				{Name: SubRawLower, Node: &Node{Type: text, Analyzer: AnalyzerRawLower.BackendName()}},
			},
		}

	case AnalyzerDefault:
		return &Node{Type: text, CopyTo: f.CopyTo, Fields: []Property{raw}}

	default:
		return &Node{
			Type: text,
			Fields: []Property{
				{Name: SubText, Node: &Node{Type: text, Analyzer: f.Analyzer.BackendName()}},
				raw,
			},
		}
	}
}
