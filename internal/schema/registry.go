package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Registry is the table of registered domain types.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	types map[string]TypeDef
	order []string
}

// NewRegistry validates defs and builds a registry.
func NewRegistry(defs ...TypeDef) (*Registry, error) {
	r := &Registry{types: make(map[string]TypeDef, len(defs))}

	for _, def := range defs {
		if def.Name == "" {
			return nil, serrors.ConfigError("type definition without a name", nil)
		}
		if _, dup := r.types[def.Name]; dup {
			return nil, serrors.ConfigError(fmt.Sprintf("type %q registered twice", def.Name), nil)
		}

		fields := make([]FieldDescriptor, len(def.Fields))
		for i, f := range def.Fields {
			if err := validateField(def.Name, &f); err != nil {
				return nil, err
			}
			fields[i] = f
		}
		def.Fields = fields

		r.types[def.Name] = def
		r.order = append(r.order, def.Name)
	}

	for _, name := range r.order {
		def := r.types[name]
		if def.Extends == "" {
			continue
		}
		if _, ok := r.types[def.Extends]; !ok {
			return nil, serrors.New(serrors.ErrCodeUnknownType,
				fmt.Sprintf("type %q extends unknown type %q", name, def.Extends), nil)
		}
	}

	return r, nil
}

func validateField(typeName string, f *FieldDescriptor) error {
	if f.Name == "" {
		return serrors.ConfigError(fmt.Sprintf("type %q has a field without a name", typeName), nil)
	}
	f.Type = FieldType(strings.ToUpper(string(f.Type)))
	if !f.Type.Valid() {
		return serrors.ConfigError(fmt.Sprintf("field %s.%s: unknown type %q", typeName, f.Name, f.Type), nil)
	}
	if f.Analyzer == "" {
		f.Analyzer = AnalyzerDefault
	}
	f.Analyzer = Analyzer(strings.ToUpper(string(f.Analyzer)))
	if !f.Analyzer.Valid() {
		return serrors.ConfigError(fmt.Sprintf("field %s.%s: unknown analyzer %q", typeName, f.Name, f.Analyzer), nil)
	}
	return nil
}

// registryFile is the on-disk layout of a types file.
type registryFile struct {
	Types []TypeDef `yaml:"types"`
}

// ParseRegistry builds a registry from YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, serrors.ConfigError("failed to parse types", err)
	}
	return NewRegistry(file.Types...)
}

// LoadRegistry reads a types file from disk.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.New(serrors.ErrCodeConfigNotFound, "types file not found: "+path, err)
		}
		return nil, serrors.New(serrors.ErrCodeFilePermission, "failed to read types file: "+path, err)
	}
	return ParseRegistry(data)
}

// Names returns registered type names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the definition of a registered type.
func (r *Registry) Lookup(name string) (TypeDef, bool) {
	def, ok := r.types[name]
	return def, ok
}

// Fields returns the complete field set of a type, its own fields first and
// then those of each ancestor. A field redeclared by a descendant hides the
// ancestor's declaration.
func (r *Registry) Fields(name string) ([]FieldDescriptor, error) {
	var (
		out  []FieldDescriptor
		seen = make(map[string]bool)
		walk = make(map[string]bool)
	)

	for cur := name; cur != ""; {
		if walk[cur] {
			return nil, serrors.ConfigError(fmt.Sprintf("inheritance cycle at type %q", cur), nil)
		}
		walk[cur] = true

		def, ok := r.types[cur]
		if !ok {
			return nil, serrors.New(serrors.ErrCodeUnknownType, fmt.Sprintf("unknown type %q", cur), nil)
		}
		for _, f := range def.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, f)
		}
		cur = def.Extends
	}

	return out, nil
}

// SearchIDField returns the field whose value identifies a document.
// Exactly one field across the type's inheritance chain must carry the flag.
func (r *Registry) SearchIDField(name string) (FieldDescriptor, error) {
	fields, err := r.Fields(name)
	if err != nil {
		return FieldDescriptor{}, err
	}

	var found []FieldDescriptor
	for _, f := range fields {
		if f.SearchID {
			found = append(found, f)
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return FieldDescriptor{}, serrors.New(serrors.ErrCodeMissingSearchID,
			fmt.Sprintf("type %q has no search id field", name), nil).
			WithSuggestion("mark exactly one field with search_id: true")
	default:
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = f.Name
		}
		return FieldDescriptor{}, serrors.New(serrors.ErrCodeDuplicateSearchID,
			fmt.Sprintf("type %q has %d search id fields: %s", name, len(found), strings.Join(names, ", ")), nil)
	}
}

// DefaultSortField returns the field marked as the default sort key, if any.
func (r *Registry) DefaultSortField(name string) (FieldDescriptor, bool, error) {
	fields, err := r.Fields(name)
	if err != nil {
		return FieldDescriptor{}, false, err
	}
	for _, f := range fields {
		if f.SortDefault {
			return f, true, nil
		}
	}
	return FieldDescriptor{}, false, nil
}
