package local

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/searchsync/internal/schema"
)

// Analyzers bleve does not ship. Language analyzers without a bleve
// counterpart fall back to the standard analyzer.
var customAnalyzers = map[string]map[string]any{
	schema.AnalyzerRawLower.BackendName(): {
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	},
	schema.AnalyzerWhitespace.BackendName(): {
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	},
}

func bleveAnalyzer(name string) string {
	switch name {
	case "":
		return ""
	case schema.AnalyzerKeyword.BackendName():
		return keyword.Name
	case schema.AnalyzerRawLower.BackendName(), schema.AnalyzerWhitespace.BackendName():
		return name
	default:
		return standard.Name
	}
}

// newIndexMapping returns the mapping of an index that has no schema yet.
func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	for name, def := range customAnalyzers {
		if err := im.AddCustomAnalyzer(name, def); err != nil {
			return nil, fmt.Errorf("failed to add analyzer %s: %w", name, err)
		}
	}
	return im, nil
}

// translateMapping converts a compiled schema into a bleve index mapping.
func translateMapping(m *schema.Mapping) (*mapping.IndexMappingImpl, error) {
	im, err := newIndexMapping()
	if err != nil {
		return nil, err
	}

	doc, err := documentMapping(m.Properties())
	if err != nil {
		return nil, err
	}
	im.DefaultMapping = doc
	return im, nil
}

func documentMapping(props []schema.Property) (*mapping.DocumentMapping, error) {
	dm := bleve.NewDocumentMapping()

	for _, p := range props {
		if !p.Node.IsLeaf() {
			sub, err := documentMapping(p.Node.Properties)
			if err != nil {
				return nil, err
			}
			dm.AddSubDocumentMapping(p.Name, sub)
			continue
		}

		primary, err := fieldMapping(p.Node)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", p.Name, err)
		}
		fms := []*mapping.FieldMapping{primary}

		if p.Node.CopyTo != "" {
			copied, _ := fieldMapping(p.Node)
			copied.Name = p.Node.CopyTo
			fms = append(fms, copied)
		}

		for _, sub := range p.Node.Fields {
			fm, err := fieldMapping(sub.Node)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", p.Name, sub.Name, err)
			}
			fm.Name = p.Name + "." + sub.Name
			fms = append(fms, fm)
		}

		dm.AddFieldMappingsAt(p.Name, fms...)
	}
	return dm, nil
}

func fieldMapping(n *schema.Node) (*mapping.FieldMapping, error) {
	var fm *mapping.FieldMapping

	switch n.Type {
	case "text":
		fm = bleve.NewTextFieldMapping()
	case "keyword":
		fm = bleve.NewKeywordFieldMapping()
	case "date":
		fm = bleve.NewDateTimeFieldMapping()
	case "long", "integer", "short", "byte", "double", "float":
		fm = bleve.NewNumericFieldMapping()
	case "boolean":
		fm = bleve.NewBooleanFieldMapping()
	default:
		return nil, fmt.Errorf("unsupported field type %q", n.Type)
	}

	if a := bleveAnalyzer(n.Analyzer); a != "" {
		fm.Analyzer = a
	}
	return fm, nil
}
