// Package schema describes indexable fields and compiles them into a search
// backend mapping document.
//
// Types are registered explicitly in a Registry. Each TypeDef lists its own
// field descriptors and optionally names a parent type whose fields are
// inherited. The Compiler turns the flattened field set of a type into a
// deterministic Mapping.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the search-side semantic type of a field.
type FieldType string

const (
	Keyword FieldType = "KEYWORD"
	Text    FieldType = "TEXT"
	Date    FieldType = "DATE"
	Object  FieldType = "OBJECT"
	List    FieldType = "LIST"
	Long    FieldType = "LONG"
	Integer FieldType = "INTEGER"
	Short   FieldType = "SHORT"
	Byte    FieldType = "BYTE"
	Double  FieldType = "DOUBLE"
	Float   FieldType = "FLOAT"
	Boolean FieldType = "BOOLEAN"
)

var fieldTypes = map[FieldType]bool{
	Keyword: true, Text: true, Date: true, Object: true, List: true,
	Long: true, Integer: true, Short: true, Byte: true,
	Double: true, Float: true, Boolean: true,
}

// BackendName returns the type name as the backend spells it.
func (t FieldType) BackendName() string {
	return strings.ToLower(string(t))
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return fieldTypes[t]
}

// Analyzer names the text analysis chain applied to a field.
type Analyzer string

const (
	AnalyzerDefault    Analyzer = "DEFAULT"
	AnalyzerStandard   Analyzer = "STANDARD"
	AnalyzerPinyin     Analyzer = "PINYIN"
	AnalyzerPinyinRaw  Analyzer = "PINYIN_RAW"
	AnalyzerRawLower   Analyzer = "RAW_LOWER"
	AnalyzerIKSmart    Analyzer = "IK_SMART"
	AnalyzerIKMaxWord  Analyzer = "IK_MAX_WORD"
	AnalyzerWhitespace Analyzer = "WHITESPACE"
	AnalyzerKeyword    Analyzer = "KEYWORD"
)

var analyzers = map[Analyzer]bool{
	AnalyzerDefault: true, AnalyzerStandard: true, AnalyzerPinyin: true,
	AnalyzerPinyinRaw: true, AnalyzerRawLower: true, AnalyzerIKSmart: true,
	AnalyzerIKMaxWord: true, AnalyzerWhitespace: true, AnalyzerKeyword: true,
}

// BackendName returns the analyzer name as registered in the backend.
func (a Analyzer) BackendName() string {
	return strings.ToLower(string(a))
}

// Valid reports whether a is a known analyzer.
func (a Analyzer) Valid() bool {
	return analyzers[a]
}

// ElemString marks a LIST whose elements are plain strings.
const ElemString = "string"

// FieldDescriptor is the indexing metadata of one field.
type FieldDescriptor struct {
	// Name is the document property name.
	Name string `yaml:"name" json:"name"`

	// Type is the search-side type.
	Type FieldType `yaml:"type" json:"type"`

	// Analyzer defaults to AnalyzerDefault when empty.
	Analyzer Analyzer `yaml:"analyzer,omitempty" json:"analyzer,omitempty"`

	// CopyTo is the aggregate field this field's value is copied into.
	CopyTo string `yaml:"copy_to,omitempty" json:"copy_to,omitempty"`

	// SortDefault marks the field used for default ordering by callers.
	SortDefault bool `yaml:"sort_default,omitempty" json:"sort_default,omitempty"`

	// SearchID marks the field whose value is the document key.
	SearchID bool `yaml:"search_id,omitempty" json:"search_id,omitempty"`

	// Elem names the declared type of an OBJECT, or the element type of a
	// LIST. ElemString means a list of plain strings.
	Elem string `yaml:"elem,omitempty" json:"elem,omitempty"`
}

func (f FieldDescriptor) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Type)
}

// TypeDef registers one domain type.
type TypeDef struct {
	Name    string            `yaml:"name"`
	Extends string            `yaml:"extends,omitempty"`
	Fields  []FieldDescriptor `yaml:"fields"`

	// Unindexed lists properties that exist on the record but are never
	// sent to the mapping.
	Unindexed []string `yaml:"unindexed,omitempty"`
}
