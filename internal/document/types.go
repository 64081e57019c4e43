// Package document holds the parsed form of a schema description and the
// adapter that produces it from raw text.
package document

import (
	"strings"

	"erdlive/internal/schema"
)

// DefaultNamespace is where tables without an explicit namespace live.
const DefaultNamespace = schema.DefaultNamespace

// Cardinality markers carried by reference endpoints.
const (
	RelationOne  = "1"
	RelationMany = "*"
)

// Default value type hints. An empty hint marks a raw legacy value whose
// kind has to be inferred.
const (
	DefaultTypeNumber     = "number"
	DefaultTypeString     = "string"
	DefaultTypeBoolean    = "boolean"
	DefaultTypeExpression = "expression"
	DefaultTypeNull       = "null"
)

type Document struct {
	Namespaces []*Namespace
}

type Namespace struct {
	Name   string
	Tables []*Table
	Enums  []*Enum
	Refs   []*Ref
}

type Table struct {
	Name    string
	Alias   string
	Note    string
	Fields  []*Field
	Indexes []*Index
}

type FieldType struct {
	Namespace string
	Name      string
	Args      string
}

func (t FieldType) String() string {
	s := t.Name
	if t.Namespace != "" {
		s = t.Namespace + "." + s
	}
	if t.Args != "" {
		s += "(" + t.Args + ")"
	}
	return s
}

type Field struct {
	Name       string
	Type       FieldType
	PK         bool
	Unique     bool
	NotNull    bool
	Increment  bool
	Note       string
	Default    *DefaultValue
	EnumValues []string
}

// DefaultValue is a default as the parser saw it. Type is one of the
// DefaultType* hints, or empty for raw values.
type DefaultValue struct {
	Value any
	Type  string
}

type IndexColumn struct {
	Value      string
	Expression bool
}

type Index struct {
	Name    string
	Columns []IndexColumn
	PK      bool
	Unique  bool
	Type    string
	Note    string
}

type Enum struct {
	Name   string
	Values []string
}

type Endpoint struct {
	Namespace string
	Table     string
	Columns   []string
	Relation  string
}

type Ref struct {
	Name      string
	Endpoints [2]Endpoint
	OnDelete  string
	OnUpdate  string
}

// Namespace returns the namespace with the given name, creating it when
// missing. An empty name means the default namespace.
func (d *Document) Namespace(name string) *Namespace {
	if name == "" {
		name = DefaultNamespace
	}
	for _, ns := range d.Namespaces {
		if ns.Name == name {
			return ns
		}
	}
	ns := &Namespace{Name: name}
	d.Namespaces = append(d.Namespaces, ns)
	return ns
}

func (d *Document) TableCount() int {
	n := 0
	for _, ns := range d.Namespaces {
		n += len(ns.Tables)
	}
	return n
}

// ParseFieldType splits a declared type such as "auth.status",
// "varchar(255)" or "numeric(10, 2)" into namespace, name and the verbatim
// argument list.
func ParseFieldType(s string) FieldType {
	s = strings.TrimSpace(s)
	var ft FieldType
	if open := strings.Index(s, "("); open >= 0 && strings.HasSuffix(s, ")") {
		ft.Args = strings.TrimSpace(s[open+1 : len(s)-1])
		s = strings.TrimSpace(s[:open])
	}
	if dot := strings.Index(s, "."); dot > 0 && !strings.ContainsAny(s[:dot], " \"") {
		ft.Namespace = s[:dot]
		s = s[dot+1:]
	}
	ft.Name = unquote(s)
	return ft
}
