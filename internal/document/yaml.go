package document

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawDocument struct {
	Schemas []rawNamespace `yaml:"schemas,omitempty"`
	Tables  []rawTable     `yaml:"tables,omitempty"`
	Enums   []rawEnum      `yaml:"enums,omitempty"`
	Refs    []yaml.Node    `yaml:"refs,omitempty"`
}

type rawNamespace struct {
	Name   string      `yaml:"name"`
	Tables []rawTable  `yaml:"tables,omitempty"`
	Enums  []rawEnum   `yaml:"enums,omitempty"`
	Refs   []yaml.Node `yaml:"refs,omitempty"`
}

type rawTable struct {
	Name    string      `yaml:"name"`
	Alias   string      `yaml:"alias,omitempty"`
	Note    string      `yaml:"note,omitempty"`
	Columns []rawColumn `yaml:"columns"`
	Indexes []rawIndex  `yaml:"indexes,omitempty"`
}

type rawColumn struct {
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"`
	PK        bool      `yaml:"pk,omitempty"`
	Increment bool      `yaml:"increment,omitempty"`
	NotNull   bool      `yaml:"not_null,omitempty"`
	Unique    bool      `yaml:"unique,omitempty"`
	Default   yaml.Node `yaml:"default,omitempty"`
	Note      string    `yaml:"note,omitempty"`
	Enum      []string  `yaml:"enum,omitempty"`
	Ref       string    `yaml:"ref,omitempty"`
}

type rawIndex struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	PK      bool     `yaml:"pk,omitempty"`
	Unique  bool     `yaml:"unique,omitempty"`
	Type    string   `yaml:"type,omitempty"`
	Note    string   `yaml:"note,omitempty"`
}

type rawEnum struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

type rawRef struct {
	Ref      string `yaml:"ref"`
	Name     string `yaml:"name,omitempty"`
	OnDelete string `yaml:"on_delete,omitempty"`
	OnUpdate string `yaml:"on_update,omitempty"`
}

// YAMLParser reads the YAML schema language.
type YAMLParser struct{}

func (YAMLParser) Parse(text string) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, err
	}

	doc := &Document{}
	if len(raw.Tables) > 0 || len(raw.Enums) > 0 || len(raw.Refs) > 0 {
		if err := raw.fill(doc, rawNamespace{Tables: raw.Tables, Enums: raw.Enums, Refs: raw.Refs}); err != nil {
			return nil, err
		}
	}
	for _, rns := range raw.Schemas {
		if rns.Name == "" {
			return nil, &Diagnostic{Message: "schema entry is missing a name"}
		}
		if err := raw.fill(doc, rns); err != nil {
			return nil, err
		}
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (raw *rawDocument) fill(doc *Document, rns rawNamespace) error {
	for i, rt := range rns.Tables {
		if strings.TrimSpace(rt.Name) == "" {
			return &Diagnostic{Message: fmt.Sprintf("table #%d is missing a name", i+1)}
		}
		nsName, tableName := rns.Name, rt.Name
		if nsName == "" {
			if path := splitPath(rt.Name); len(path) == 2 {
				nsName, tableName = path[0], path[1]
			}
		}
		ns := doc.Namespace(nsName)
		t, refs, err := decodeTable(ns.Name, tableName, rt)
		if err != nil {
			return err
		}
		ns.Tables = append(ns.Tables, t)
		ns.Refs = append(ns.Refs, refs...)
	}

	ns := doc.Namespace(rns.Name)
	for _, re := range rns.Enums {
		nsName, enumName := rns.Name, re.Name
		if path := splitPath(re.Name); nsName == "" && len(path) == 2 {
			nsName, enumName = path[0], path[1]
		}
		if enumName == "" {
			return &Diagnostic{Message: "enum is missing a name"}
		}
		target := doc.Namespace(nsName)
		target.Enums = append(target.Enums, &Enum{Name: enumName, Values: re.Values})
	}
	for i := range rns.Refs {
		ref, err := decodeRef(&rns.Refs[i])
		if err != nil {
			return err
		}
		ns.Refs = append(ns.Refs, ref)
	}
	return nil
}

func decodeTable(nsName, name string, rt rawTable) (*Table, []*Ref, error) {
	t := &Table{Name: name, Alias: rt.Alias, Note: rt.Note}
	var refs []*Ref
	for _, rc := range rt.Columns {
		if rc.Name == "" {
			return nil, nil, &Diagnostic{Message: fmt.Sprintf("table %q has a column without a name", name)}
		}
		if strings.TrimSpace(rc.Type) == "" {
			return nil, nil, &Diagnostic{Message: fmt.Sprintf("column %q in table %q is missing a type", rc.Name, name)}
		}
		f := &Field{
			Name:       rc.Name,
			Type:       ParseFieldType(rc.Type),
			PK:         rc.PK,
			Unique:     rc.Unique,
			NotNull:    rc.NotNull,
			Increment:  rc.Increment,
			Note:       rc.Note,
			EnumValues: rc.Enum,
			Default:    decodeDefault(&rc.Default),
		}
		t.Fields = append(t.Fields, f)

		if rc.Ref != "" {
			op, target, err := parseInlineRef(rc.Ref)
			if err != nil {
				return nil, nil, &Diagnostic{Message: err.Error(), Err: err}
			}
			rel := relations[op]
			self := Endpoint{Namespace: nsName, Table: name, Columns: []string{rc.Name}, Relation: rel[0]}
			target.Relation = rel[1]
			refs = append(refs, &Ref{Endpoints: [2]Endpoint{self, target}})
		}
	}
	for _, ri := range rt.Indexes {
		idx := &Index{Name: ri.Name, PK: ri.PK, Unique: ri.Unique, Type: ri.Type, Note: ri.Note}
		for _, c := range ri.Columns {
			if len(c) >= 2 && c[0] == '`' && c[len(c)-1] == '`' {
				idx.Columns = append(idx.Columns, IndexColumn{Value: c[1 : len(c)-1], Expression: true})
				continue
			}
			idx.Columns = append(idx.Columns, IndexColumn{Value: c})
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return t, refs, nil
}

// decodeDefault keeps the YAML scalar kind: typed scalars map to their
// kind, single-quoted scalars and "'quoted'" strings are strings, `backticked` strings expressions and
// everything else stays raw.
func decodeDefault(n *yaml.Node) *DefaultValue {
	if n.Kind != yaml.ScalarNode {
		return nil
	}
	switch n.ShortTag() {
	case "!!null":
		return &DefaultValue{Type: DefaultTypeNull}
	case "!!bool":
		b, _ := strconv.ParseBool(strings.ToLower(n.Value))
		return &DefaultValue{Value: b, Type: DefaultTypeBoolean}
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
		if err != nil {
			return &DefaultValue{Value: n.Value}
		}
		return &DefaultValue{Value: f, Type: DefaultTypeNumber}
	}
	v := n.Value
	switch {
	case n.Style&yaml.SingleQuotedStyle != 0:
		return &DefaultValue{Value: v, Type: DefaultTypeString}
	case len(v) >= 2 && v[0] == '`' && v[len(v)-1] == '`':
		return &DefaultValue{Value: v[1 : len(v)-1], Type: DefaultTypeExpression}
	case len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'':
		return &DefaultValue{Value: v[1 : len(v)-1], Type: DefaultTypeString}
	}
	return &DefaultValue{Value: v}
}

func decodeRef(n *yaml.Node) (*Ref, error) {
	var rr rawRef
	switch n.Kind {
	case yaml.ScalarNode:
		rr.Ref = n.Value
	case yaml.MappingNode:
		if err := n.Decode(&rr); err != nil {
			return nil, err
		}
	default:
		return nil, &Diagnostic{Message: "reference must be a string or a mapping", Line: n.Line}
	}
	eps, err := ParseRefExpression(rr.Ref)
	if err != nil {
		return nil, &Diagnostic{Message: err.Error(), Line: n.Line, Err: err}
	}
	return &Ref{Name: rr.Name, Endpoints: eps, OnDelete: rr.OnDelete, OnUpdate: rr.OnUpdate}, nil
}

// validate rejects references to table names that exist nowhere in the
// document. Narrower failures are left to the transformer as warnings.
func validate(doc *Document) error {
	known := make(map[string]bool)
	for _, ns := range doc.Namespaces {
		for _, t := range ns.Tables {
			known[t.Name] = true
			if t.Alias != "" {
				known[t.Alias] = true
			}
		}
	}
	for _, ns := range doc.Namespaces {
		for _, ref := range ns.Refs {
			for _, ep := range ref.Endpoints {
				if !known[ep.Table] {
					name := ep.Table
					if ep.Namespace != "" {
						name = ep.Namespace + "." + name
					}
					return &Diagnostic{Message: fmt.Sprintf("can't find table %q", name)}
				}
			}
		}
	}
	return nil
}
