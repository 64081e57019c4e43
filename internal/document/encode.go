package document

import (
	"bytes"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Encode writes doc in the YAML schema language read by YAMLParser.
// Inline column references are emitted as top-level refs.
func Encode(doc *Document) ([]byte, error) {
	var raw rawDocument
	for _, ns := range doc.Namespaces {
		rns := rawNamespace{Name: ns.Name}
		for _, t := range ns.Tables {
			rns.Tables = append(rns.Tables, encodeTable(t))
		}
		for _, e := range ns.Enums {
			rns.Enums = append(rns.Enums, rawEnum{Name: e.Name, Values: e.Values})
		}
		for _, ref := range ns.Refs {
			n, err := encodeRef(ref)
			if err != nil {
				return nil, err
			}
			rns.Refs = append(rns.Refs, *n)
		}
		if ns.Name == DefaultNamespace {
			raw.Tables = append(raw.Tables, rns.Tables...)
			raw.Enums = append(raw.Enums, rns.Enums...)
			raw.Refs = append(raw.Refs, rns.Refs...)
			continue
		}
		raw.Schemas = append(raw.Schemas, rns)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&raw); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTable(t *Table) rawTable {
	rt := rawTable{Name: t.Name, Alias: t.Alias, Note: t.Note}
	for _, f := range t.Fields {
		rc := rawColumn{
			Name:      f.Name,
			Type:      f.Type.String(),
			PK:        f.PK,
			Increment: f.Increment,
			NotNull:   f.NotNull,
			Unique:    f.Unique,
			Note:      f.Note,
			Enum:      f.EnumValues,
		}
		if f.Default != nil {
			rc.Default = encodeDefault(f.Default)
		}
		rt.Columns = append(rt.Columns, rc)
	}
	for _, idx := range t.Indexes {
		ri := rawIndex{Name: idx.Name, PK: idx.PK, Unique: idx.Unique, Type: idx.Type, Note: idx.Note}
		for _, c := range idx.Columns {
			if c.Expression {
				ri.Columns = append(ri.Columns, "`"+c.Value+"`")
				continue
			}
			ri.Columns = append(ri.Columns, c.Value)
		}
		rt.Indexes = append(rt.Indexes, ri)
	}
	return rt
}

func encodeDefault(d *DefaultValue) yaml.Node {
	n := yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str"}
	switch v := d.Value.(type) {
	case nil:
		n.Tag, n.Value = "!!null", "null"
	case bool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v)
	case float64:
		n.Tag, n.Value = "!!float", strconv.FormatFloat(v, 'f', -1, 64)
		if v == float64(int64(v)) {
			n.Tag = "!!int"
		}
	case int:
		n.Tag, n.Value = "!!int", strconv.Itoa(v)
	case int64:
		n.Tag, n.Value = "!!int", strconv.FormatInt(v, 10)
	case string:
		switch d.Type {
		case DefaultTypeExpression:
			n.Value = "`" + v + "`"
		case DefaultTypeString:
			n.Style, n.Value = yaml.SingleQuotedStyle, v
		default:
			n.Value = v
		}
	default:
		n.Value = ""
	}
	return n
}

func encodeRef(ref *Ref) (*yaml.Node, error) {
	n := &yaml.Node{}
	expr := FormatRefExpression(ref)
	if ref.Name == "" && ref.OnDelete == "" && ref.OnUpdate == "" {
		n.Kind, n.Tag, n.Value = yaml.ScalarNode, "!!str", expr
		return n, nil
	}
	err := n.Encode(rawRef{Ref: expr, Name: ref.Name, OnDelete: ref.OnDelete, OnUpdate: ref.OnUpdate})
	return n, err
}
