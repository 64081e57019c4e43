package transform

import (
	"fmt"
	"strconv"
	"strings"

	"erdlive/internal/schema"
)

// exportSQL renders the resolved model as PostgreSQL-flavoured DDL.
func exportSQL(r *run) string {
	var b strings.Builder

	namespaces := make(map[string]bool)
	for _, t := range r.tables {
		if t.Namespace != schema.DefaultNamespace && !namespaces[t.Namespace] {
			namespaces[t.Namespace] = true
			b.WriteString(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;\n", quoteIdent(t.Namespace)))
		}
	}
	if len(namespaces) > 0 {
		b.WriteString("\n")
	}

	for _, e := range r.enumDefs {
		values := make([]string, len(e.values))
		for i, v := range e.values {
			values[i] = quoteLiteral(v)
		}
		b.WriteString(fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);\n\n", qualified(e.ns, e.name), strings.Join(values, ", ")))
	}

	for _, t := range r.tables {
		writeTable(&b, t)
	}

	for _, idx := range r.indexes {
		if idx.index.PK {
			continue
		}
		var cols []string
		for _, c := range idx.index.Columns {
			if c.Expression {
				cols = append(cols, "("+c.Value+")")
			} else if r.columns[columnKey{idx.ns, idx.table, c.Value}] != nil {
				cols = append(cols, quoteIdent(c.Value))
			}
		}
		if len(cols) == 0 {
			continue
		}
		b.WriteString("CREATE ")
		if idx.index.Unique {
			b.WriteString("UNIQUE ")
		}
		b.WriteString("INDEX ")
		if idx.index.Name != "" {
			b.WriteString(quoteIdent(idx.index.Name) + " ")
		}
		b.WriteString("ON " + qualified(idx.ns, idx.table))
		if idx.index.Type != "" {
			b.WriteString(" USING " + idx.index.Type)
		}
		b.WriteString(" (" + strings.Join(cols, ", ") + ");\n")
	}
	if len(r.indexes) > 0 {
		b.WriteString("\n")
	}

	names := make(map[string]int)
	for _, rel := range r.rels {
		if rel.Name != "" {
			names[rel.Name]++
		}
	}
	for _, rel := range r.rels {
		b.WriteString("ALTER TABLE " + qualified(rel.Child.Namespace, rel.Child.Table) + " ADD ")
		if rel.Name != "" && names[rel.Name] == 1 {
			b.WriteString("CONSTRAINT " + quoteIdent(rel.Name) + " ")
		}
		b.WriteString(fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(rel.Child.Column),
			qualified(rel.Parent.Namespace, rel.Parent.Table),
			quoteIdent(rel.Parent.Column)))
		if rel.OnDelete != "" {
			b.WriteString(" ON DELETE " + strings.ToUpper(rel.OnDelete))
		}
		if rel.OnUpdate != "" {
			b.WriteString(" ON UPDATE " + strings.ToUpper(rel.OnUpdate))
		}
		b.WriteString(";\n")
	}

	return b.String()
}

func writeTable(b *strings.Builder, t *schema.Table) {
	var pks []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pks = append(pks, quoteIdent(c.Name))
		}
	}

	b.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", qualified(t.Namespace, t.Name)))
	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		line := "  " + quoteIdent(c.Name) + " " + columnType(c)
		if c.Increment {
			line += " GENERATED BY DEFAULT AS IDENTITY"
		}
		if c.PrimaryKey && len(pks) == 1 {
			line += " PRIMARY KEY"
		} else {
			if !c.Nullable {
				line += " NOT NULL"
			}
			if c.Unique && !c.PrimaryKey {
				line += " UNIQUE"
			}
		}
		if c.Default != nil {
			line += " DEFAULT " + FormatDefault(c.Default)
		}
		lines = append(lines, line)
	}
	if len(pks) > 1 {
		lines = append(lines, "  PRIMARY KEY ("+strings.Join(pks, ", ")+")")
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\n")

	if t.Note != "" {
		b.WriteString(fmt.Sprintf("COMMENT ON TABLE %s IS %s;\n", qualified(t.Namespace, t.Name), quoteLiteral(t.Note)))
	}
	for _, c := range t.Columns {
		if c.Note != "" {
			b.WriteString(fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;\n", qualified(t.Namespace, t.Name), quoteIdent(c.Name), quoteLiteral(c.Note)))
		}
	}
	b.WriteString("\n")
}

func columnType(c schema.Column) string {
	if ns, name, ok := strings.Cut(c.Type, "."); ok && c.EnumValues != nil {
		return qualified(ns, name)
	}
	return c.FullType()
}

// FormatDefault renders a tagged default as an SQL literal or expression.
func FormatDefault(d *schema.Default) string {
	switch d.Kind {
	case schema.DefaultExpression:
		return fmt.Sprint(d.Value)
	case schema.DefaultString:
		return quoteLiteral(fmt.Sprint(d.Value))
	case schema.DefaultNumber:
		if f, ok := d.Value.(float64); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprint(d.Value)
	case schema.DefaultBoolean:
		if b, ok := d.Value.(bool); ok && b {
			return "TRUE"
		}
		return "FALSE"
	}
	return "NULL"
}

func qualified(ns, name string) string {
	if ns == "" {
		ns = schema.DefaultNamespace
	}
	return quoteIdent(ns) + "." + quoteIdent(name)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
