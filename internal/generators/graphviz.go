package generators

import (
	"fmt"
	"strconv"
	"strings"

	"erdlive/internal/graph"
	"erdlive/internal/schema"
)

// graphvizScale converts diagram pixels to Graphviz points.
const graphvizScale = 0.75

// GenerateGraphviz pins every node at its diagram position, so the output is
// meant for neato or fdp (-n) rather than dot.
func GenerateGraphviz(s graph.Snapshot) string {
	var builder strings.Builder

	builder.WriteString("digraph schema {\n")
	builder.WriteString("  layout=neato;\n")
	builder.WriteString("  splines=true;\n")
	builder.WriteString("  node [shape=record, style=filled, fillcolor=lightblue];\n")
	builder.WriteString("  edge [color=gray];\n\n")

	for _, node := range s.Nodes {
		var fields []string
		for _, col := range node.Table.Columns {
			field := fmt.Sprintf("<%s> %s: %s", cleanName(col.Name), col.Name, formatGraphvizType(col))
			if col.PrimaryKey {
				field = fmt.Sprintf("<%s> +%s: %s", cleanName(col.Name), col.Name, formatGraphvizType(col))
			}
			if !col.Nullable && !col.PrimaryKey {
				field += " NOT NULL"
			}
			fields = append(fields, escapeRecord(field))
		}

		builder.WriteString(fmt.Sprintf("  %s [label=\"{%s|%s\\l}\", pos=\"%s,%s!\"];\n",
			cleanName(node.ID),
			escapeRecord(node.Label),
			strings.Join(fields, "\\l|"),
			formatPoint(node.Position.X),
			formatPoint(-node.Position.Y)))
	}

	builder.WriteString("\n")

	for _, edge := range s.Edges {
		builder.WriteString(fmt.Sprintf("  %s:%s -> %s:%s [label=\"%s\"];\n",
			cleanName(edge.Source),
			cleanName(edge.SourceHandle),
			cleanName(edge.Target),
			cleanName(edge.TargetHandle),
			edge.TargetHandle))
	}

	builder.WriteString("}\n")

	return builder.String()
}

func formatGraphvizType(col schema.Column) string {
	return strings.ToUpper(col.FullType())
}

func formatPoint(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v*graphvizScale, 'f', -1, 64)
}

// escapeRecord escapes the characters that delimit fields in record labels.
// The leading port tag of a field is left intact.
func escapeRecord(s string) string {
	port := ""
	if strings.HasPrefix(s, "<") {
		if end := strings.Index(s, ">"); end > 0 {
			port, s = s[:end+1], s[end+1:]
		}
	}
	r := strings.NewReplacer(`{`, `\{`, `}`, `\}`, `|`, `\|`, `<`, `\<`, `>`, `\>`, `"`, `\"`)
	return port + r.Replace(s)
}
