package generators

import (
	"fmt"
	"strings"

	"erdlive/internal/graph"
	"erdlive/internal/schema"
)

func GenerateMermaid(s graph.Snapshot) string {
	var builder strings.Builder

	builder.WriteString("erDiagram\n")

	for _, node := range s.Nodes {
		builder.WriteString(fmt.Sprintf("    %s {\n", cleanName(node.Label)))

		for _, col := range node.Table.Columns {
			builder.WriteString(fmt.Sprintf("        %s %s%s%s\n",
				formatMermaidType(col), cleanName(col.Name), mermaidKeys(col), mermaidComment(col)))
		}

		builder.WriteString("    }\n")
	}

	builder.WriteString("\n")
	labels := nodeLabels(s)
	for _, edge := range s.Edges {
		builder.WriteString(fmt.Sprintf("    %s %s %s : %s\n",
			cleanName(labels[edge.Source]),
			determineRelationship(s, edge),
			cleanName(labels[edge.Target]),
			edge.TargetHandle))
	}

	builder.WriteString(fmt.Sprintf("\n%%%% tables: %d, relationships: %d\n", len(s.Nodes), len(s.Edges)))

	return builder.String()
}

// formatMermaidType keeps length details but drops anything Mermaid cannot
// tokenize as a single attribute type.
func formatMermaidType(col schema.Column) string {
	t := strings.ReplaceAll(col.Type, " ", "_")
	t = strings.ReplaceAll(t, ".", "_")
	if col.TypeDetail != "" && !strings.ContainsAny(col.TypeDetail, ", ") {
		t += "(" + col.TypeDetail + ")"
	}
	return t
}

func mermaidKeys(col schema.Column) string {
	var keys []string
	if col.PrimaryKey {
		keys = append(keys, "PK")
	}
	if len(col.ForeignKeys) > 0 {
		keys = append(keys, "FK")
	}
	if col.Unique && !col.PrimaryKey {
		keys = append(keys, "UK")
	}
	if len(keys) == 0 {
		return ""
	}
	return " " + strings.Join(keys, ", ")
}

func mermaidComment(col schema.Column) string {
	var parts []string
	if !col.Nullable && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.Note != "" {
		parts = append(parts, col.Note)
	}
	if len(parts) == 0 {
		return ""
	}
	return ` "` + strings.ReplaceAll(strings.Join(parts, "; "), `"`, "'") + `"`
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

// determineRelationship draws a one-to-one edge when the child column is
// unique and a one-to-many edge otherwise.
func determineRelationship(s graph.Snapshot, edge graph.Edge) string {
	if col := childColumn(s, edge); col != nil && col.Unique {
		return "||--o|"
	}
	return "||--o{"
}

func childColumn(s graph.Snapshot, edge graph.Edge) *schema.Column {
	for i := range s.Nodes {
		if s.Nodes[i].ID == edge.Target {
			return s.Nodes[i].Table.Column(edge.TargetHandle)
		}
	}
	return nil
}

func nodeLabels(s graph.Snapshot) map[string]string {
	labels := make(map[string]string, len(s.Nodes))
	for _, n := range s.Nodes {
		labels[n.ID] = n.Label
	}
	return labels
}
