package generators

import (
	"fmt"
	"strings"

	"erdlive/internal/graph"
	"erdlive/internal/schema"
	"erdlive/internal/transform"
)

func GeneratePlantUML(s graph.Snapshot) string {
	var builder strings.Builder

	builder.WriteString("@startuml\n")
	builder.WriteString("!theme plain\n")
	builder.WriteString("skinparam linetype ortho\n\n")

	for _, node := range s.Nodes {
		builder.WriteString(fmt.Sprintf("entity \"%s\" as %s {\n", node.Label, cleanName(node.Label)))

		for _, col := range node.Table.Columns {
			if col.PrimaryKey {
				builder.WriteString(fmt.Sprintf("  * %s : %s <<PK>>%s\n", col.Name, formatPlantUMLType(col), plantUMLStereotypes(col)))
			}
		}

		builder.WriteString("  --\n")

		for _, col := range node.Table.Columns {
			if !col.PrimaryKey {
				marker := ""
				if !col.Nullable {
					marker = "* "
				}
				builder.WriteString(fmt.Sprintf("  %s%s : %s%s\n", marker, col.Name, formatPlantUMLType(col), plantUMLStereotypes(col)))
			}
		}

		if node.Table.Note != "" {
			builder.WriteString(fmt.Sprintf("  .. %s ..\n", node.Table.Note))
		}
		builder.WriteString("}\n\n")
	}

	labels := nodeLabels(s)
	for _, edge := range s.Edges {
		builder.WriteString(fmt.Sprintf("%s %s %s : %s\n",
			cleanName(labels[edge.Source]),
			determineRelationship(s, edge),
			cleanName(labels[edge.Target]),
			edge.TargetHandle))
	}

	builder.WriteString("\n@enduml\n")

	return builder.String()
}

func formatPlantUMLType(col schema.Column) string {
	t := strings.ToUpper(col.FullType())
	if len(col.EnumValues) > 0 {
		t += " {" + strings.Join(col.EnumValues, ", ") + "}"
	}
	return t
}

func plantUMLStereotypes(col schema.Column) string {
	var s string
	if len(col.ForeignKeys) > 0 {
		s += " <<FK>>"
	}
	if col.Unique && !col.PrimaryKey {
		s += " <<UNIQUE>>"
	}
	if col.Default != nil {
		s += " = " + transform.FormatDefault(col.Default)
	}
	return s
}
