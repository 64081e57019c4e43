// Package generators renders a diagram snapshot in the supported text
// formats.
package generators

import (
	"errors"
	"fmt"
	"strings"

	"erdlive/internal/graph"
)

const (
	FormatMermaid  = "mermaid"
	FormatPlantUML = "plantuml"
	FormatGraphviz = "graphviz"
	FormatSQL      = "sql"
)

var ErrUnknownFormat = errors.New("unknown diagram format")

var extensions = map[string]string{
	FormatMermaid:  ".mmd",
	FormatPlantUML: ".puml",
	FormatGraphviz: ".dot",
	FormatSQL:      ".sql",
}

func Formats() []string {
	return []string{FormatMermaid, FormatPlantUML, FormatGraphviz, FormatSQL}
}

// Extension is the conventional file extension for format, or "" when the
// format is unknown.
func Extension(format string) string {
	return extensions[strings.ToLower(format)]
}

func Render(format string, s graph.Snapshot) (string, error) {
	switch strings.ToLower(format) {
	case FormatMermaid:
		return GenerateMermaid(s), nil
	case FormatPlantUML:
		return GeneratePlantUML(s), nil
	case FormatGraphviz:
		return GenerateGraphviz(s), nil
	case FormatSQL:
		return s.ExportedText, nil
	}
	return "", fmt.Errorf("%w %q, valid formats: %s", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
}
