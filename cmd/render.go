package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erdlive/internal/generators"
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a schema document as a diagram",
	Long: `Transforms a schema document and writes it as a diagram. Use "-" to read
the document from standard input. Warnings are printed to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("format", "f", "mermaid", "Output format: "+strings.Join(generators.Formats(), ", "))
	renderCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	s, err := newSetup(cmd)
	if err != nil {
		return err
	}
	format := flagOr(cmd, "format", s.cfg.Output.Format)
	output := flagOr(cmd, "output", s.cfg.Output.File)

	text, err := readSchema(cmd, args[0])
	if err != nil {
		return err
	}
	if err := s.engine.Submit(text, false); err != nil {
		return fmt.Errorf("failed to transform schema: %w", err)
	}

	snap := s.engine.Snapshot()
	printWarnings(cmd.ErrOrStderr(), snap.Warnings)

	content, err := generators.Render(format, snap)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, output, content); err != nil {
		return err
	}

	if output != "" && output != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Diagram generated: %s\n", output)
		fmt.Fprintf(cmd.ErrOrStderr(), "Format: %s\n", format)
		fmt.Fprintf(cmd.ErrOrStderr(), "Tables: %d\n", len(snap.Nodes))
		fmt.Fprintf(cmd.ErrOrStderr(), "Relationships: %d\n", len(snap.Edges))
	}
	return nil
}
