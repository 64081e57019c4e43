package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a schema document and list its warnings",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := newSetup(cmd)
	if err != nil {
		return err
	}
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return fmt.Errorf("invalid --strict: %w", err)
	}

	text, err := readSchema(cmd, args[0])
	if err != nil {
		return err
	}
	res, err := s.transformer.Transform(text)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	printWarnings(cmd.ErrOrStderr(), res.Warnings)
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tables, %d relationships, %d warnings\n",
		len(res.Tables), len(res.Relationships), len(res.Warnings))

	if strict && len(res.Warnings) > 0 {
		return fmt.Errorf("schema has %d warnings", len(res.Warnings))
	}
	return nil
}
