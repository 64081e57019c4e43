package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"erdlive/internal/generators"
	"erdlive/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-render a diagram whenever its schema file changes",
	Long: `Watches a schema document and renders it again after every change. Node
positions survive edits, so renamed or reordered tables keep their place in
the layout. A rejected edit keeps the last good diagram.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringP("format", "f", "mermaid", "Output format: "+strings.Join(generators.Formats(), ", "))
	watchCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	watchCmd.Flags().Duration("debounce", 0, "Quiet period before a change is picked up (default 150ms)")
	rootCmd.AddCommand(watchCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSetup(cmd)
	if err != nil {
		return err
	}
	format := flagOr(cmd, "format", s.cfg.Output.Format)
	output := flagOr(cmd, "output", s.cfg.Output.File)
	if _, err := generators.Render(format, s.engine.Snapshot()); err != nil {
		return err
	}
	debounce := s.cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		if debounce, err = cmd.Flags().GetDuration("debounce"); err != nil {
			return fmt.Errorf("invalid --debounce: %w", err)
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	w := watch.New(args[0], s.engine,
		watch.WithDebounce(debounce),
		watch.WithLogger(s.log.WithField("component", "watch")),
		watch.OnUpdate(func(err error) {
			if err != nil {
				s.log.WithError(err).Error("keeping previous diagram")
				return
			}
			snap := s.engine.Snapshot()
			printWarnings(cmd.ErrOrStderr(), snap.Warnings)
			content, err := generators.Render(format, snap)
			if err == nil {
				err = writeOutput(cmd, output, content)
			}
			if err != nil {
				s.log.WithError(err).Error("failed to write diagram")
			}
		}),
	)
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
