package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"erdlive/internal/server"
	"erdlive/internal/watch"
	"erdlive/pkg/config"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "Serve a live diagram over HTTP",
	Long: `Starts the diagram API. When a schema file is given it is loaded on start,
and with --watch it is reloaded whenever it changes.

Routes:
  GET  /healthz
  GET  /api/diagram
  PUT  /api/schema          {"text": "...", "preserve_positions": true}
  POST /api/layout          {"positions": {"public.users": {"x": 0, "y": 0}}, "commit": true}
  POST /api/history/undo
  POST /api/history/redo
  GET  /api/export/:format`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	serveCmd.Flags().StringSlice("allow-origins", nil, "CORS origins allowed to call the API (default *)")
	serveCmd.Flags().Bool("watch", false, "Reload the schema file when it changes")
	rootCmd.AddCommand(serveCmd)
}

// serverConfig overlays the command-line flags on the configured server
// section.
func serverConfig(cmd *cobra.Command, cfg config.ServerConfig) (config.ServerConfig, error) {
	cfg.Addr = flagOr(cmd, "addr", cfg.Addr)
	if cmd.Flags().Changed("allow-origins") {
		origins, err := cmd.Flags().GetStringSlice("allow-origins")
		if err != nil {
			return cfg, fmt.Errorf("invalid --allow-origins: %w", err)
		}
		cfg.AllowOrigins = origins
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := newSetup(cmd)
	if err != nil {
		return err
	}
	serverCfg, err := serverConfig(cmd, s.cfg.Server)
	if err != nil {
		return err
	}
	watchFile, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fmt.Errorf("invalid --watch: %w", err)
	}

	if len(args) == 1 && !watchFile {
		text, err := readSchema(cmd, args[0])
		if err != nil {
			return err
		}
		if err := s.engine.Submit(text, false); err != nil {
			s.log.WithError(err).Error("initial schema rejected")
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := server.New(s.engine, serverCfg, s.log.WithField("component", "server"))
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if len(args) == 1 && watchFile {
		w := watch.New(args[0], s.engine,
			watch.WithDebounce(s.cfg.Watch.Debounce),
			watch.WithLogger(s.log.WithField("component", "watch")),
		)
		g.Go(func() error { return w.Run(ctx) })
	}

	return g.Wait()
}
