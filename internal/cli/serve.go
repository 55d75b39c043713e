package cli

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/api"
	"github.com/waffletower/InvokeAI/internal/app/engine"
	"github.com/waffletower/InvokeAI/internal/infra/logger"
)

func serveCmd() *cobra.Command {
	var workspace string
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sessions API and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			cleanup := startLogging(ws.root, debugFlag(cmd), true)
			defer cleanup()

			eng, err := ws.open(engine.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			cfg := ws.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(eng.Sessions, eng.Metrics, cfg, api.WithLogger(logger.Component("api")))
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr in invoke.yaml)")
	return c
}
