package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahart-dev/vaultmind/internal/app"
	"github.com/ahart-dev/vaultmind/internal/config"
	"github.com/ahart-dev/vaultmind/internal/httpapi"
	"github.com/ahart-dev/vaultmind/internal/mcpsrv"
)

// newServeCmd creates the serve command, which runs either the HTTP API or
// the MCP stdio surface against the same Application.
func newServeCmd() *cobra.Command {
	var transport string
	var bindOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vaultmind server",
		Long:  `serve starts either the HTTP API (search, index control, metrics) or the MCP stdio surface, sharing the same wired search engine and job controller.`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			root, err := config.FindProjectRoot(cfgDir)
			if err != nil {
				root = cfgDir
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if transport != "" {
				cfg.Server.Transport = transport
			}
			if bindOverride != "" {
				cfg.Server.BindAddress = bindOverride
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer application.Close()

			switch cfg.Server.Transport {
			case "http":
				return runHTTPServer(ctx, cfg, application)
			case "stdio", "":
				return mcpsrv.New(application).Serve(ctx)
			default:
				return fmt.Errorf("unknown transport %q (supported: stdio, http)", cfg.Server.Transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "override the configured transport: stdio or http")
	cmd.Flags().StringVar(&bindOverride, "bind", "", "override the configured HTTP bind address")

	return cmd
}

func runHTTPServer(ctx context.Context, cfg *config.Config, application *app.Application) error {
	server := httpapi.New(application.Engine, application.Jobs, cfg.Server.BearerToken,
		httpapi.WithMetrics(application.Metrics),
		httpapi.WithMetricsPath(cfg.Server.MetricsPath),
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.BindAddress,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_starting", slog.String("addr", cfg.Server.BindAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("http_server_stopping")
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
