package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/api"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: "Serve starts the long-running process: the query endpoint, webhook document " +
		"ingestion with background task tracking, health checks, the async evaluation " +
		"worker, and (when enabled) the Prometheus scrape endpoint.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	addr := cfg.Server.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	opts := []api.Option{
		api.WithAPILogger(logger),
		api.WithHealthCheck("tracker", a.Tracker.Ping),
	}
	if a.Graph != nil {
		opts = append(opts, api.WithHealthCheck("graph", a.Graph.Health))
	}
	if a.Source != nil {
		opts = append(opts, api.WithDocumentSource(a.Source))
	}

	srv := api.NewServer(addr, a.Query, a.Ingestion, a.Tasks, opts...)
	serveErr := srv.Start()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown incomplete", "error", err)
	}
	return nil
}
