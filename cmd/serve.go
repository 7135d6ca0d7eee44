package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/server"
)

// addr overrides server.addr from the configuration.
var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the invoice HTTP API",
	Long: `Start the HTTP API. Stale request workspaces are swept and the stored
template is loaded before the listener opens. A missing template is not
fatal: generation answers 404 until one is uploaded.

SIGINT and SIGTERM trigger a graceful shutdown that waits for in-flight
requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(parent context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	cfg := a.cfg.Server
	if addr != "" {
		cfg.Addr = addr
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("Starting invoice API",
		zap.String("addr", cfg.Addr),
		zap.String("mode", cfg.Mode),
		zap.String("template", a.store.Path()))

	return server.New(a.svc, cfg, a.log).Run(ctx)
}
