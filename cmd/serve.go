package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/FranLegon/drive-doc-relay/internal/config"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"github.com/FranLegon/drive-doc-relay/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
	serveDev  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay",
	Long: `Starts the HTTP relay on the configured address. The server shuts down
gracefully on SIGINT or SIGTERM.

The memory provider keeps documents inside the process and loses them on exit.
It is meant for local development and is only served with --dev.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := checkServeProvider(cfg, serveDev); err != nil {
			return err
		}

		factory, err := newFactory(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.NewServer(cfg, factory, newRunner(cfg)).Run(ctx, nil)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Allow serving the in-memory provider")
}

// checkServeProvider refuses the in-memory provider outside development runs
func checkServeProvider(cfg *config.Config, dev bool) error {
	if cfg.Provider != model.ProviderMemory {
		return nil
	}
	if !dev {
		return errors.New("the memory provider is for development only; pass --dev to serve it")
	}
	logger.Warning("Serving the in-memory provider; documents are lost when the process exits")
	return nil
}
