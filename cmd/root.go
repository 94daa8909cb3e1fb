package cmd

import (
	"os"

	"github.com/FranLegon/drive-doc-relay/internal/config"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "drive-doc-relay",
	Short: "A stateless HTTP relay that files documents into a user's cloud drive.",
	Long: `drive-doc-relay accepts document uploads from a client application and stores
them in the caller's Google Drive (or OneDrive), under a fixed root folder with a set
of default subfolders. Batches made only of images are merged into a single PDF.

Every request carries the caller's own OAuth access token. The relay never stores,
refreshes or persists anything.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warning, error); overrides the config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ensureFoldersCmd)
	rootCmd.AddCommand(checkTokenCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads the configuration and applies the logging flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger.SetLevel(cfg.LogLevel())
	return cfg, nil
}
