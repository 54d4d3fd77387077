// Package main implements the wabridge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wabridge/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wabridge",
	Short: "wabridge - programmatic messaging client over a controlled browser",
	Long: `wabridge drives the messaging web app through a real Chrome page:
it injects an access layer into the page, republishes the app's internal
object-change notifications as a typed event stream, and carries commands
(send, archive, fetch) back into the page.

The first run shows a pairing screen in the controlled browser; captured
session tokens can be persisted so later runs reconnect without re-pairing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if !verbose {
			applyLogLevel(zapCfg, cfg.Logging.Level)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func applyLogLevel(zapCfg zap.Config, level string) {
	switch level {
	case "debug":
		zapCfg.Level.SetLevel(zapcore.DebugLevel)
	case "warn":
		zapCfg.Level.SetLevel(zapcore.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zapcore.ErrorLevel)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wabridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wabridge " + version)
	},
}

const version = "0.3.0"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "wabridge.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
