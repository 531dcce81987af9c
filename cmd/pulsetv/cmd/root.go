// Package cmd implements the CLI commands for pulsetv.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pulsetv/pulsetv/internal/config"
	"github.com/pulsetv/pulsetv/internal/observability"
	"github.com/pulsetv/pulsetv/internal/version"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string

	// cfg is the loaded configuration, available to all subcommands after
	// PersistentPreRunE has run.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "pulsetv",
	Short:   "Adaptive playback quality controller for IPTV streams",
	Version: version.Short(),
	Long: `pulsetv plays IPTV streams with adaptive buffering and quality control.

It probes the connection before playback, resolves buffering and reconnect
settings from the measured speed, and continuously monitors playback health,
escalating through quality downgrades, buffer increases, stall recovery, and
bounded reconnects to keep the stream watchable on unreliable links.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return initLogging()
	}

	// These flags are not bound to viper: they only override the loaded
	// config when explicitly set, preserving the priority
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/pulsetv, $HOME/.pulsetv)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initLogging configures the default slog logger from the loaded config,
// with explicitly-set CLI flags taking precedence.
func initLogging() error {
	logCfg := cfg.Logging

	overrideIfSet(rootCmd.PersistentFlags().Lookup("log-level"), &logCfg.Level)
	overrideIfSet(rootCmd.PersistentFlags().Lookup("log-format"), &logCfg.Format)

	logCfg.Level = strings.ToLower(logCfg.Level)
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	logCfg.Format = strings.ToLower(logCfg.Format)

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}

// overrideIfSet copies an explicitly-set flag value into dst, leaving
// config/env values untouched when the flag was not provided.
func overrideIfSet(f *pflag.Flag, dst *string) {
	if f != nil && f.Changed {
		*dst = f.Value.String()
	}
}
