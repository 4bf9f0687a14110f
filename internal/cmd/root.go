// Package cmd implements the worker command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Android test job worker",
	Long: `worker runs instrumented Android test jobs against a dedicated emulator.

Jobs arrive over HTTP, run one at a time under an execution lock, and leave
their results on disk for polling. Provision the runtimes once, then serve:

  worker provision
  worker serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// bootstrap loads and validates configuration and builds the logger shared
// by every verb
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return cfg, log, nil
}
