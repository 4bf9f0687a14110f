package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/db"
	"github.com/google/coursebuilder-android-container-module/internal/emulator"
	"github.com/google/coursebuilder-android-container-module/internal/gradle"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

var cleanScope string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove worker state",
	Long: `Remove installed packages, stored results, emulator images and old
journal rows.

Examples:
  worker clean                     # everything
  worker clean --scope results     # stored job results only
  worker clean --scope emulators   # uninstall packages from emulators
  worker clean --scope runtimes    # stop and destroy emulator images
  worker clean --scope journal     # prune journal rows past retention`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVar(&cleanScope, "scope", "all", "What to clean: all, emulators, results, runtimes or journal")
}

func runClean(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	switch cleanScope {
	case "all", "emulators", "results", "runtimes", "journal":
	default:
		return fmt.Errorf("unknown scope %q", cleanScope)
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	catalog, err := config.LoadCatalog(cfg.ProjectsPath, cfg.RuntimesPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	sdkTools := sdk.New(cfg.SdkPath)
	commander := sdk.NewCommander(log)
	manager := emulator.NewManager(sdkTools, commander, cfg.ShowEmulator, log)
	runner := gradle.NewRunner(sdkTools, commander, log)

	if cleanScope == "all" || cleanScope == "emulators" {
		for _, project := range catalog.Projects() {
			if err := runner.Uninstall(ctx, project); err != nil {
				log.Warn("failed to uninstall packages",
					zap.String("project", project.Name),
					zap.Error(err))
			}
		}
	}

	if cleanScope == "all" || cleanScope == "results" {
		if err := os.RemoveAll(cfg.ResultsPath); err != nil {
			return fmt.Errorf("failed to remove results: %w", err)
		}
		log.Info("results removed", zap.String("path", cfg.ResultsPath))
	}

	if cleanScope == "all" || cleanScope == "runtimes" {
		for _, rt := range catalog.Runtimes() {
			if err := manager.Stop(ctx, rt); err != nil {
				log.Warn("failed to stop emulator",
					zap.String("name", rt.ProjectName),
					zap.Error(err))
			}
			if err := manager.Destroy(ctx, rt); err != nil {
				return fmt.Errorf("failed to destroy runtime %s: %w", rt.ProjectName, err)
			}
		}
	}

	if cleanScope == "all" || cleanScope == "journal" {
		database, err := db.NewDB(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close()

		if err := database.CleanOldEvents(cfg.JournalRetentionDays); err != nil {
			return fmt.Errorf("failed to prune journal: %w", err)
		}
		log.Info("journal pruned", zap.Int("retention_days", cfg.JournalRetentionDays))
	}

	log.Info("clean finished", zap.String("scope", cleanScope))
	return nil
}
