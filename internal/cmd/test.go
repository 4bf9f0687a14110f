package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/db"
	"github.com/google/coursebuilder-android-container-module/internal/emulator"
	"github.com/google/coursebuilder-android-container-module/internal/gradle"
	"github.com/google/coursebuilder-android-container-module/internal/lock"
	"github.com/google/coursebuilder-android-container-module/internal/models"
	"github.com/google/coursebuilder-android-container-module/internal/observability"
	"github.com/google/coursebuilder-android-container-module/internal/orchestrator"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
	"github.com/google/coursebuilder-android-container-module/internal/staging"
)

var testCmd = &cobra.Command{
	Use:   "test <project>",
	Short: "Run one local smoke job against a project",
	Long: `Run a complete job through the worker without the HTTP layer: the
project's own editor file is submitted as a no-op patch, so a healthy
installation finishes with tests_succeeded.

Examples:
  worker test calculator`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.NewDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	catalog, err := config.LoadCatalog(cfg.ProjectsPath, cfg.RuntimesPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	project, ok := catalog.Project(args[0])
	if !ok {
		return fmt.Errorf("unknown project %q", args[0])
	}

	contents, err := os.ReadFile(project.EditorFile)
	if err != nil {
		return fmt.Errorf("failed to read editor file: %w", err)
	}

	sdkTools := sdk.New(cfg.SdkPath)
	if err := sdkTools.Verify(); err != nil {
		return err
	}

	commander := sdk.NewCommander(log)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	runner := gradle.NewRunner(sdkTools, commander, log)
	manager := emulator.NewManager(sdkTools, commander, cfg.ShowEmulator, log)
	lk := lock.New(cfg.LockPath, log)

	orch := orchestrator.New(cfg, catalog, lk, runner, manager, database, metrics, log)

	ticket := fmt.Sprintf("local-%d", time.Now().Unix())
	patches := []models.Patch{{Filename: project.EditorFile, Contents: string(contents)}}

	log.Info("running smoke job",
		zap.String("ticket", ticket),
		zap.String("project", project.Name))
	orch.Run(cmd.Context(), ticket, project.Name, patches)

	record := staging.LoadRecord(cfg.ResultsPath, ticket)
	if record.Status != models.StatusTestsSucceeded {
		return fmt.Errorf("smoke job finished %s: %s", record.Status, record.Payload)
	}

	log.Info("smoke job passed", zap.String("ticket", ticket))
	return nil
}
