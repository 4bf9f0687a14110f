package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/emulator"
	"github.com/google/coursebuilder-android-container-module/internal/gradle"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Prepare runtimes and projects for serving",
	Long: `Create missing emulator images, boot them, warm the gradle caches and
install the debug packages for every registered project.

Provisioning is idempotent: present runtimes are kept, incomplete ones are
rebuilt from scratch.`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

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
	if err := sdkTools.Verify(); err != nil {
		return err
	}

	commander := sdk.NewCommander(log)
	manager := emulator.NewManager(sdkTools, commander, cfg.ShowEmulator, log)
	runner := gradle.NewRunner(sdkTools, commander, log)

	// Project checkouts cannot be conjured up; fail before touching anything.
	for _, project := range catalog.Projects() {
		if _, err := os.Stat(project.Path); err != nil {
			return fmt.Errorf("project %s missing at %s", project.Name, project.Path)
		}
	}

	for _, rt := range catalog.Runtimes() {
		if manager.Exists(rt) {
			log.Info("runtime present", zap.String("name", rt.ProjectName))
			continue
		}

		// An incomplete image set is rebuilt rather than repaired.
		if err := manager.Destroy(ctx, rt); err != nil {
			return fmt.Errorf("failed to clear runtime %s: %w", rt.ProjectName, err)
		}
		if err := manager.Create(ctx, rt); err != nil {
			return fmt.Errorf("failed to create runtime %s: %w", rt.ProjectName, err)
		}
	}

	for _, rt := range catalog.Runtimes() {
		if manager.Ready(ctx, rt) {
			log.Info("runtime already running", zap.String("name", rt.ProjectName))
			continue
		}
		if _, err := manager.Start(rt); err != nil {
			return fmt.Errorf("failed to start runtime %s: %w", rt.ProjectName, err)
		}
	}

	for _, rt := range catalog.Runtimes() {
		if err := manager.WaitReady(ctx, rt, cfg.ReadyPollInterval(), cfg.ReadyTimeout()); err != nil {
			return fmt.Errorf("runtime %s: %w", rt.ProjectName, err)
		}
	}

	for _, project := range catalog.Projects() {
		built, output, err := runner.Build(ctx, project)
		if err != nil {
			return err
		}
		if !built {
			log.Error("warm build failed",
				zap.String("project", project.Name),
				zap.String("output", output))
			return fmt.Errorf("warm build failed for project %s", project.Name)
		}

		if _, ok := catalog.Runtime(project.Name); !ok {
			log.Warn("project has no runtime, skipping install", zap.String("project", project.Name))
			continue
		}

		installed, output, err := runner.Install(ctx, project)
		if err != nil {
			return err
		}
		if !installed {
			log.Error("seed install failed",
				zap.String("project", project.Name),
				zap.String("output", output))
			return fmt.Errorf("seed install failed for project %s", project.Name)
		}
	}

	log.Info("provisioning complete",
		zap.Int("projects", len(catalog.Projects())),
		zap.Int("runtimes", len(catalog.Runtimes())))
	return nil
}
