package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/emulator"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop all running emulators",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
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
	manager := emulator.NewManager(sdkTools, sdk.NewCommander(log), cfg.ShowEmulator, log)

	for _, rt := range catalog.Runtimes() {
		if err := manager.Stop(cmd.Context(), rt); err != nil {
			return fmt.Errorf("failed to stop runtime %s: %w", rt.ProjectName, err)
		}
		log.Info("runtime stopped", zap.String("name", rt.ProjectName))
	}

	return nil
}
