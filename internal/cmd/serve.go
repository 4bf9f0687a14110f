package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/api"
	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/db"
	"github.com/google/coursebuilder-android-container-module/internal/emulator"
	"github.com/google/coursebuilder-android-container-module/internal/gradle"
	"github.com/google/coursebuilder-android-container-module/internal/lock"
	"github.com/google/coursebuilder-android-container-module/internal/observability"
	"github.com/google/coursebuilder-android-container-module/internal/orchestrator"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker HTTP service",
	Long: `Start the HTTP service that accepts test jobs and answers status polls.

The service expects provisioned runtimes; run "worker provision" first.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sdkTools := sdk.New(cfg.SdkPath)
	if err := sdkTools.Verify(); err != nil {
		return err
	}

	commander := sdk.NewCommander(log)
	lk := lock.New(cfg.LockPath, log)
	runner := gradle.NewRunner(sdkTools, commander, log)
	manager := emulator.NewManager(sdkTools, commander, cfg.ShowEmulator, log)

	orch := orchestrator.New(cfg, catalog, lk, runner, manager, database, metrics, log)
	dispatcher := orchestrator.NewDispatcher(orch, log)
	server := api.NewServer(cfg, catalog, lk, dispatcher, database, metrics, registry, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("worker listening",
			zap.String("addr", httpServer.Addr),
			zap.String("worker_url", cfg.WorkerURL),
			zap.String("boot_id", uuid.New().String()),
			zap.Int("projects", len(catalog.Projects())))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown did not finish cleanly", zap.Error(err))
	}

	// Jobs in flight keep their emulator and lock until done; wait for them
	// rather than abandoning half-written results.
	log.Info("draining in-flight jobs")
	dispatcher.Drain()

	log.Info("worker stopped")
	return nil
}
