package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/lock"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release a stale execution lock",
	Long: `Release the execution lock left behind by a crashed job. The worker
never reclaims a lock on its own, so after a hard kill the lock file must
be removed by hand before new jobs are accepted.

Examples:
  worker unlock`,
	RunE: runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	lk := lock.New(cfg.LockPath, log)
	if !lk.Active() {
		log.Info("lock not held, nothing to release")
		return nil
	}

	holder, err := lk.Holder()
	if err != nil {
		return fmt.Errorf("failed to read lock holder: %w", err)
	}

	if err := lk.Release(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	log.Info("lock released", zap.String("ticket", holder))
	return nil
}
