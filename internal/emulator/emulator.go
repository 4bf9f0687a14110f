// Package emulator provisions and drives Android virtual devices: image
// creation, boot, readiness probing and shutdown.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/models"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

const (
	// Platform and ABI the registered projects are built against.
	targetID  = "android-19"
	targetABI = "default/armeabi-v7a"
)

// ErrReadyTimeout is returned by WaitReady when the emulator never finishes
// booting
var ErrReadyTimeout = errors.New("emulator did not become ready")

// Manager provisions and controls the emulator of a runtime
type Manager struct {
	sdk    *sdk.SDK
	cmd    sdk.Commander
	headed bool
	log    *zap.Logger
}

// NewManager returns a Manager running SDK tools through the given
// Commander. Headed managers boot emulators with a visible window and
// require DISPLAY.
func NewManager(s *sdk.SDK, cmd sdk.Commander, headed bool, log *zap.Logger) *Manager {
	return &Manager{sdk: s, cmd: cmd, headed: headed, log: log}
}

// Exists reports whether the runtime's disk image set is complete
func (m *Manager) Exists(rt models.Runtime) bool {
	for _, path := range []string{rt.Dir, rt.SdcardPath, rt.AVDDir()} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// Create provisions the runtime's sdcard image and AVD under its directory.
// An existing image set must be destroyed first.
func (m *Manager) Create(ctx context.Context, rt models.Runtime) error {
	if m.Exists(rt) {
		return fmt.Errorf("runtime %s already exists at %s", rt.ProjectName, rt.Dir)
	}

	env, err := m.sdk.ShellEnv(false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(rt.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}

	res, err := m.cmd.Run(ctx, sdk.Command{
		Path: m.sdk.Mksdcard(),
		Args: []string{fmt.Sprintf("%dM", rt.SdcardSizeMB), rt.SdcardPath},
		Env:  env,
	})
	if err != nil {
		return fmt.Errorf("failed to run mksdcard: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mksdcard exited with %d: %s", res.ExitCode, res.Output)
	}
	m.log.Info("sdcard created",
		zap.String("path", rt.SdcardPath),
		zap.Int("size_mb", rt.SdcardSizeMB))

	// The tool prompts whether to create a custom hardware profile; a bare
	// newline takes the default answer.
	res, err = m.cmd.Run(ctx, sdk.Command{
		Path:  m.sdk.Android(),
		Args:  []string{"create", "avd", "-n", rt.AVDName, "-t", targetID, "--abi", targetABI, "-p", rt.AVDDir()},
		Env:   env,
		Stdin: "\n",
	})
	if err != nil {
		return fmt.Errorf("failed to run android create avd: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("android create avd exited with %d: %s", res.ExitCode, res.Output)
	}
	m.log.Info("avd created",
		zap.String("name", rt.AVDName),
		zap.String("target", targetID))

	return nil
}

// Destroy removes the runtime's AVD and disk images. When the SDK tool
// cannot delete the AVD, its files are removed directly.
func (m *Manager) Destroy(ctx context.Context, rt models.Runtime) error {
	env, err := m.sdk.ShellEnv(false)
	if err != nil {
		return err
	}

	res, err := m.cmd.Run(ctx, sdk.Command{
		Path: m.sdk.Android(),
		Args: []string{"delete", "avd", "-n", rt.AVDName},
		Env:  env,
	})
	if err != nil || res.ExitCode != 0 {
		m.log.Warn("android delete avd failed, removing files directly",
			zap.String("avd", rt.AVDName))
		m.removeAVDFiles(rt)
	}

	for _, path := range []string{rt.SdcardPath, rt.Dir} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	m.log.Info("runtime destroyed", zap.String("name", rt.ProjectName))
	return nil
}

// removeAVDFiles deletes the AVD directory and the ini the SDK keeps under
// the user's .android directory
func (m *Manager) removeAVDFiles(rt models.Runtime) {
	if err := os.RemoveAll(rt.AVDDir()); err != nil {
		m.log.Warn("failed to remove avd directory",
			zap.String("path", rt.AVDDir()),
			zap.Error(err))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	ini := filepath.Join(home, ".android", "avd", strings.ToLower(rt.AVDName)+".ini")
	if err := os.Remove(ini); err != nil && !os.IsNotExist(err) {
		m.log.Warn("failed to remove avd ini",
			zap.String("path", ini),
			zap.Error(err))
	}
}

// Start boots the runtime's emulator detached from the calling process and
// returns its pid. The emulator outlives individual jobs; Stop shuts it
// down.
func (m *Manager) Start(rt models.Runtime) (int, error) {
	env, err := m.sdk.ShellEnv(m.headed)
	if err != nil {
		return 0, err
	}

	args := []string{
		"-avd", rt.AVDName,
		"-sdcard", rt.SdcardPath,
		"-port", strconv.Itoa(rt.Port),
		"-force-32bit",
	}
	if !m.headed {
		args = append(args, "-no-audio", "-no-window")
	}

	pid, err := m.cmd.Start(sdk.Command{Path: m.sdk.Emulator(), Args: args, Env: env})
	if err != nil {
		return 0, fmt.Errorf("failed to start emulator: %w", err)
	}

	m.log.Info("emulator starting",
		zap.String("avd", rt.AVDName),
		zap.Int("port", rt.Port),
		zap.Int("pid", pid),
		zap.Bool("headed", m.headed))
	return pid, nil
}

// Stop shuts down the runtime's emulator through its console. Stopping an
// emulator that is not running is not an error.
func (m *Manager) Stop(ctx context.Context, rt models.Runtime) error {
	if !m.running(ctx, rt) {
		m.log.Info("emulator not running, nothing to stop",
			zap.String("console", rt.ConsoleName()))
		return nil
	}

	env, err := m.sdk.ShellEnv(false)
	if err != nil {
		return err
	}

	res, err := m.cmd.Run(ctx, sdk.Command{
		Path: m.sdk.Adb(),
		Args: []string{"-s", rt.ConsoleName(), "emu", "kill"},
		Env:  env,
	})
	if err != nil {
		return fmt.Errorf("failed to run adb emu kill: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("adb emu kill exited with %d: %s", res.ExitCode, res.Output)
	}

	m.log.Info("emulator stopped", zap.String("console", rt.ConsoleName()))
	return nil
}

// running reports whether adb lists the runtime's console
func (m *Manager) running(ctx context.Context, rt models.Runtime) bool {
	env, err := m.sdk.ShellEnv(false)
	if err != nil {
		return false
	}

	res, err := m.cmd.Run(ctx, sdk.Command{Path: m.sdk.Adb(), Args: []string{"devices"}, Env: env})
	if err != nil || res.ExitCode != 0 {
		return false
	}

	for _, line := range res.Lines() {
		if strings.HasPrefix(line, rt.ConsoleName()) {
			return true
		}
	}
	return false
}

// Ready reports whether the emulator is booted far enough to run tests: adb
// must list the device and the boot animation must have stopped. A probe
// failure counts as not ready.
func (m *Manager) Ready(ctx context.Context, rt models.Runtime) bool {
	if !m.running(ctx, rt) {
		return false
	}

	env, err := m.sdk.ShellEnv(false)
	if err != nil {
		return false
	}

	res, err := m.cmd.Run(ctx, sdk.Command{
		Path: m.sdk.Adb(),
		Args: []string{"-s", rt.ConsoleName(), "shell", "getprop", "init.svc.bootanim"},
		Env:  env,
	})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return res.HasLine("stopped")
}

// WaitReady polls Ready until the emulator comes up, the timeout elapses or
// the context is cancelled
func (m *Manager) WaitReady(ctx context.Context, rt models.Runtime, interval, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if m.Ready(ctx, rt) {
			m.log.Info("emulator ready", zap.String("console", rt.ConsoleName()))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %s after %s", ErrReadyTimeout, rt.ConsoleName(), timeout)
		case <-tick.C:
		}
	}
}
