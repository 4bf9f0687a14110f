// Package gradle builds, installs and exercises a staged project through its
// gradle wrapper and adb.
package gradle

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/models"
	"github.com/google/coursebuilder-android-container-module/internal/sdk"
)

const (
	// Needles the tools print as whole lines; exit codes are not reliable
	// across gradle and adb versions.
	buildSucceededNeedle = "BUILD SUCCESSFUL"
	testsFailedNeedle    = "FAILURES!!!"

	instrumentationRunner = "android.test.InstrumentationTestRunner"
	screenshotDevicePath  = "/sdcard/Robotium-screenshots/result.jpg"
	screenshotFileName    = "result.jpg"
)

// Runner drives gradle and instrumentation runs for staged projects
type Runner struct {
	sdk *sdk.SDK
	cmd sdk.Commander
	log *zap.Logger
}

// NewRunner returns a Runner executing tools through the given Commander
func NewRunner(s *sdk.SDK, cmd sdk.Commander, log *zap.Logger) *Runner {
	return &Runner{sdk: s, cmd: cmd, log: log}
}

// gradle runs one wrapper task inside the project directory
func (r *Runner) gradle(ctx context.Context, project models.Project, task string) (sdk.Result, error) {
	env, err := r.sdk.ShellEnv(false)
	if err != nil {
		return sdk.Result{}, err
	}

	res, err := r.cmd.Run(ctx, sdk.Command{
		Path: project.Gradlew(),
		Args: []string{task},
		Dir:  project.Path,
		Env:  env,
	})
	if err != nil {
		return sdk.Result{}, fmt.Errorf("failed to run gradle %s: %w", task, err)
	}
	return res, nil
}

// Install builds and installs the project's debug and test packages onto the
// running emulator. Success requires the gradle needle for both tasks; the
// combined output is returned for diagnostics.
func (r *Runner) Install(ctx context.Context, project models.Project) (bool, string, error) {
	var output strings.Builder

	for _, task := range []string{"installDebug", "installDebugTest"} {
		res, err := r.gradle(ctx, project, task)
		if err != nil {
			return false, output.String(), err
		}
		output.WriteString(res.Output)

		if !res.HasLine(buildSucceededNeedle) {
			r.log.Info("gradle task failed",
				zap.String("task", task),
				zap.String("project", project.Name))
			return false, output.String(), nil
		}
		r.log.Info("gradle task succeeded",
			zap.String("task", task),
			zap.String("project", project.Name))
	}

	return true, output.String(), nil
}

// Test runs the project's instrumentation suite on the connected emulator.
// The failure needle decides the verdict; a passing run returns the result
// screenshot base64-encoded when the suite produced one.
func (r *Runner) Test(ctx context.Context, project models.Project) (bool, string, error) {
	env, err := r.sdk.ShellEnv(false)
	if err != nil {
		return false, "", err
	}

	res, err := r.cmd.Run(ctx, sdk.Command{
		Path: r.sdk.Adb(),
		Args: []string{
			"shell", "am", "instrument", "-w",
			"-e", "class", project.TestClass,
			project.TestPackage + "/" + instrumentationRunner,
		},
		Dir: project.Path,
		Env: env,
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to run instrumentation: %w", err)
	}

	if res.HasLine(testsFailedNeedle) {
		r.log.Info("instrumentation reported failures", zap.String("project", project.Name))
		return false, res.Output, nil
	}

	r.log.Info("instrumentation passed", zap.String("project", project.Name))
	return true, r.pullScreenshot(ctx, project, env), nil
}

// pullScreenshot fetches the suite's result image from the device. Suites
// without a screenshot leave the payload empty.
func (r *Runner) pullScreenshot(ctx context.Context, project models.Project, env []string) string {
	res, err := r.cmd.Run(ctx, sdk.Command{
		Path: r.sdk.Adb(),
		Args: []string{"pull", screenshotDevicePath, project.Path},
		Env:  env,
	})
	if err != nil || res.ExitCode != 0 {
		r.log.Warn("failed to pull result screenshot", zap.String("project", project.Name))
		return ""
	}

	data, err := os.ReadFile(filepath.Join(project.Path, screenshotFileName))
	if err != nil {
		r.log.Warn("result screenshot missing after pull", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Build compiles the project without installing anything, warming gradle's
// caches during provisioning
func (r *Runner) Build(ctx context.Context, project models.Project) (bool, string, error) {
	res, err := r.gradle(ctx, project, "build")
	if err != nil {
		return false, "", err
	}
	return res.HasLine(buildSucceededNeedle), res.Output, nil
}

// Uninstall removes the project's debug and test packages from the emulator.
// A task failing its needle is logged and skipped; packages may simply not
// be installed.
func (r *Runner) Uninstall(ctx context.Context, project models.Project) error {
	for _, task := range []string{"uninstallDebugTest", "uninstallDebug"} {
		res, err := r.gradle(ctx, project, task)
		if err != nil {
			return err
		}
		if !res.HasLine(buildSucceededNeedle) {
			r.log.Info("gradle uninstall task failed",
				zap.String("task", task),
				zap.String("project", project.Name))
		}
	}
	return nil
}
