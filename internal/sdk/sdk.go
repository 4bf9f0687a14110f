// Package sdk locates Android SDK command-line tools and runs them as child
// processes.
package sdk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SDK describes an installed Android SDK tree
type SDK struct {
	Root string
}

// New returns an SDK rooted at the given directory
func New(root string) *SDK {
	return &SDK{Root: root}
}

// Installed reports whether the SDK root exists
func (s *SDK) Installed() bool {
	_, err := os.Stat(s.Root)
	return err == nil
}

// Adb returns the path of the adb tool
func (s *SDK) Adb() string {
	return filepath.Join(s.Root, "platform-tools", "adb")
}

// Android returns the path of the android management tool
func (s *SDK) Android() string {
	return filepath.Join(s.Root, "tools", "android")
}

// Emulator returns the path of the emulator launcher
func (s *SDK) Emulator() string {
	return filepath.Join(s.Root, "tools", "emulator")
}

// Mksdcard returns the path of the sdcard image tool
func (s *SDK) Mksdcard() string {
	return filepath.Join(s.Root, "tools", "mksdcard")
}

// Verify checks that the SDK root and its required tools are present
func (s *SDK) Verify() error {
	if !s.Installed() {
		return fmt.Errorf("android sdk not found at %s", s.Root)
	}

	for _, tool := range []string{s.Adb(), s.Android(), s.Emulator(), s.Mksdcard()} {
		if _, err := os.Stat(tool); err != nil {
			return fmt.Errorf("sdk tool missing: %s", tool)
		}
	}
	return nil
}

// ShellEnv returns the extra environment variables SDK commands run with.
// DISPLAY is forwarded only for headed runs and must be set in that case.
func (s *SDK) ShellEnv(headed bool) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	env := []string{
		"ANDROID_HOME=" + s.Root,
		"ANDROID_SDK_HOME=" + home,
	}

	if headed {
		display := os.Getenv("DISPLAY")
		if display == "" {
			return nil, errors.New("DISPLAY must be set to run a headed emulator")
		}
		env = append(env, "DISPLAY="+display)
	}

	return env, nil
}
