package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Project is one registered Android project: immutable reference data
// describing the canonical checkout and its build/test identifiers. Jobs
// never touch the canonical tree directly, only a staged copy of it.
type Project struct {
	Name        string
	Path        string
	EditorFile  string
	Package     string
	TestClass   string
	TestPackage string
}

// Gradlew returns the path of the project's gradle wrapper script
func (p Project) Gradlew() string {
	return filepath.Join(p.Path, "gradlew")
}

// Rehomed returns a copy of the project rooted at dir, with the editor file
// path translated into the new tree.
func (p Project) Rehomed(dir string) (Project, error) {
	relEditor, err := SplitProjectPath(p.EditorFile, p.Name)
	if err != nil {
		return Project{}, err
	}

	staged := p
	staged.Path = dir
	staged.EditorFile = filepath.Join(dir, relEditor)
	return staged, nil
}

// SplitProjectPath extracts the portion of path below the "/<project>/"
// directory infix. Patch paths and editor files are addressed this way so
// they can be rehomed from the canonical tree into a staged copy.
func SplitProjectPath(path, project string) (string, error) {
	infix := fmt.Sprintf("/%s/", project)
	_, suffix, found := strings.Cut(path, infix)
	if !found {
		return "", fmt.Errorf("path %q does not contain project directory %q", path, infix)
	}
	return suffix, nil
}

// Runtime describes one emulated target environment: an AVD plus sdcard
// rooted in a per-project directory and bound to an emulator console port.
type Runtime struct {
	ProjectName  string
	Dir          string
	AVDName      string
	Port         int
	SdcardPath   string
	SdcardSizeMB int
}

// AVDDir returns the directory holding the AVD definition
func (r Runtime) AVDDir() string {
	return filepath.Join(r.Dir, r.AVDName)
}

// ConsoleName returns the adb serial of the runtime's emulator
func (r Runtime) ConsoleName() string {
	return fmt.Sprintf("emulator-%d", r.Port)
}
