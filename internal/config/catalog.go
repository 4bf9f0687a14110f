package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

// projectEntry mirrors one entry of <projects>/config.json
type projectEntry struct {
	EditorFile  string `json:"editorFile"`
	Package     string `json:"package"`
	TestClass   string `json:"testClass"`
	TestPackage string `json:"testPackage"`
}

// runtimeEntry mirrors one entry of <runtimes>/config.json
type runtimeEntry struct {
	AVD        string `json:"avd"`
	Port       int    `json:"port"`
	Sdcard     string `json:"sdcard"`
	SdcardSize int    `json:"sdcardSize"`
}

// Catalog holds the configured projects and runtimes, keyed by project name.
// Both maps share the key set; a runtime exists per project. Mismatches
// surface as misconfigured-job statuses at execution time, not as load
// errors.
type Catalog struct {
	projects map[string]models.Project
	runtimes map[string]models.Runtime
}

// LoadCatalog reads project and runtime definitions from the config.json
// files under the two directories.
func LoadCatalog(projectsPath, runtimesPath string) (*Catalog, error) {
	var projectEntries map[string]projectEntry
	if err := readJSON(filepath.Join(projectsPath, "config.json"), &projectEntries); err != nil {
		return nil, fmt.Errorf("failed to load projects config: %w", err)
	}

	var runtimeEntries map[string]runtimeEntry
	if err := readJSON(filepath.Join(runtimesPath, "config.json"), &runtimeEntries); err != nil {
		return nil, fmt.Errorf("failed to load runtimes config: %w", err)
	}

	catalog := &Catalog{
		projects: make(map[string]models.Project, len(projectEntries)),
		runtimes: make(map[string]models.Runtime, len(runtimeEntries)),
	}

	for name, entry := range projectEntries {
		if entry.EditorFile == "" || entry.Package == "" || entry.TestClass == "" || entry.TestPackage == "" {
			return nil, fmt.Errorf("project %s: editorFile, package, testClass and testPackage are required", name)
		}

		catalog.projects[name] = models.Project{
			Name:        name,
			Path:        filepath.Join(projectsPath, name),
			EditorFile:  filepath.Join(projectsPath, name, entry.EditorFile),
			Package:     entry.Package,
			TestClass:   entry.TestClass,
			TestPackage: entry.TestPackage,
		}
	}

	for name, entry := range runtimeEntries {
		if entry.AVD == "" || entry.Sdcard == "" {
			return nil, fmt.Errorf("runtime %s: avd and sdcard are required", name)
		}
		if entry.Port < 1 || entry.Port > 65535 {
			return nil, fmt.Errorf("runtime %s: invalid port %d", name, entry.Port)
		}
		if entry.SdcardSize < 1 {
			return nil, fmt.Errorf("runtime %s: invalid sdcard size %d", name, entry.SdcardSize)
		}

		catalog.runtimes[name] = models.Runtime{
			ProjectName:  name,
			Dir:          filepath.Join(runtimesPath, name),
			AVDName:      entry.AVD,
			Port:         entry.Port,
			SdcardPath:   filepath.Join(runtimesPath, name, entry.Sdcard),
			SdcardSizeMB: entry.SdcardSize,
		}
	}

	return catalog, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("malformed json in %s: %w", path, err)
	}
	return nil
}

// Project looks up a project definition by name
func (c *Catalog) Project(name string) (models.Project, bool) {
	p, ok := c.projects[name]
	return p, ok
}

// Runtime looks up the runtime configured for a project
func (c *Catalog) Runtime(projectName string) (models.Runtime, bool) {
	r, ok := c.runtimes[projectName]
	return r, ok
}

// Projects returns all projects ordered by name
func (c *Catalog) Projects() []models.Project {
	out := make([]models.Project, 0, len(c.projects))
	for _, p := range c.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Runtimes returns all runtimes ordered by project name
func (c *Catalog) Runtimes() []models.Runtime {
	out := make([]models.Runtime, 0, len(c.runtimes))
	for _, r := range c.runtimes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectName < out[j].ProjectName })
	return out
}
