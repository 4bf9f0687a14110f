package staging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

func newTestEnv(t *testing.T, resultsRoot, ticket string) *Environment {
	t.Helper()
	env := NewEnvironment(resultsRoot, ticket, 30*time.Minute, zap.NewNop())
	t.Cleanup(env.TearDown)
	return env
}

// makeProject lays out a canonical project fixture with version-control and
// build-cache noise that staging must not copy
func makeProject(t *testing.T) models.Project {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "calculator")

	files := map[string]string{
		"src/MainActivity.java":  "public class MainActivity {}\n",
		"res/layout/main.xml":    "<LinearLayout/>\n",
		".git/HEAD":              "ref: refs/heads/main\n",
		".gradle/cache.bin":      "binary",
		"build/generated/R.java": "// generated\n",
	}
	for name, contents := range files {
		full := filepath.Join(path, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(contents), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(path, "gradlew"), []byte("#!/bin/sh\n"), 0755))

	return models.Project{
		Name:        "calculator",
		Path:        path,
		EditorFile:  filepath.Join(path, "src", "MainActivity.java"),
		Package:     "com.example.calculator",
		TestClass:   "com.example.calculator.MainActivityTest",
		TestPackage: "com.example.calculator.test",
	}
}

func TestSetUpCreatesLayout(t *testing.T) {
	resultsRoot := filepath.Join(t.TempDir(), "results")
	env := newTestEnv(t, resultsRoot, "abc123")

	require.NoError(t, env.SetUp())

	assert.DirExists(t, filepath.Join(resultsRoot, "abc123"))
	assert.DirExists(t, filepath.Join(resultsRoot, "abc123", "out"))
	assert.FileExists(t, filepath.Join(resultsRoot, "abc123", "log"))
	assert.Equal(t, filepath.Join(resultsRoot, "abc123", "out"), env.OutputDir())
}

func TestSetUpTicketCollision(t *testing.T) {
	resultsRoot := t.TempDir()

	first := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, first.SetUp())

	second := newTestEnv(t, resultsRoot, "abc123")
	err := second.SetUp()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTicketExists)
}

func TestSetUpSweepsExpiredSiblings(t *testing.T) {
	resultsRoot := t.TempDir()

	expired := filepath.Join(resultsRoot, "old-job")
	require.NoError(t, os.MkdirAll(filepath.Join(expired, "out"), 0755))
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(expired, stale, stale))

	fresh := filepath.Join(resultsRoot, "fresh-job")
	require.NoError(t, os.Mkdir(fresh, 0755))

	strayFile := filepath.Join(resultsRoot, "notes.txt")
	require.NoError(t, os.WriteFile(strayFile, []byte("keep"), 0644))

	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	assert.NoDirExists(t, expired)
	assert.DirExists(t, fresh)
	assert.FileExists(t, strayFile)
	assert.DirExists(t, env.Root())
}

func TestStageProjectCopiesAndPatches(t *testing.T) {
	project := makeProject(t)
	env := newTestEnv(t, t.TempDir(), "abc123")
	require.NoError(t, env.SetUp())

	patch := models.Patch{
		Filename: "/home/grader/projects/calculator/src/MainActivity.java",
		Contents: "public class MainActivity { /* patched */ }\n",
	}
	staged, err := env.StageProject(project, []models.Patch{patch})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.Root(), "calculator"), staged.Path)
	assert.FileExists(t, filepath.Join(staged.Path, "res", "layout", "main.xml"))
	assert.NoDirExists(t, filepath.Join(staged.Path, ".git"))
	assert.NoDirExists(t, filepath.Join(staged.Path, ".gradle"))

	info, err := os.Stat(filepath.Join(staged.Path, "gradlew"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "gradlew must stay executable")

	patched, err := os.ReadFile(filepath.Join(staged.Path, "src", "MainActivity.java"))
	require.NoError(t, err)
	assert.Equal(t, patch.Contents, string(patched))

	// The canonical tree must be untouched.
	canonical, err := os.ReadFile(project.EditorFile)
	require.NoError(t, err)
	assert.Equal(t, "public class MainActivity {}\n", string(canonical))
}

func TestStageProjectRehomesEditorFile(t *testing.T) {
	project := makeProject(t)
	env := newTestEnv(t, t.TempDir(), "abc123")
	require.NoError(t, env.SetUp())

	staged, err := env.StageProject(project, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(staged.Path, "src", "MainActivity.java"), staged.EditorFile)
}

func TestStageProjectPatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		patch   models.Patch
		wantErr error
	}{
		{
			name:  "missing project infix",
			patch: models.Patch{Filename: "/somewhere/else/MainActivity.java", Contents: "x"},
		},
		{
			name:    "target file does not exist",
			patch:   models.Patch{Filename: "/p/calculator/src/Missing.java", Contents: "x"},
			wantErr: ErrPatchTarget,
		},
		{
			name:    "target escapes staged tree",
			patch:   models.Patch{Filename: "/p/calculator/../../../etc/passwd", Contents: "x"},
			wantErr: ErrPatchTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := makeProject(t)
			env := newTestEnv(t, t.TempDir(), "abc123")
			require.NoError(t, env.SetUp())

			_, err := env.StageProject(project, []models.Patch{tt.patch})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoadRecord(t *testing.T) {
	resultsRoot := t.TempDir()
	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	record := models.NewJobRecord()
	require.NoError(t, record.SetStatus(models.StatusTestsSucceeded))
	record.Payload = "aW1hZ2U="
	require.NoError(t, env.Save(record))

	loaded := LoadRecord(resultsRoot, "abc123")
	assert.Equal(t, models.StatusTestsSucceeded, loaded.Status)
	assert.Equal(t, "aW1hZ2U=", loaded.Payload)
}

func TestLoadRecordMissing(t *testing.T) {
	resultsRoot := t.TempDir()

	for _, ticket := range []string{"never-submitted", "../escape", ""} {
		record := LoadRecord(resultsRoot, ticket)
		assert.Equal(t, models.StatusNotFound, record.Status)
		assert.Equal(t, "No test results found", record.Payload)
	}
}

func TestLoadRecordMalformed(t *testing.T) {
	resultsRoot := t.TempDir()
	outDir := filepath.Join(resultsRoot, "abc123", "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))

	tests := []struct {
		name     string
		contents string
	}{
		{name: "not json", contents: "{{{"},
		{name: "unknown status", contents: `{"status":"exploded","payload":""}`},
		{name: "empty object", contents: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(outDir, recordFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.contents), 0644))

			record := LoadRecord(resultsRoot, "abc123")
			assert.Equal(t, models.StatusContentsMalformed, record.Status)
			assert.Equal(t, "Test result malformed", record.Payload)
		})
	}
}

func TestSaveIsAtomicOnDisk(t *testing.T) {
	resultsRoot := t.TempDir()
	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	record := models.NewJobRecord()
	require.NoError(t, env.Save(record))
	require.NoError(t, record.SetStatus(models.StatusTestsRunning))
	require.NoError(t, env.Save(record))

	entries, err := os.ReadDir(env.OutputDir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not linger")
	assert.Equal(t, recordFileName, entries[0].Name())

	data, err := os.ReadFile(RecordPath(resultsRoot, "abc123"))
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestTearDownCopiesArtifactAndUnstages(t *testing.T) {
	resultsRoot := t.TempDir()
	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	staged, err := env.StageProject(makeProject(t), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(staged.Path, "result.jpg"), []byte("jpeg"), 0644))
	require.NoError(t, env.Save(models.NewJobRecord()))

	env.TearDown()

	assert.NoDirExists(t, staged.Path)
	assert.FileExists(t, ArtifactPath(resultsRoot, "abc123"))
	assert.FileExists(t, RecordPath(resultsRoot, "abc123"))

	// The record must remain readable after the job is gone.
	loaded := LoadRecord(resultsRoot, "abc123")
	assert.Equal(t, models.StatusCreated, loaded.Status)
}

func TestTearDownIsIdempotent(t *testing.T) {
	resultsRoot := t.TempDir()
	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	staged, err := env.StageProject(makeProject(t), nil)
	require.NoError(t, err)

	env.TearDown()
	require.NoDirExists(t, staged.Path)

	// A second call must not disturb anything.
	env.TearDown()
	assert.DirExists(t, env.Root())
	assert.DirExists(t, env.OutputDir())
}

func TestTearDownWithoutStagedProject(t *testing.T) {
	resultsRoot := t.TempDir()
	env := newTestEnv(t, resultsRoot, "abc123")
	require.NoError(t, env.SetUp())

	env.TearDown()

	assert.DirExists(t, env.Root())
	assert.NoFileExists(t, ArtifactPath(resultsRoot, "abc123"))
}
