// Package staging manages the per-job results directory: an isolated copy of
// the project under test, the job's log sink, the persisted job record and
// TTL cleanup of older job directories.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

const (
	outDirName     = "out"
	logFileName    = "log"
	recordFileName = "result.json"
	artifactName   = "result.jpg"
)

var (
	// ErrTicketExists is returned by SetUp when the job root already exists,
	// which means the ticket was reused
	ErrTicketExists = errors.New("job directory already exists")

	// ErrPatchTarget is returned by StageProject for a patch that does not
	// name a file of the staged copy
	ErrPatchTarget = errors.New("unable to apply patch")
)

// Environment is one job's staging area under <results>/<ticket>.
//
// Lifecycle: SetUp, optionally StageProject, work, TearDown. TearDown must
// run on every exit path and may be called more than once; only the first
// call acts.
type Environment struct {
	ticket      string
	resultsRoot string
	root        string
	outDir      string
	ttl         time.Duration

	base    *zap.Logger
	log     *zap.Logger
	logFile *os.File

	project  *models.Project
	tornDown bool
}

// NewEnvironment describes the staging area for ticket without touching disk
func NewEnvironment(resultsRoot, ticket string, ttl time.Duration, log *zap.Logger) *Environment {
	root := filepath.Join(resultsRoot, ticket)
	return &Environment{
		ticket:      ticket,
		resultsRoot: resultsRoot,
		root:        root,
		outDir:      filepath.Join(root, outDirName),
		ttl:         ttl,
		base:        log,
		log:         log,
	}
}

// Logger returns the job-scoped logger. Between SetUp and TearDown it tees
// into the job's log file.
func (e *Environment) Logger() *zap.Logger {
	return e.log
}

// Root returns the job root directory
func (e *Environment) Root() string {
	return e.root
}

// OutputDir returns the directory holding the job record and artifact
func (e *Environment) OutputDir() string {
	return e.outDir
}

// SetUp allocates the job root and output directory, attaches the job log
// sink, then sweeps expired sibling directories. Allocation happens before
// the sweep so the sweep can never race this job's own fresh directory.
func (e *Environment) SetUp() error {
	if err := os.MkdirAll(e.resultsRoot, 0755); err != nil {
		return fmt.Errorf("failed to create results root: %w", err)
	}

	if err := os.Mkdir(e.root, 0755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrTicketExists, e.root)
		}
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	if err := os.Mkdir(e.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	e.attachLogSink()
	e.sweepExpired()
	return nil
}

// StageProject copies the canonical project tree into the job root, skipping
// version-control and build-cache subtrees, and applies the patches to the
// copy. The returned project is rehomed under the job root; the canonical
// tree is never written to.
func (e *Environment) StageProject(src models.Project, patches []models.Patch) (models.Project, error) {
	stagedPath := filepath.Join(e.root, src.Name)

	staged, err := src.Rehomed(stagedPath)
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to rehome project %s: %w", src.Name, err)
	}

	if err := copyTree(src.Path, stagedPath, ".git", ".gradle"); err != nil {
		return models.Project{}, fmt.Errorf("failed to stage project %s: %w", src.Name, err)
	}
	e.log.Info("project staged",
		zap.String("project", src.Name),
		zap.String("path", stagedPath))

	for _, patch := range patches {
		if err := e.applyPatch(staged, patch); err != nil {
			return models.Project{}, err
		}
	}

	e.project = &staged
	return staged, nil
}

// applyPatch rehomes one patch into the staged tree and writes its contents
// verbatim. Patches may only replace files the staged copy already has.
func (e *Environment) applyPatch(staged models.Project, patch models.Patch) error {
	suffix, err := models.SplitProjectPath(patch.Filename, staged.Name)
	if err != nil {
		return fmt.Errorf("failed to rehome patch: %w", err)
	}

	target := filepath.Join(staged.Path, suffix)
	rel, err := filepath.Rel(staged.Path, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q escapes the staged project", ErrPatchTarget, patch.Filename)
	}

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("%w: no file named %s", ErrPatchTarget, target)
	}

	if err := os.WriteFile(target, []byte(patch.Contents), 0644); err != nil {
		return fmt.Errorf("failed to write patch %s: %w", target, err)
	}

	e.log.Debug("patched file",
		zap.String("path", target),
		zap.Int("bytes", len(patch.Contents)))
	return nil
}

// Save persists the job record into the output directory. The write is
// atomic so a concurrent status poll never observes a partial record.
func (e *Environment) Save(record *models.JobRecord) error {
	return writeRecord(e.outDir, record, e.log)
}

// TearDown finishes the job's use of the staging area: the result artifact,
// when produced, is copied into the output directory, the staged project
// tree is removed, and the job log sink is detached. Repeat calls are
// no-ops.
func (e *Environment) TearDown() {
	if e.tornDown {
		return
	}
	e.tornDown = true

	e.copyArtifact()
	e.removeStagedProject()
	e.log.Info("staging torn down", zap.String("ticket", e.ticket))
	e.detachLogSink()
}

func (e *Environment) copyArtifact() {
	if e.project == nil {
		return
	}

	src := filepath.Join(e.project.Path, artifactName)
	if _, err := os.Stat(src); err != nil {
		// Failed builds and test runs produce no image.
		e.log.Info("no result image found", zap.String("path", src))
		return
	}

	dst := filepath.Join(e.outDir, artifactName)
	if err := copyFile(src, dst); err != nil {
		e.log.Warn("failed to copy result image", zap.Error(err))
		return
	}
	e.log.Info("result image saved", zap.String("path", dst))
}

func (e *Environment) removeStagedProject() {
	if e.project == nil {
		return
	}

	// The tree may already be gone if an aged sweep removed it.
	if _, err := os.Stat(e.project.Path); err != nil {
		return
	}

	if err := os.RemoveAll(e.project.Path); err != nil {
		e.log.Warn("failed to remove staged project",
			zap.String("path", e.project.Path),
			zap.Error(err))
		return
	}
	e.log.Info("project unstaged",
		zap.String("project", e.project.Name),
		zap.String("path", e.project.Path))
}

// sweepExpired removes sibling job directories whose modification time is
// older than the TTL. The sweep runs on every SetUp rather than on a timer,
// so an idle worker reclaims space on its next job.
func (e *Environment) sweepExpired() {
	entries, err := os.ReadDir(e.resultsRoot)
	if err != nil {
		e.log.Warn("failed to list results root", zap.Error(err))
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == e.ticket {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		if age < e.ttl {
			continue
		}

		path := filepath.Join(e.resultsRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			e.log.Warn("failed to remove expired job directory",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		e.log.Info("removed expired job directory",
			zap.String("path", path),
			zap.Duration("age", age))
	}
}

// attachLogSink tees the job logger into <root>/log. Failure to create the
// file degrades to the base logger.
func (e *Environment) attachLogSink() {
	path := filepath.Join(e.root, logFileName)
	f, err := os.Create(path)
	if err != nil {
		e.base.Warn("failed to create job log file",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(f),
		zapcore.DebugLevel,
	)

	e.logFile = f
	e.log = e.base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	e.log.Info("job log attached", zap.String("ticket", e.ticket))
}

func (e *Environment) detachLogSink() {
	if e.logFile == nil {
		return
	}

	e.logFile.Sync()
	e.logFile.Close()
	e.logFile = nil
	e.log = e.base
}
