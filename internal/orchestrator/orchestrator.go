// Package orchestrator runs test jobs end to end: staging, the execution
// lock, the emulator readiness check, build, test and the persisted record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/lock"
	"github.com/google/coursebuilder-android-container-module/internal/models"
	"github.com/google/coursebuilder-android-container-module/internal/observability"
	"github.com/google/coursebuilder-android-container-module/internal/staging"
)

// Runner installs and exercises a staged project
type Runner interface {
	Install(ctx context.Context, project models.Project) (bool, string, error)
	Test(ctx context.Context, project models.Project) (bool, string, error)
}

// ReadyProber reports whether a runtime's emulator can run tests
type ReadyProber interface {
	Ready(ctx context.Context, rt models.Runtime) bool
}

// Journal records job outcomes for the stats endpoints. Journal failures
// never affect the job itself.
type Journal interface {
	RecordJobEvent(event, ticket, project string, durationSecs int) error
}

// Orchestrator executes one job at a time under the execution lock
type Orchestrator struct {
	cfg     *config.Config
	catalog *config.Catalog
	lock    *lock.Lock
	runner  Runner
	prober  ReadyProber
	journal Journal
	metrics *observability.Metrics
	log     *zap.Logger
}

// New wires an Orchestrator from its collaborators
func New(
	cfg *config.Config,
	catalog *config.Catalog,
	lk *lock.Lock,
	runner Runner,
	prober ReadyProber,
	journal Journal,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		catalog: catalog,
		lock:    lk,
		runner:  runner,
		prober:  prober,
		journal: journal,
		metrics: metrics,
		log:     log,
	}
}

// Run executes one test job to a terminal record. Callers learn the outcome
// exclusively through the persisted record; Run itself reports nothing.
//
// Every exit path tears the staging environment down exactly once and
// releases the execution lock only if this job acquired it, in that order.
func (o *Orchestrator) Run(ctx context.Context, ticket, projectName string, patches []models.Patch) {
	started := time.Now()

	baseLog := o.log.With(zap.String("ticket", ticket), zap.String("project", projectName))

	env := staging.NewEnvironment(o.cfg.ResultsPath, ticket, o.cfg.ResultsTTL(), baseLog)
	if err := env.SetUp(); err != nil {
		// Without a job directory there is nowhere to write a record. A
		// collision means the ticket was already used; its record stands.
		baseLog.Error("failed to set up staging", zap.Error(err))
		return
	}

	acquired := false
	defer func() {
		env.TearDown()
		if acquired {
			if err := o.lock.Release(); err != nil {
				baseLog.Error("failed to release execution lock", zap.Error(err))
				return
			}
			o.metrics.LockHeld.Set(0)
		}
	}()

	log := env.Logger()
	record := models.NewJobRecord()

	finish := func(status models.Status, payload string) {
		if err := record.SetStatus(status); err != nil {
			log.Error("failed to set job status", zap.Error(err))
			return
		}
		record.Payload = payload

		if err := env.Save(record); err != nil {
			log.Error("failed to save job record", zap.Error(err))
		}

		duration := time.Since(started)
		if err := o.journal.RecordJobEvent(string(status), ticket, projectName, int(duration.Seconds())); err != nil {
			log.Warn("failed to journal job outcome", zap.Error(err))
		}
		o.metrics.JobsCompleted.WithLabelValues(string(status)).Inc()
		o.metrics.JobDuration.Observe(duration.Seconds())

		log.Info("job finished",
			zap.String("status", string(status)),
			zap.Duration("duration", duration))
	}

	if len(patches) == 0 {
		finish(models.StatusContentsMalformed, "must specify test patches")
		return
	}

	project, ok := o.catalog.Project(projectName)
	if !ok {
		finish(models.StatusProjectMisconfigured, fmt.Sprintf("unknown project %q", projectName))
		return
	}

	runtime, ok := o.catalog.Runtime(projectName)
	if !ok {
		finish(models.StatusRuntimeMisconfigured, fmt.Sprintf("no runtime registered for project %q", projectName))
		return
	}

	if err := o.lock.Acquire(ticket); err != nil {
		if errors.Is(err, lock.ErrBusy) {
			o.metrics.BusyRejections.Inc()
			finish(models.StatusUnavailable, "worker busy")
			return
		}
		finish(models.StatusUnavailable, fmt.Sprintf("failed to acquire execution lock: %v", err))
		return
	}
	acquired = true
	o.metrics.LockHeld.Set(1)

	staged, err := env.StageProject(project, patches)
	if err != nil {
		log.Warn("failed to stage project", zap.Error(err))
		finish(models.StatusContentsMalformed, err.Error())
		return
	}

	if err := record.SetStatus(models.StatusTestsRunning); err != nil {
		log.Error("failed to set job status", zap.Error(err))
	} else if err := env.Save(record); err != nil {
		log.Error("failed to save job record", zap.Error(err))
	}

	if !o.prober.Ready(ctx, runtime) {
		finish(models.StatusRuntimeNotRunning, fmt.Sprintf("runtime %s is not ready", runtime.ConsoleName()))
		return
	}

	installed, output, err := o.runner.Install(ctx, staged)
	if err != nil {
		finish(models.StatusBuildFailed, err.Error())
		return
	}
	if !installed {
		finish(models.StatusBuildFailed, output)
		return
	}

	passed, payload, err := o.runner.Test(ctx, staged)
	if err != nil {
		finish(models.StatusTestsFailed, err.Error())
		return
	}
	if !passed {
		finish(models.StatusTestsFailed, payload)
		return
	}

	finish(models.StatusTestsSucceeded, payload)
}
