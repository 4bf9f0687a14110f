package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

// Dispatcher starts jobs in the background, one goroutine per submission.
// Single-worker semantics come from the execution lock, not from queueing: a
// second concurrent job runs immediately and records unavailable.
type Dispatcher struct {
	run func(ctx context.Context, ticket, project string, patches []models.Patch)
	log *zap.Logger
	wg  sync.WaitGroup
}

// NewDispatcher returns a Dispatcher executing jobs on the orchestrator
func NewDispatcher(o *Orchestrator, log *zap.Logger) *Dispatcher {
	return &Dispatcher{run: o.Run, log: log}
}

// Submit starts the job in the background and returns immediately. Jobs run
// against the background context so an HTTP shutdown does not abort work in
// flight; Drain waits for them instead.
func (d *Dispatcher) Submit(ticket, project string, patches []models.Patch) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(context.Background(), ticket, project, patches)
	}()

	d.log.Info("job submitted",
		zap.String("ticket", ticket),
		zap.String("project", project),
		zap.Int("patches", len(patches)))
}

// Drain blocks until every submitted job has finished
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
