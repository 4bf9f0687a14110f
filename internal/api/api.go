// Package api exposes the worker's HTTP surface: job submission, status
// polling, project source, health and stats.
package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/google/coursebuilder-android-container-module/internal/config"
	"github.com/google/coursebuilder-android-container-module/internal/lock"
	"github.com/google/coursebuilder-android-container-module/internal/models"
	"github.com/google/coursebuilder-android-container-module/internal/observability"
	"github.com/google/coursebuilder-android-container-module/internal/staging"
)

// Dispatcher starts accepted jobs in the background
type Dispatcher interface {
	Submit(ticket, project string, patches []models.Patch)
}

// Journal is the slice of the database the API reads and writes
type Journal interface {
	RecordJobEvent(event, ticket, project string, durationSecs int) error
	GetEventCounts() (map[string]int, error)
	GetJobStatsPerDay(days int) (map[string]map[string]int, error)
	GetRecentEvents(limit int) ([]*models.JobEvent, error)
}

// Server holds the API server components
type Server struct {
	cfg        *config.Config
	catalog    *config.Catalog
	lock       *lock.Lock
	dispatcher Dispatcher
	journal    Journal
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
	log        *zap.Logger
	router     *gin.Engine
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	catalog *config.Catalog,
	lk *lock.Lock,
	dispatcher Dispatcher,
	journal Journal,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
	log *zap.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		catalog:    catalog,
		lock:       lk,
		dispatcher: dispatcher,
		journal:    journal,
		metrics:    metrics,
		gatherer:   gatherer,
		log:        log,
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(RequestLogger(log))
	s.setupRoutes()

	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/jobs", s.handleSubmitJob)
		v1.GET("/jobs/:ticket", s.handleJobStatus)
		v1.GET("/projects/:name", s.handleGetProject)
		v1.GET("/stats", s.handleStats)
		v1.GET("/jobs-per-day", s.handleJobsPerDay)
		v1.GET("/recent-events", s.handleRecentEvents)
	}

	// Health check and metrics
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Router returns the configured engine for the HTTP server
func (s *Server) Router() *gin.Engine {
	return s.router
}

// handleSubmitJob handles POST /api/v1/jobs
func (s *Server) handleSubmitJob(c *gin.Context) {
	var req models.TestRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := models.ValidateTicket(req.Ticket); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Fast-fail while a job is running so callers can pick another worker.
	// A submission racing the lock still gets recorded as unavailable by the
	// orchestrator.
	if s.lock.Active() {
		s.metrics.BusyRejections.Inc()
		if err := s.journal.RecordJobEvent(models.EventRejectedBusy, req.Ticket, req.Project, 0); err != nil {
			s.log.Warn("failed to journal busy rejection", zap.Error(err))
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "worker busy"})
		return
	}

	s.metrics.JobsSubmitted.Inc()
	if err := s.journal.RecordJobEvent(models.EventSubmitted, req.Ticket, req.Project, 0); err != nil {
		s.log.Warn("failed to journal submission", zap.Error(err))
	}

	s.dispatcher.Submit(req.Ticket, req.Project, req.Patches)

	c.JSON(http.StatusAccepted, models.TestResponse{
		Ticket:   req.Ticket,
		WorkerID: s.cfg.WorkerURL,
	})
}

// handleJobStatus handles GET /api/v1/jobs/:ticket
func (s *Server) handleJobStatus(c *gin.Context) {
	ticket := c.Param("ticket")
	if err := models.ValidateTicket(ticket); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Pollers may carry the worker id from the submission response; a
	// mismatch means they asked the wrong worker.
	if workerID := c.Query("worker_id"); workerID != "" && workerID != s.cfg.WorkerURL {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job does not belong to this worker"})
		return
	}

	record := staging.LoadRecord(s.cfg.ResultsPath, ticket)
	response := models.StatusResponse{
		Ticket:  ticket,
		Status:  record.Status,
		State:   record.Status.State(),
		Payload: record.Payload,
	}

	switch record.Status {
	case models.StatusNotFound:
		c.JSON(http.StatusNotFound, response)
	case models.StatusCreated, models.StatusTestsRunning:
		c.JSON(http.StatusAccepted, response)
	default:
		c.JSON(http.StatusOK, response)
	}
}

// handleGetProject handles GET /api/v1/projects/:name
func (s *Server) handleGetProject(c *gin.Context) {
	name := c.Param("name")

	project, ok := s.catalog.Project(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown project %q", name)})
		return
	}

	contents, err := os.ReadFile(project.EditorFile)
	if err != nil {
		s.log.Error("failed to read editor file",
			zap.String("project", name),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read project source"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":  name,
		"filename": filepath.Base(project.EditorFile),
		"contents": string(contents),
	})
}

// handleHealth handles GET /health. A held lock reports busy with 503 so
// load balancers steer submissions elsewhere while polls keep working.
func (s *Server) handleHealth(c *gin.Context) {
	if s.lock.Active() {
		holder, err := s.lock.Holder()
		if err != nil {
			holder = ""
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "busy",
			"ticket": holder,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
