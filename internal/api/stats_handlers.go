package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(c *gin.Context) {
	counts, err := s.journal.GetEventCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totals": counts,
	})
}

// handleJobsPerDay handles GET /api/v1/jobs-per-day
func (s *Server) handleJobsPerDay(c *gin.Context) {
	days := 30 // default
	if d := c.Query("days"); d != "" {
		fmt.Sscanf(d, "%d", &days)
	}

	stats, err := s.journal.GetJobStatsPerDay(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleRecentEvents handles GET /api/v1/recent-events
func (s *Server) handleRecentEvents(c *gin.Context) {
	limit := 20 // default
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	events, err := s.journal.GetRecentEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recent events"})
		return
	}

	c.JSON(http.StatusOK, events)
}
