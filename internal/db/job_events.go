package db

import (
	"fmt"
	"time"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

// RecordJobEvent appends one row to the job journal
func (db *DB) RecordJobEvent(event, ticket, project string, durationSecs int) error {
	query := `
		INSERT INTO job_events (timestamp, event, ticket, project, duration_seconds)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, time.Now(), event, ticket, project, durationSecs)
	if err != nil {
		return fmt.Errorf("failed to insert job event: %w", err)
	}

	return nil
}

// GetEventCounts returns total journal counts per event type
func (db *DB) GetEventCounts() (map[string]int, error) {
	query := `
		SELECT event, COUNT(*) as count
		FROM job_events
		GROUP BY event
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var event string
		var count int

		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[event] = count
	}

	return counts, rows.Err()
}

// GetJobStatsPerDay returns journal counts grouped by day
func (db *DB) GetJobStatsPerDay(days int) (map[string]map[string]int, error) {
	query := `
		SELECT DATE(timestamp) as day, event, COUNT(*) as count
		FROM job_events
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY day, event
		ORDER BY day DESC
	`

	rows, err := db.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]map[string]int)
	for rows.Next() {
		var day, event string
		var count int

		if err := rows.Scan(&day, &event, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stat row: %w", err)
		}

		if stats[day] == nil {
			stats[day] = make(map[string]int)
		}
		stats[day][event] = count
	}

	return stats, rows.Err()
}

// GetRecentEvents returns the newest journal rows, up to limit
func (db *DB) GetRecentEvents(limit int) ([]*models.JobEvent, error) {
	query := `
		SELECT id, timestamp, event, ticket, project, duration_seconds
		FROM job_events
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []*models.JobEvent
	for rows.Next() {
		var event models.JobEvent

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Event,
			&event.Ticket,
			&event.Project,
			&event.DurationSecs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// CleanOldEvents removes journal rows older than the specified number of days
func (db *DB) CleanOldEvents(daysToKeep int) error {
	query := `DELETE FROM job_events WHERE timestamp < datetime('now', '-' || ? || ' days')`
	_, err := db.Exec(query, daysToKeep)
	return err
}
