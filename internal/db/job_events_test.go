package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/coursebuilder-android-container-module/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := NewDB(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func TestRecordJobEvent(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordJobEvent(models.EventSubmitted, "abc123", "quizdroid", 0))
	require.NoError(t, database.RecordJobEvent(string(models.StatusTestsSucceeded), "abc123", "quizdroid", 42))
	require.NoError(t, database.RecordJobEvent(models.EventRejectedBusy, "abc124", "quizdroid", 0))

	counts, err := database.GetEventCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.EventSubmitted])
	assert.Equal(t, 1, counts[string(models.StatusTestsSucceeded)])
	assert.Equal(t, 1, counts[models.EventRejectedBusy])
}

func TestGetJobStatsPerDay(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordJobEvent(models.EventSubmitted, "abc123", "quizdroid", 0))
	require.NoError(t, database.RecordJobEvent(models.EventSubmitted, "abc124", "quizdroid", 0))

	stats, err := database.GetJobStatsPerDay(7)
	require.NoError(t, err)

	total := 0
	for _, day := range stats {
		total += day[models.EventSubmitted]
	}
	assert.Equal(t, 2, total)
}

func TestGetRecentEvents(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordJobEvent(models.EventSubmitted, "abc123", "quizdroid", 0))
	require.NoError(t, database.RecordJobEvent(string(models.StatusBuildFailed), "abc123", "quizdroid", 30))

	events, err := database.GetRecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, string(models.StatusBuildFailed), events[0].Event)
	assert.Equal(t, "abc123", events[0].Ticket)
	assert.Equal(t, 30, events[0].DurationSecs)
	assert.Equal(t, models.EventSubmitted, events[1].Event)

	events, err = database.GetRecentEvents(1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCleanOldEvents(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordJobEvent(models.EventSubmitted, "abc123", "quizdroid", 0))

	// Nothing is younger than the cutoff, so the row survives.
	require.NoError(t, database.CleanOldEvents(1))

	counts, err := database.GetEventCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.EventSubmitted])
}
