package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStatus(t *testing.T) {
	t.Run("accepts every defined status", func(t *testing.T) {
		for status := range validStatuses {
			r := NewJobRecord()
			require.NoError(t, r.SetStatus(status))
			assert.Equal(t, status, r.Status)
		}
	})

	t.Run("rejects values outside the enumeration", func(t *testing.T) {
		r := NewJobRecord()
		require.NoError(t, r.SetStatus(StatusTestsRunning))

		err := r.SetStatus(Status("exploded"))
		require.ErrorIs(t, err, ErrInvalidStatus)
		assert.Equal(t, StatusTestsRunning, r.Status, "failed SetStatus must not change state")
	})

	t.Run("rejects the empty status", func(t *testing.T) {
		r := NewJobRecord()
		err := r.SetStatus("")
		require.ErrorIs(t, err, ErrInvalidStatus)
		assert.Equal(t, StatusCreated, r.Status)
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusTestsRunning.Terminal())
	assert.False(t, Status("bogus").Terminal())

	for _, status := range []Status{
		StatusBuildFailed,
		StatusTestsFailed,
		StatusTestsSucceeded,
		StatusContentsMalformed,
		StatusProjectMisconfigured,
		StatusRuntimeMisconfigured,
		StatusRuntimeNotRunning,
		StatusUnavailable,
		StatusNotFound,
	} {
		assert.True(t, status.Terminal(), "status %s should be terminal", status)
	}
}

func TestStatusState(t *testing.T) {
	assert.Equal(t, StateCreated, StatusCreated.State())
	assert.Equal(t, StateRunning, StatusTestsRunning.State())
	assert.Equal(t, StateComplete, StatusTestsSucceeded.State())
	assert.Equal(t, StateDeleted, StatusDeleted.State())

	for _, status := range []Status{
		StatusBuildFailed,
		StatusTestsFailed,
		StatusContentsMalformed,
		StatusProjectMisconfigured,
		StatusRuntimeMisconfigured,
		StatusRuntimeNotRunning,
		StatusUnavailable,
		StatusNotFound,
	} {
		assert.Equal(t, StateFailed, status.State(), "status %s should map to failed", status)
	}
}

func TestJobRecordJSON(t *testing.T) {
	record := &JobRecord{Status: StatusTestsFailed, Payload: "FAILURES!!!"}

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"tests_failed","payload":"FAILURES!!!"}`, string(data))

	var decoded JobRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *record, decoded)
}
