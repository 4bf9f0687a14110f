package models

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a test job
type Status string

const (
	StatusCreated              Status = "created"
	StatusTestsRunning         Status = "tests_running"
	StatusBuildFailed          Status = "build_failed"
	StatusTestsFailed          Status = "tests_failed"
	StatusTestsSucceeded       Status = "tests_succeeded"
	StatusContentsMalformed    Status = "contents_malformed"
	StatusProjectMisconfigured Status = "project_misconfigured"
	StatusRuntimeMisconfigured Status = "runtime_misconfigured"
	StatusRuntimeNotRunning    Status = "runtime_not_running"
	StatusUnavailable          Status = "unavailable"

	// StatusNotFound is synthesized on lookup of an unknown ticket and is
	// never persisted.
	StatusNotFound Status = "not_found"

	// StatusDeleted is reserved for clients that expire records themselves;
	// the worker never produces it.
	StatusDeleted Status = "deleted"
)

// ErrInvalidStatus is returned by SetStatus for values outside the enumeration
var ErrInvalidStatus = errors.New("invalid job status")

var validStatuses = map[Status]bool{
	StatusCreated:              true,
	StatusTestsRunning:         true,
	StatusBuildFailed:          true,
	StatusTestsFailed:          true,
	StatusTestsSucceeded:       true,
	StatusContentsMalformed:    true,
	StatusProjectMisconfigured: true,
	StatusRuntimeMisconfigured: true,
	StatusRuntimeNotRunning:    true,
	StatusUnavailable:          true,
	StatusNotFound:             true,
	StatusDeleted:              true,
}

// Valid reports whether s is a defined job status
func (s Status) Valid() bool {
	return validStatuses[s]
}

// Terminal reports whether a job in this status is finished. Only created and
// tests_running are in-flight.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusCreated && s != StatusTestsRunning
}

// State is the coarse job state reported to polling clients
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateDeleted  State = "deleted"
)

// State maps a worker status onto the coarse client-facing state. Every
// failure status collapses to StateFailed.
func (s Status) State() State {
	switch s {
	case StatusCreated:
		return StateCreated
	case StatusTestsRunning:
		return StateRunning
	case StatusTestsSucceeded:
		return StateComplete
	case StatusDeleted:
		return StateDeleted
	default:
		return StateFailed
	}
}

// JobRecord is the durable outcome of one test job: a status plus a payload
// holding combined command output for failures or the base64 result image for
// a passing run.
type JobRecord struct {
	Status  Status `json:"status"`
	Payload string `json:"payload"`
}

// NewJobRecord returns a record in the created state
func NewJobRecord() *JobRecord {
	return &JobRecord{Status: StatusCreated}
}

// SetStatus moves the record to status s. Values outside the enumeration fail
// with ErrInvalidStatus and leave the record unchanged.
func (r *JobRecord) SetStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	r.Status = s
	return nil
}
