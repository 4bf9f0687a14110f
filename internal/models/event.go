package models

import "time"

// Journal event names. Terminal outcomes are journaled under their status
// string, so the event vocabulary is these constants plus the Status values.
const (
	EventSubmitted    = "submitted"
	EventRejectedBusy = "rejected_busy"
)

// JobEvent is one journal row recording a submission or a terminal outcome
type JobEvent struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Event        string    `json:"event" db:"event"`
	Ticket       string    `json:"ticket" db:"ticket"`
	Project      string    `json:"project" db:"project"`
	DurationSecs int       `json:"duration_seconds" db:"duration_seconds"`
}
