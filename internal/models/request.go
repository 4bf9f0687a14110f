package models

import (
	"fmt"
	"regexp"
)

// Patch is one caller-supplied file edit, addressed by a path under the
// canonical project tree.
type Patch struct {
	Filename string `json:"filename" binding:"required"`
	Contents string `json:"contents"`
}

// TestRequest represents a test job submission
type TestRequest struct {
	Ticket  string  `json:"ticket" binding:"required"`
	Project string  `json:"project" binding:"required"`
	Patches []Patch `json:"patches"`
}

// TestResponse acknowledges an accepted test job
type TestResponse struct {
	Ticket   string `json:"ticket"`
	WorkerID string `json:"worker_id"`
}

// StatusResponse is the API response for a status poll
type StatusResponse struct {
	Ticket  string `json:"ticket"`
	Status  Status `json:"status"`
	State   State  `json:"state"`
	Payload string `json:"payload"`
}

// Tickets become result directory names, so they are restricted to a
// path-safe charset and may not lead with a dot.
var ticketPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateTicket rejects tickets that cannot serve as a result directory name
func ValidateTicket(ticket string) error {
	if !ticketPattern.MatchString(ticket) {
		return fmt.Errorf("invalid ticket %q", ticket)
	}
	return nil
}
