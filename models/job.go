package models

import "time"

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// ScrapeJob tracks one scrape started through the API.
type ScrapeJob struct {
	ID        string    `json:"job_id"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	Leads     []Lead    `json:"leads"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event types pushed to job progress streams.
const (
	EventStatus = "status"
	EventInfo   = "info"
	EventLead   = "lead"
	EventDone   = "done"
	EventError  = "error"
)

// JobEvent is one progress update for a running job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    *Lead  `json:"data,omitempty"`
	Count   int    `json:"count,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e JobEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
