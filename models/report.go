package models

import "time"

const (
	ReportScrape   = "scrape"
	ReportFollowup = "followup"
)

// RunReport summarises one scrape or follow-up run for the operator.
type RunReport struct {
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Scrape runs
	Target      *RotationTarget `json:"target,omitempty"`
	ZonesTried  int             `json:"zones_tried,omitempty"`
	Scraped     int             `json:"scraped,omitempty"`
	NewLeads    int             `json:"new_leads,omitempty"`
	Duplicates  int             `json:"duplicates,omitempty"`
	Dropped     int             `json:"dropped,omitempty"`
	Dispatched  bool            `json:"dispatched,omitempty"`
	ArchivedOld int             `json:"archived_old,omitempty"`

	// Follow-up runs
	Policy  string        `json:"policy,omitempty"`
	Channel string        `json:"channel,omitempty"`
	SentBy  map[Stage]int `json:"sent_by_stage,omitempty"`
	Failed  int           `json:"failed,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// Duration is how long the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalSent counts follow-up messages delivered across stages.
func (r RunReport) TotalSent() int {
	total := 0
	for _, n := range r.SentBy {
		total += n
	}
	return total
}
