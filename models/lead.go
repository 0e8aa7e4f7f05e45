package models

// Lead is a business pulled from one map detail panel. It only lives for the
// duration of a run and becomes a ContactRecord once dispatch succeeds.
type Lead struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Website        string `json:"website"`
	Rating         string `json:"rating"`
	ReviewsCount   string `json:"reviews_count"`
	GoogleMapsURL  string `json:"google_maps_url"`
	WebsiteSnippet string `json:"website_snippet"`
	Niche          string `json:"nicho"`

	// Composed text
	Message         string `json:"ai_analysis"`
	FollowupMessage string `json:"followup_message"`
	LeadMagnet      string `json:"lead_magnet"`
}

// WebhookLead is the per-lead shape the outbound automation expects.
type WebhookLead struct {
	Phone           string `json:"phone"`
	Message         string `json:"message"`
	FollowupMessage string `json:"followup_message,omitempty"`
	LeadName        string `json:"lead_name"`
	Category        string `json:"category"`
	Niche           string `json:"nicho,omitempty"`
	Website         string `json:"website"`
	GoogleMapsURL   string `json:"google_maps_url"`

	// Set on follow-up batches only
	Stage            string `json:"stage,omitempty"`
	DaysSinceContact int    `json:"days_since_contact,omitempty"`
}

// WebhookPayload is the body posted to the outbound automation webhook.
type WebhookPayload struct {
	Leads      []WebhookLead `json:"leads"`
	TotalCount int           `json:"total_count"`
	Source     string        `json:"source"`
	IsFollowup bool          `json:"is_followup,omitempty"`
	Timestamp  string        `json:"timestamp"`
}
