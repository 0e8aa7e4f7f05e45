package models

import (
	"time"
)

// Stage is one step of the follow-up escalation sequence.
type Stage string

const (
	StageDay1 Stage = "day1"
	StageDay2 Stage = "day2"
	StageDay5 Stage = "day5"
)

// Stages lists the escalation steps in the order they are evaluated.
var Stages = []Stage{StageDay1, StageDay2, StageDay5}

// ThresholdDays is the minimum age of a contact before the stage is due.
func (s Stage) ThresholdDays() int {
	switch s {
	case StageDay1:
		return 1
	case StageDay2:
		return 2
	case StageDay5:
		return 5
	}
	return 0
}

// Previous returns the stage that must be sent first under the sequential
// follow-up policy.
func (s Stage) Previous() (Stage, bool) {
	switch s {
	case StageDay2:
		return StageDay1, true
	case StageDay5:
		return StageDay2, true
	}
	return "", false
}

func (s Stage) Valid() bool {
	return s.ThresholdDays() > 0
}

// ContactRecord is the ledger entry for a phone number that has been messaged.
// Phone is the identity key.
type ContactRecord struct {
	Phone       string    `gorm:"primaryKey;size:20" json:"phone"`
	ContactDate time.Time `gorm:"not null;index" json:"contact_date"`
	LeadName    string    `json:"lead_name"`
	Niche       string    `gorm:"index" json:"nicho"`

	// Cached text reused by the follow-up stages
	FollowupMessage string `gorm:"type:text" json:"followup_message"`
	LeadMagnetText  string `gorm:"type:text" json:"lead_magnet"`

	// Stage flags; FollowupSent doubles as "sequence finished"
	Day1Sent     bool `gorm:"default:false" json:"day1_sent"`
	Day2Sent     bool `gorm:"default:false" json:"day2_sent"`
	FollowupSent bool `gorm:"default:false" json:"followup_sent"`

	// Archived records keep their phone in the dedup set but leave the
	// follow-up rotation
	Archived bool `gorm:"default:false;index" json:"-"`
}

// StageSent reports whether the given stage has already gone out.
func (r ContactRecord) StageSent(stage Stage) bool {
	switch stage {
	case StageDay1:
		return r.Day1Sent
	case StageDay2:
		return r.Day2Sent
	case StageDay5:
		return r.FollowupSent
	}
	return false
}

// MarkStage sets the flag for stage. Flags are never cleared.
func (r *ContactRecord) MarkStage(stage Stage) {
	switch stage {
	case StageDay1:
		r.Day1Sent = true
	case StageDay2:
		r.Day2Sent = true
	case StageDay5:
		r.FollowupSent = true
	}
}

// DaysSinceContact returns whole days elapsed since the first send.
func (r ContactRecord) DaysSinceContact(now time.Time) int {
	return int(now.Sub(r.ContactDate).Hours() / 24)
}

// LedgerStats summarises the contact ledger.
type LedgerStats struct {
	TotalContacted   int            `json:"total_contacted"`
	ActiveRecords    int            `json:"active_records"`
	PendingFollowups int            `json:"pending_followups"`
	SentByStage      map[Stage]int  `json:"sent_by_stage"`
	ByNiche          map[string]int `json:"by_niche"`
	LastUpdated      *time.Time     `json:"last_updated,omitempty"`
}
