package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignType selects the candidate generator and the script family.
type CampaignType string

const (
	CampaignTypeReengagement     CampaignType = "reengagement"
	CampaignTypeReviewCollection CampaignType = "review_collection"
	CampaignTypeNoShowFollowUp   CampaignType = "no_show_follow_up"
)

// CampaignCallStatus enumerates lifecycle states of one unit of outreach work.
type CampaignCallStatus string

const (
	CampaignCallStatusPending    CampaignCallStatus = "pending"
	CampaignCallStatusQueued     CampaignCallStatus = "queued"
	CampaignCallStatusInProgress CampaignCallStatus = "in_progress"
	CampaignCallStatusCompleted  CampaignCallStatus = "completed"
	CampaignCallStatusSkipped    CampaignCallStatus = "skipped"
	CampaignCallStatusFailed     CampaignCallStatus = "failed"
)

// Campaign is a recurring outreach definition. At most one campaign exists
// per (business, type) pair; the repository enforces this at creation.
type Campaign struct {
	ID                 uuid.UUID
	BusinessID         uuid.UUID
	Type               CampaignType
	Enabled            bool
	WindowStartMinutes int
	WindowEndMinutes   int
	AllowedWeekdays    []time.Weekday
	MaxConcurrentCalls int
	MinCallSpacing     time.Duration
	CycleFrequencyDays int
	LastRunAt          *time.Time
	NextRunAt          *time.Time
	Settings           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WindowDuration is the daily calling window length.
func (c *Campaign) WindowDuration() time.Duration {
	return time.Duration(c.WindowEndMinutes-c.WindowStartMinutes) * time.Minute
}

// AllowsWeekday reports whether the campaign may call on the given local weekday.
func (c *Campaign) AllowsWeekday(day time.Weekday) bool {
	for _, d := range c.AllowedWeekdays {
		if d == day {
			return true
		}
	}
	return false
}

// CycleFrequency converts the configured cycle into a duration.
func (c *Campaign) CycleFrequency() time.Duration {
	days := c.CycleFrequencyDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// CampaignCall is one unit of outreach work for one customer.
type CampaignCall struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	CustomerID   uuid.UUID
	Status       CampaignCallStatus
	ScheduledFor time.Time
	Result       map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
