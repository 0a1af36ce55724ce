package queue

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeMessage announces a terminal call outcome to downstream consumers
// (CRM sync, analytics). Published once per placed call.
type OutcomeMessage struct {
	CallLogID      uuid.UUID  `json:"call_log_id"`
	ProviderRef    string     `json:"provider_ref"`
	Kind           string     `json:"kind"`
	BusinessID     uuid.UUID  `json:"business_id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	CampaignCallID *uuid.UUID `json:"campaign_call_id,omitempty"`
	Outcome        string     `json:"outcome"`
	DurationMs     int64      `json:"duration_ms"`
	Summary        string     `json:"summary,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}
