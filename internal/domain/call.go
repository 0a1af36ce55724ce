package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallOutcome is the closed enumeration of how a placed call ended.
type CallOutcome string

const (
	CallOutcomeInitiated   CallOutcome = "initiated"
	CallOutcomeAnswered    CallOutcome = "answered"
	CallOutcomeConfirmed   CallOutcome = "confirmed"
	CallOutcomeRescheduled CallOutcome = "rescheduled"
	CallOutcomeVoicemail   CallOutcome = "voicemail"
	CallOutcomeNoAnswer    CallOutcome = "no_answer"
	CallOutcomeDeclined    CallOutcome = "declined"
	CallOutcomeFailed      CallOutcome = "failed"
)

// Decisive reports whether the outcome should survive a hangup without
// being downgraded to no_answer.
func (o CallOutcome) Decisive() bool {
	switch o {
	case CallOutcomeConfirmed, CallOutcomeRescheduled, CallOutcomeVoicemail, CallOutcomeDeclined:
		return true
	}
	return false
}

// CallKind distinguishes the two dispatch paths that create call logs.
type CallKind string

const (
	CallKindReminder CallKind = "reminder"
	CallKindCampaign CallKind = "campaign"
)

// CallLog is the append-mostly record of a placed call. ProviderRef is the
// opaque correlation handle assigned by the voice provider; asynchronous
// lifecycle callbacks are matched on it.
type CallLog struct {
	ID             uuid.UUID
	ProviderRef    string
	Kind           CallKind
	BusinessID     uuid.UUID
	CustomerID     uuid.UUID
	AppointmentID  *uuid.UUID
	CampaignCallID *uuid.UUID
	PhoneNumber    string
	Outcome        CallOutcome
	Duration       time.Duration
	Transcript     string
	Summary        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
