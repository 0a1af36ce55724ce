package conversation

import (
	"context"

	"github.com/acme/voice-outreach/internal/domain"
)

// Session identifies a live conversational audio room bound to one call.
// The telephony leg is bridged into Room; audio flows both directions for
// the life of the session.
type Session struct {
	ID   string
	Room string
}

// StartParams seeds the conversational agent with call context.
type StartParams struct {
	ProviderRef  string
	Purpose      string
	BusinessName string
	CustomerName string
	// Context carries purpose-specific facts (appointment time, campaign
	// type) the agent may speak about.
	Context map[string]string
}

// Result is what the service reports when a session ends.
type Result struct {
	Transcript string
	Summary    string
	// Outcome is the session's own assessment. The transcript classification
	// performed afterwards supersedes it.
	Outcome domain.CallOutcome
}

// Service abstracts the conversational speech backend.
type Service interface {
	// StartSession provisions a room and dispatches an agent into it.
	StartSession(ctx context.Context, params StartParams) (*Session, error)
	// EndSession tears the session down and returns its transcript.
	EndSession(ctx context.Context, sessionID string) (*Result, error)
	// Classify maps a transcript onto the closed outcome enumeration.
	Classify(ctx context.Context, transcript string) (domain.CallOutcome, string, error)
}
