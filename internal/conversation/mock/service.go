package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/voice-outreach/internal/conversation"
	"github.com/acme/voice-outreach/internal/domain"
)

// Service is a deterministic in-memory conversation backend.
type Service struct {
	mu  sync.Mutex
	seq int

	// StartErr simulates session-creation failure, which callers must treat
	// as a signal to fall back to the basic speech path.
	StartErr error
	// ClassifyOutcome is returned by Classify for every transcript.
	ClassifyOutcome domain.CallOutcome
	// SessionResult is returned by EndSession.
	SessionResult conversation.Result

	ended []string
}

// NewService constructs the mock with benign defaults.
func NewService() *Service {
	return &Service{
		ClassifyOutcome: domain.CallOutcomeAnswered,
		SessionResult:   conversation.Result{Outcome: domain.CallOutcomeAnswered},
	}
}

// StartSession hands out sequential session ids.
func (s *Service) StartSession(ctx context.Context, params conversation.StartParams) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	s.seq++
	id := fmt.Sprintf("mock-session-%04d", s.seq)
	return &conversation.Session{ID: id, Room: "room-" + id}, nil
}

// EndSession records the teardown.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*conversation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, sessionID)
	result := s.SessionResult
	return &result, nil
}

// Classify returns the configured outcome.
func (s *Service) Classify(ctx context.Context, transcript string) (domain.CallOutcome, string, error) {
	return s.ClassifyOutcome, "classified from transcript", nil
}

// Ended lists torn-down session ids.
func (s *Service) Ended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ended))
	copy(out, s.ended)
	return out
}
