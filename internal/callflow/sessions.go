package callflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/domain"
)

// State is the position of an active call in its lifecycle.
type State string

const (
	StateAnswered  State = "answered"
	StateSpeaking  State = "speaking"
	StateGathering State = "gathering"
	StateVoicemail State = "voicemail"
	StateClosing   State = "closing"
	StateDone      State = "done"
)

// Mode selects how an answered call is driven.
type Mode string

const (
	// ModeBasic uses synthesized prompts and single-digit collection.
	ModeBasic Mode = "basic"
	// ModeConversational bridges the call into an AI conversation room.
	ModeConversational Mode = "conversational"
)

// Lines holds the rendered prompts for one call.
type Lines struct {
	Greeting   string
	Confirmed  string
	Reschedule string
	Closing    string
	Voicemail  string
}

// Session is the in-memory context of one live call. A session exists
// only between the answered event and the terminal event that ends it.
type Session struct {
	Ref   string
	State State
	Mode  Mode
	Kind  domain.CallKind

	Outcome domain.CallOutcome
	Lines   Lines

	BusinessName string
	CustomerName string
	// Facts carries purpose-specific details handed to the conversational
	// agent when one is attached.
	Facts map[string]string

	BusinessID     uuid.UUID
	CustomerID     uuid.UUID
	AppointmentID  *uuid.UUID
	CampaignID     *uuid.UUID
	CampaignCallID *uuid.UUID

	// ConversationID is set once an AI session is attached.
	ConversationID string

	AnsweredAt time.Time
}

// Arena tracks live sessions keyed by provider call ref. Webhook
// handlers for the same call may run concurrently across goroutines,
// so every access goes through the lock, and event processing for one
// ref is serialized through LockRef.
type Arena struct {
	mu    sync.RWMutex
	byRef map[string]*Session
	locks map[string]*refLock
}

// refLock serializes event handling for one provider ref. The refs
// counter lets the entry be dropped once the last waiter is done.
type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewArena returns an empty arena ready for concurrent use.
func NewArena() *Arena {
	return &Arena{
		byRef: make(map[string]*Session),
		locks: make(map[string]*refLock),
	}
}

// LockRef acquires the per-ref event lock so that concurrent callbacks
// for the same call cannot interleave a transition with its effects.
// The returned function releases the lock.
func (a *Arena) LockRef(ref string) func() {
	a.mu.Lock()
	l := a.locks[ref]
	if l == nil {
		l = &refLock{}
		a.locks[ref] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, ref)
		}
		a.mu.Unlock()
	}
}

// Put registers a session under its provider ref, replacing any stale
// entry left by a duplicate answered callback.
func (a *Arena) Put(s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byRef[s.Ref] = s
}

// Get returns the live session for ref, or nil if none exists.
func (a *Arena) Get(ref string) *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byRef[ref]
}

// Remove tears down the session for ref.
func (a *Arena) Remove(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byRef, ref)
}

// Len reports the number of live sessions.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byRef)
}
