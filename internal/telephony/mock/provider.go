package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acme/voice-outreach/internal/telephony"
)

// Action records one call-control operation for inspection in tests.
type Action struct {
	Kind string
	Ref  string
	Text string
}

// Provider is a deterministic in-memory voice provider. Every placed call
// receives a sequential ref; all operations are recorded.
type Provider struct {
	mu      sync.Mutex
	seq     int
	actions []Action

	// PlaceErr, when set, is returned by PlaceCall to simulate vendor failure.
	PlaceErr error
}

// NewProvider constructs the mock.
func NewProvider() *Provider {
	return &Provider{}
}

// PlaceCall assigns a sequential ref.
func (p *Provider) PlaceCall(ctx context.Context, params telephony.PlaceCallParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlaceErr != nil {
		return "", p.PlaceErr
	}
	p.seq++
	ref := fmt.Sprintf("mock-call-%04d", p.seq)
	p.actions = append(p.actions, Action{Kind: "place", Ref: ref, Text: params.To})
	return ref, nil
}

// Say records the spoken text.
func (p *Provider) Say(ctx context.Context, ref, text string) error {
	p.record(Action{Kind: "say", Ref: ref, Text: text})
	return nil
}

// Gather records the prompt.
func (p *Provider) Gather(ctx context.Context, ref, prompt string, numDigits int, timeout time.Duration) error {
	p.record(Action{Kind: "gather", Ref: ref, Text: prompt})
	return nil
}

// Hangup records the teardown.
func (p *Provider) Hangup(ctx context.Context, ref string, after time.Duration) error {
	p.record(Action{Kind: "hangup", Ref: ref})
	return nil
}

// Bridge records the room attachment.
func (p *Provider) Bridge(ctx context.Context, ref, room string) error {
	p.record(Action{Kind: "bridge", Ref: ref, Text: room})
	return nil
}

// Actions returns a copy of the recorded operations.
func (p *Provider) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

func (p *Provider) record(a Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, a)
}
