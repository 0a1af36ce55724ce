package telephony

import (
	"context"
	"time"
)

// PlaceCallParams describes an outbound call to originate.
type PlaceCallParams struct {
	To               string
	From             string
	MachineDetection bool
	// Metadata is echoed back on every lifecycle callback for this call.
	Metadata map[string]string
}

// Provider abstracts the voice vendor's call-control surface. Lifecycle
// progress arrives asynchronously on the webhook endpoint; the returned
// provider ref is the correlation handle for those callbacks.
type Provider interface {
	// PlaceCall originates an outbound call and returns the provider ref.
	PlaceCall(ctx context.Context, params PlaceCallParams) (string, error)
	// Say synthesizes speech on the live call leg.
	Say(ctx context.Context, ref, text string) error
	// Gather begins bounded DTMF collection after speaking the prompt.
	Gather(ctx context.Context, ref, prompt string, numDigits int, timeout time.Duration) error
	// Hangup tears down the leg, optionally after a delay so queued audio
	// can finish playing.
	Hangup(ctx context.Context, ref string, after time.Duration) error
	// Bridge attaches the call leg's audio into a conversation room. Audio
	// flows both directions for the life of the bridge.
	Bridge(ctx context.Context, ref, room string) error
}
