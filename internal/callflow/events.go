package callflow

import (
	"fmt"
	"time"
)

// EventType tags a call-lifecycle callback from the voice provider.
type EventType string

const (
	EventInitiated             EventType = "initiated"
	EventAnswered              EventType = "answered"
	EventSpeechEnded           EventType = "speech_ended"
	EventDigitsGathered        EventType = "digits_gathered"
	EventMachineDetectionEnded EventType = "machine_detection_ended"
	EventHangup                EventType = "hangup"
)

// MachineResultMachine is the detection verdict for an answering machine.
const MachineResultMachine = "machine"

// Event is one provider callback, already verified and decoded.
type Event struct {
	Type        EventType
	ProviderRef string
	// Digits carries collected DTMF input; empty means the gather timed out.
	Digits string
	// MachineResult is the answering-machine detection verdict.
	MachineResult string
	// Duration is the total call duration, present on hangup.
	Duration   time.Duration
	OccurredAt time.Time
}

// ParseEventType validates a wire-level event name.
func ParseEventType(raw string) (EventType, error) {
	switch t := EventType(raw); t {
	case EventInitiated, EventAnswered, EventSpeechEnded, EventDigitsGathered,
		EventMachineDetectionEnded, EventHangup:
		return t, nil
	}
	return "", fmt.Errorf("callflow: unknown event type %q", raw)
}
