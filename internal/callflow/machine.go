package callflow

import (
	"time"

	"github.com/acme/voice-outreach/internal/domain"
)

// Effect is a side effect requested by a transition. Effects are
// executed in order by the Driver; Transition itself never touches
// the provider or storage.
type Effect interface{ isEffect() }

// Say speaks text on the call.
type Say struct{ Text string }

// Gather collects up to NumDigits DTMF digits.
type Gather struct {
	Prompt    string
	NumDigits int
	Timeout   time.Duration
}

// Hangup ends the call after a grace period so queued audio finishes.
type Hangup struct{ After time.Duration }

// SetOutcome records the call outcome so far.
type SetOutcome struct{ Outcome domain.CallOutcome }

// UpdateAppointment moves the linked appointment to a new status.
type UpdateAppointment struct{ Status domain.AppointmentStatus }

// OpenConversation attaches an AI conversation to the call.
type OpenConversation struct{}

// EndCall closes out the session: persist the final outcome and
// duration, settle campaign bookkeeping, publish, and tear down.
type EndCall struct{ Duration time.Duration }

func (Say) isEffect()               {}
func (Gather) isEffect()            {}
func (Hangup) isEffect()            {}
func (SetOutcome) isEffect()        {}
func (UpdateAppointment) isEffect() {}
func (OpenConversation) isEffect()  {}
func (EndCall) isEffect()           {}

const (
	hangupGrace   = 3 * time.Second
	gatherTimeout = 6 * time.Second
)

// Transition advances a session for one event and returns the new
// state plus the effects to execute. It is pure: callers apply the
// returned state and effects themselves. Events that do not apply to
// the current state fall through with no effects, which makes
// duplicate and late provider callbacks harmless.
func Transition(s *Session, ev Event) (State, []Effect) {
	switch ev.Type {
	case EventAnswered:
		return onAnswered(s)

	case EventMachineDetectionEnded:
		if ev.MachineResult != MachineResultMachine {
			return s.State, nil
		}
		// Machine picked up: leave a message regardless of where the
		// scripted flow had gotten to.
		if s.State == StateVoicemail || s.State == StateDone {
			return s.State, nil
		}
		return StateVoicemail, []Effect{
			SetOutcome{domain.CallOutcomeVoicemail},
			Say{s.Lines.Voicemail},
			Hangup{hangupGrace},
		}

	case EventSpeechEnded:
		return onSpeechEnded(s)

	case EventDigitsGathered:
		return onDigits(s, ev.Digits)

	case EventHangup:
		var fx []Effect
		if !s.Outcome.Decisive() {
			fx = append(fx, SetOutcome{domain.CallOutcomeNoAnswer})
		}
		fx = append(fx, EndCall{Duration: ev.Duration})
		return StateDone, fx

	default:
		return s.State, nil
	}
}

func onAnswered(s *Session) (State, []Effect) {
	if s.State != "" && s.State != StateAnswered {
		return s.State, nil
	}
	if s.Mode == ModeConversational {
		if s.ConversationID != "" {
			return s.State, nil
		}
		return StateAnswered, []Effect{
			SetOutcome{domain.CallOutcomeAnswered},
			OpenConversation{},
		}
	}
	return StateSpeaking, []Effect{
		SetOutcome{domain.CallOutcomeAnswered},
		Say{s.Lines.Greeting},
	}
}

func onSpeechEnded(s *Session) (State, []Effect) {
	if s.Mode == ModeConversational {
		return s.State, nil
	}
	switch s.State {
	case StateSpeaking:
		if s.Kind == domain.CallKindReminder {
			return StateGathering, []Effect{
				Gather{NumDigits: 1, Timeout: gatherTimeout},
			}
		}
		// Outreach calls on the basic path have nothing to collect.
		return StateClosing, []Effect{
			Say{s.Lines.Closing},
			Hangup{hangupGrace},
		}
	default:
		return s.State, nil
	}
}

func onDigits(s *Session, digits string) (State, []Effect) {
	if s.State != StateGathering {
		return s.State, nil
	}
	switch digits {
	case "1":
		return StateClosing, []Effect{
			SetOutcome{domain.CallOutcomeConfirmed},
			UpdateAppointment{domain.AppointmentStatusConfirmed},
			Say{s.Lines.Confirmed},
			Hangup{hangupGrace},
		}
	case "2":
		return StateClosing, []Effect{
			SetOutcome{domain.CallOutcomeRescheduled},
			UpdateAppointment{domain.AppointmentStatusRescheduled},
			Say{s.Lines.Reschedule},
			Hangup{hangupGrace},
		}
	default:
		// Timeout or an unexpected key: close out politely.
		return StateClosing, []Effect{
			Say{s.Lines.Closing},
			Hangup{hangupGrace},
		}
	}
}
