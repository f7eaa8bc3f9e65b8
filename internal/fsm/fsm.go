// Package fsm models conversation turn-taking as a pure state transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateUserSpeaking State = "user_speaking"
	StateProcessing   State = "processing"
	StateAiResponding State = "ai_responding"
	StateError        State = "error"
	StateClosed       State = "closed"
)

const (
	// EventSessionReady fires once the session is created and the capture
	// device is acquired.
	EventSessionReady Event = "session_ready"
	EventVADStart     Event = "vad_start"
	EventVADStop      Event = "vad_stop"
	EventTextSent     Event = "text_sent"
	EventAssistantMsg Event = "assistant_message"
	EventPlaybackDone Event = "playback_done"
	EventFail         Event = "fail"
	EventRetryOK      Event = "retry_ok"
	EventEnd          Event = "end"
)

// Transition applies one event to the current state. Closed is absorbing;
// Error is absorbing except for a successful manual retry.
func Transition(current State, event Event) (State, error) {
	if current == StateClosed {
		return current, invalidTransition(current, event)
	}
	switch event {
	case EventEnd:
		return StateClosed, nil
	case EventFail:
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventSessionReady:
			return StateListening, nil
		case EventTextSent:
			// Text-only sessions skip capture entirely.
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventVADStart:
			return StateUserSpeaking, nil
		case EventTextSent:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateUserSpeaking:
		switch event {
		case EventVADStop:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventAssistantMsg:
			return StateAiResponding, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAiResponding:
		switch event {
		case EventPlaybackDone:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventRetryOK:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
