package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionVoiceTurnHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventSessionReady)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)

	next, err = Transition(next, EventVADStart)
	require.NoError(t, err)
	require.Equal(t, StateUserSpeaking, next)

	next, err = Transition(next, EventVADStop)
	require.NoError(t, err)
	require.Equal(t, StateProcessing, next)

	next, err = Transition(next, EventAssistantMsg)
	require.NoError(t, err)
	require.Equal(t, StateAiResponding, next)

	next, err = Transition(next, EventPlaybackDone)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)
}

func TestTransitionTextTurnSkipsCapture(t *testing.T) {
	next, err := Transition(StateListening, EventTextSent)
	require.NoError(t, err)
	require.Equal(t, StateProcessing, next)

	next, err = Transition(StateIdle, EventTextSent)
	require.NoError(t, err)
	require.Equal(t, StateProcessing, next)
}

func TestTransitionFailFromAnyStateGoesError(t *testing.T) {
	states := []State{StateIdle, StateListening, StateUserSpeaking, StateProcessing, StateAiResponding, StateError}
	for _, state := range states {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateError, next)
	}
}

func TestTransitionEndFromAnyStateGoesClosed(t *testing.T) {
	states := []State{StateIdle, StateListening, StateUserSpeaking, StateProcessing, StateAiResponding, StateError}
	for _, state := range states {
		next, err := Transition(state, EventEnd)
		require.NoError(t, err)
		require.Equal(t, StateClosed, next)
	}
}

func TestTransitionClosedIsAbsorbing(t *testing.T) {
	events := []Event{EventSessionReady, EventVADStart, EventFail, EventRetryOK, EventEnd}
	for _, event := range events {
		next, err := Transition(StateClosed, event)
		require.Error(t, err)
		require.Equal(t, StateClosed, next)
	}
}

func TestTransitionErrorRecoversOnlyViaRetry(t *testing.T) {
	next, err := Transition(StateError, EventRetryOK)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)

	next, err = Transition(StateError, EventAssistantMsg)
	require.Error(t, err)
	require.Equal(t, StateError, next)
}

func TestMachineResetReturnsToIdle(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Apply(EventSessionReady))
	require.NoError(t, m.Apply(EventEnd))
	require.Equal(t, StateClosed, m.State())

	require.Error(t, m.Apply(EventSessionReady))

	m.Reset()
	require.Equal(t, StateIdle, m.State())
	require.NoError(t, m.Apply(EventSessionReady))
}
