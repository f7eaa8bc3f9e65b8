package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testFrame = 20 * time.Millisecond

func speechFrame(samples int) []int16 {
	frame := make([]int16, samples)
	for i := range frame {
		frame[i] = 5000
	}
	return frame
}

func silenceFrame(samples int) []int16 {
	return make([]int16, samples)
}

func TestVADSingleUtteranceForFixedTrace(t *testing.T) {
	// 600ms of speech then 800ms of silence against 500ms/700ms thresholds
	// must produce exactly one start and one end.
	v := NewVAD(0.01, 500*time.Millisecond, 700*time.Millisecond, testFrame)

	var starts, ends int
	feed := func(frame []int16) {
		event, _ := v.Process(frame)
		switch event {
		case vadStart:
			starts++
		case vadEnd:
			ends++
		}
	}

	for i := 0; i < 30; i++ { // 600ms
		feed(speechFrame(320))
	}
	for i := 0; i < 40; i++ { // 800ms
		feed(silenceFrame(320))
	}

	require.Equal(t, 1, starts)
	require.Equal(t, 1, ends)
}

func TestVADDeterministicBoundaries(t *testing.T) {
	v := NewVAD(0.01, 500*time.Millisecond, 700*time.Millisecond, testFrame)

	// Start fires on the 25th consecutive speech frame (500ms / 20ms).
	for i := 0; i < 24; i++ {
		event, capturing := v.Process(speechFrame(320))
		require.Equal(t, vadNone, event)
		require.True(t, capturing)
	}
	event, capturing := v.Process(speechFrame(320))
	require.Equal(t, vadStart, event)
	require.True(t, capturing)

	// End fires on the 35th consecutive silence frame (700ms / 20ms).
	for i := 0; i < 34; i++ {
		event, capturing = v.Process(silenceFrame(320))
		require.Equal(t, vadNone, event)
		require.True(t, capturing)
	}
	event, capturing = v.Process(silenceFrame(320))
	require.Equal(t, vadEnd, event)
	require.False(t, capturing)
}

func TestVADDebouncesTransients(t *testing.T) {
	v := NewVAD(0.01, 500*time.Millisecond, 700*time.Millisecond, testFrame)

	// A 100ms burst is shorter than the 500ms sustain requirement.
	for i := 0; i < 5; i++ {
		event, _ := v.Process(speechFrame(320))
		require.Equal(t, vadNone, event)
	}
	event, capturing := v.Process(silenceFrame(320))
	require.Equal(t, vadNone, event)
	require.False(t, capturing)
}

func TestVADSilenceResetMidSpeechRun(t *testing.T) {
	v := NewVAD(0.01, 100*time.Millisecond, 100*time.Millisecond, testFrame)

	// Brief silence inside an utterance does not end it.
	for i := 0; i < 5; i++ {
		v.Process(speechFrame(320))
	}
	event, capturing := v.Process(silenceFrame(320))
	require.Equal(t, vadNone, event)
	require.True(t, capturing)

	event, capturing = v.Process(speechFrame(320))
	require.Equal(t, vadNone, event)
	require.True(t, capturing)
}

func TestRMS(t *testing.T) {
	require.Zero(t, rms(nil))
	require.Zero(t, rms(silenceFrame(320)))
	require.InDelta(t, 5000.0/32768.0, rms(speechFrame(320)), 1e-9)
}
