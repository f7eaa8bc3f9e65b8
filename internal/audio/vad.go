package audio

import (
	"math"
	"time"
)

type vadEvent int

const (
	vadNone vadEvent = iota
	vadStart
	vadEnd
)

// VAD classifies fixed-duration PCM frames into speech and silence using
// short-window RMS energy. A speech run shorter than the minimum sustained
// duration is treated as a transient and discarded; an utterance ends only
// after the trailing-silence timeout.
type VAD struct {
	threshold   float64
	startFrames int
	endFrames   int

	inSpeech   bool
	speechRun  int
	silenceRun int
}

// NewVAD converts the configured durations into frame counts for the given
// frame duration. Counts round up and are at least one frame.
func NewVAD(threshold float64, minSpeech, trailingSilence, frameDuration time.Duration) *VAD {
	return &VAD{
		threshold:   threshold,
		startFrames: framesFor(minSpeech, frameDuration),
		endFrames:   framesFor(trailingSilence, frameDuration),
	}
}

func framesFor(d, frame time.Duration) int {
	n := int((d + frame - 1) / frame)
	if n < 1 {
		n = 1
	}
	return n
}

// Process consumes one frame. It returns the boundary event this frame
// triggers, plus whether the frame belongs to a candidate utterance and
// should be buffered by the caller.
func (v *VAD) Process(frame []int16) (vadEvent, bool) {
	level := rms(frame)

	if !v.inSpeech {
		if level < v.threshold {
			v.speechRun = 0
			return vadNone, false
		}
		v.speechRun++
		if v.speechRun >= v.startFrames {
			v.inSpeech = true
			v.speechRun = 0
			return vadStart, true
		}
		return vadNone, true
	}

	if level < v.threshold {
		v.silenceRun++
		if v.silenceRun >= v.endFrames {
			v.inSpeech = false
			v.silenceRun = 0
			return vadEnd, false
		}
		return vadNone, true
	}
	v.silenceRun = 0
	return vadNone, true
}

// Reset clears all detector state.
func (v *VAD) Reset() {
	v.inSpeech = false
	v.speechRun = 0
	v.silenceRun = 0
}

// rms returns the normalized root-mean-square energy of a PCM frame.
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		n := float64(s) / 32768.0
		sum += n * n
	}
	return math.Sqrt(sum / float64(len(frame)))
}
