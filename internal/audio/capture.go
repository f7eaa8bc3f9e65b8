// Package audio owns the capture device for a session's lifetime and
// segments the PCM stream into utterances.
package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
)

var (
	ErrPermissionDenied  = errors.New("audio device permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrAlreadyStarted    = errors.New("capture already started")
)

// Source provides fixed-duration PCM frames from an input device. Start
// acquires the device; Stop releases it and closes the frame channel.
type Source interface {
	Start(ctx context.Context) (<-chan []int16, error)
	Stop()
}

// Hooks receive utterance boundary notifications as they are detected.
type Hooks struct {
	OnSpeechStart func()
	OnSpeechEnd   func()
}

// Capture acquires the input device, runs VAD segmentation, and emits each
// completed utterance exactly once, in capture order, on a bounded queue.
// The device is released on every exit path.
//
// A Capture is single-use: Stop closes the utterance queue for good, and a
// later Start is rejected. Capturing again means building a new Capture.
type Capture struct {
	cfg    config.LiveConfig
	source Source
	hooks  Hooks
	logger zerolog.Logger

	muted      atomic.Bool
	utterances chan []byte

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a capture controller over a source.
func New(cfg config.LiveConfig, source Source, hooks Hooks, logger zerolog.Logger) *Capture {
	return &Capture{
		cfg:        cfg,
		source:     source,
		hooks:      hooks,
		logger:     logger.With().Str("component", "audio").Logger(),
		utterances: make(chan []byte, cfg.UtteranceQueueSize),
	}
}

// Utterances returns the queue of completed utterances. The channel closes
// when capture stops; a partial utterance in progress at that point is
// discarded, never emitted.
func (c *Capture) Utterances() <-chan []byte {
	return c.utterances
}

// Start acquires the device and begins the capture loop.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	frames, err := c.source.Start(ctx)
	if err != nil {
		return err
	}

	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, frames)
	return nil
}

// SetMuted disables utterance emission without releasing the device, so
// un-muting is instantaneous.
func (c *Capture) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports the current mute flag.
func (c *Capture) Muted() bool {
	return c.muted.Load()
}

// Stop releases the device and retires the Capture. Safe to call repeatedly
// or before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.mu.Unlock()

	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}

func (c *Capture) loop(ctx context.Context, frames <-chan []int16) {
	// Release is unconditional: every exit path of this loop runs it.
	defer close(c.done)
	defer close(c.utterances)
	defer c.source.Stop()

	vad := NewVAD(c.cfg.VADThreshold, c.cfg.VADMinSpeech, c.cfg.VADTrailingSilence, c.cfg.FrameDuration)
	var buf []int16

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if c.muted.Load() {
				vad.Reset()
				buf = nil
				continue
			}

			event, capturing := vad.Process(frame)
			if capturing {
				buf = append(buf, frame...)
			}

			switch event {
			case vadStart:
				if c.hooks.OnSpeechStart != nil {
					c.hooks.OnSpeechStart()
				}
			case vadEnd:
				c.emit(buf)
				buf = nil
				if c.hooks.OnSpeechEnd != nil {
					c.hooks.OnSpeechEnd()
				}
			case vadNone:
				if !capturing {
					buf = nil
				}
			}
		}
	}
}

// emit enqueues one completed utterance as little-endian PCM bytes. If the
// consumer has fallen behind past the queue bound, the utterance is dropped
// rather than stalling the capture loop.
func (c *Capture) emit(samples []int16) {
	if len(samples) == 0 {
		return
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}

	select {
	case c.utterances <- pcm:
		c.logger.Debug().Int("bytes", len(pcm)).Msg("utterance captured")
	default:
		c.logger.Warn().Int("bytes", len(pcm)).Msg("utterance queue full, dropping")
	}
}
