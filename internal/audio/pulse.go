package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// PulseSource captures mono s16 frames from the default Pulse input source.
type PulseSource struct {
	sampleRate   int
	frameSamples int

	mu      sync.Mutex
	client  *pulse.Client
	stream  *pulse.RecordStream
	frames  chan []int16
	partial []byte
	stopped bool
	started bool
}

// NewPulseSource sizes frames from the configured sample rate and frame
// duration in samples.
func NewPulseSource(sampleRate, frameSamples int) *PulseSource {
	return &PulseSource{
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
	}
}

// Start connects to the Pulse server and starts the record stream. Device
// errors are mapped onto the capture error taxonomy so callers can tell a
// refused permission from a missing device.
func (p *PulseSource) Start(ctx context.Context) (<-chan []int16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("omnix-voice"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, classifyDeviceError(err)
	}

	frames := make(chan []int16, 128)
	p.client = client
	p.frames = frames
	p.stopped = false
	p.started = true

	writer := pulse.NewWriter(writerFunc(p.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordMono,
		pulse.RecordSampleRate(p.sampleRate),
		pulse.RecordMediaName("omnix-voice capture"),
	)
	if err != nil {
		client.Close()
		p.client = nil
		return nil, classifyDeviceError(err)
	}

	p.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return frames, nil
}

// onPCM slices incoming little-endian PCM into fixed-size sample frames.
func (p *PulseSource) onPCM(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return len(data), nil
	}

	p.partial = append(p.partial, data...)
	frameBytes := p.frameSamples * 2
	for len(p.partial) >= frameBytes {
		frame := make([]int16, p.frameSamples)
		for i := range frame {
			frame[i] = int16(p.partial[i*2]) | int16(p.partial[i*2+1])<<8
		}
		p.partial = p.partial[frameBytes:]

		select {
		case p.frames <- frame:
		default:
			// Consumer fell behind; dropping is better than blocking Pulse.
		}
	}
	return len(data), nil
}

// Stop tears down the stream and connection. Safe to call repeatedly and
// before Start.
func (p *PulseSource) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return
	}
	p.stopped = true

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
		p.stream = nil
	}
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	if p.frames != nil {
		close(p.frames)
		p.frames = nil
	}
	p.partial = nil
}

// writerFunc satisfies io.Writer so onPCM can receive the record stream.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
