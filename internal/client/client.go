// Package client implements the client half of the live voice protocol:
// session creation, input submission, push stream consumption, and the
// conversation state machine that gates the UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/fsm"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
)

var (
	ErrSessionCreateFailed = errors.New("session create failed")
	ErrSessionNotFound     = errors.New("session not found")
	ErrTurnInProgress      = errors.New("turn in progress")
	ErrNoSession           = errors.New("no active session")
)

// CaptureSource is the client-facing subset of the audio capture controller.
type CaptureSource interface {
	Start(ctx context.Context) error
	Stop()
	SetMuted(muted bool)
	Utterances() <-chan []byte
}

// Player renders one assistant message. It blocks until playback completes;
// the state machine returns to Listening only after it does.
type Player func(ctx context.Context, msg voice.Message) error

// Result is the synchronous reply echoed by a submit call.
type Result struct {
	Text  string `json:"text,omitempty"`
	Audio []byte `json:"audio,omitempty"`
}

// Client drives one live voice session against a server.
type Client struct {
	baseURL string
	cfg     config.LiveConfig
	httpc   *http.Client
	capture CaptureSource
	player  Player
	machine *fsm.Machine
	logger  zerolog.Logger

	mu        sync.Mutex
	sessionID string
	push      *PushChannel
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	ended     bool
}

// New builds a client. capture may be nil for text-only use; player may be
// nil when assistant audio should be dropped instead of played.
func New(baseURL string, cfg config.LiveConfig, capture CaptureSource, player Player, logger zerolog.Logger) *Client {
	if player == nil {
		player = func(context.Context, voice.Message) error { return nil }
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		httpc:   &http.Client{},
		capture: capture,
		player:  player,
		machine: fsm.NewMachine(),
		logger:  logger.With().Str("component", "client").Logger(),
	}
}

// State returns the current conversation state.
func (c *Client) State() fsm.State {
	return c.machine.State()
}

// ConnectionState returns the push channel state, or closed before Start.
func (c *Client) ConnectionState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.push == nil {
		return StateClosed
	}
	return c.push.State()
}

// CreateSession requests a new session. It must succeed before any input
// can be sent.
func (c *Client) CreateSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/live/session", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionCreateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionCreateFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: server returned %d", ErrSessionCreateFailed, resp.StatusCode)
	}

	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.SessionID == "" {
		return fmt.Errorf("%w: malformed create response", ErrSessionCreateFailed)
	}

	c.mu.Lock()
	c.sessionID = payload.SessionID
	c.mu.Unlock()

	c.logger.Info().Str("session", payload.SessionID).Msg("session created")
	return nil
}

// Start acquires the capture device, opens the push channel, and begins
// consuming events. The session must already exist.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return ErrNoSession
	}

	if c.capture != nil {
		if err := c.capture.Start(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.push = NewPushChannel(c.cfg, WebSocketDialer(c.wsURL()), c.onPushOpen, c.logger)

	c.loops.Add(1)
	go func() {
		defer c.loops.Done()
		c.consumeEvents(runCtx, c.push)
	}()

	if c.capture != nil {
		c.loops.Add(1)
		go func() {
			defer c.loops.Done()
			c.pumpUtterances(runCtx)
		}()
	}

	if err := c.machine.Apply(fsm.EventSessionReady); err != nil {
		c.logger.Warn().Err(err).Msg("state transition rejected")
	}
	return nil
}

// SendText submits one text input for the current turn.
func (c *Client) SendText(ctx context.Context, text string) (*Result, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	result, err := c.submit(ctx, "/text", body)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SendUtterance submits one captured utterance.
func (c *Client) SendUtterance(ctx context.Context, audio []byte) (*Result, error) {
	body, _ := json.Marshal(map[string][]byte{"audio": audio})
	return c.submit(ctx, "/audio", body)
}

// SetMuted toggles audio emission without releasing the capture device.
func (c *Client) SetMuted(muted bool) {
	if c.capture != nil {
		c.capture.SetMuted(muted)
	}
}

// Retry re-opens the push channel after the state machine entered Error.
func (c *Client) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.ended || c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	push := NewPushChannel(c.cfg, WebSocketDialer(c.wsURL()), c.onPushOpen, c.logger)
	c.push = push
	c.mu.Unlock()

	c.loops.Add(1)
	go func() {
		defer c.loops.Done()
		c.consumeEvents(runCtx, push)
	}()
	return nil
}

// End stops capture, closes the push channel, and asks the server to
// release the session. It is safe to call repeatedly or before Start.
func (c *Client) End() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	sessionID := c.sessionID
	cancel := c.cancel
	c.mu.Unlock()

	if c.capture != nil {
		c.capture.Stop()
	}
	if cancel != nil {
		cancel()
	}
	c.loops.Wait()

	if sessionID != "" {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/live/session/"+sessionID+"/end", nil)
		if err == nil {
			if resp, err := c.httpc.Do(req); err == nil {
				resp.Body.Close()
			} else {
				c.logger.Warn().Err(err).Msg("session end request failed")
			}
		}
	}

	if err := c.machine.Apply(fsm.EventEnd); err != nil {
		c.logger.Debug().Err(err).Msg("end transition rejected")
	}
	return nil
}

func (c *Client) submit(ctx context.Context, suffix string, body []byte) (*Result, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return nil, ErrNoSession
	}

	// Enter Processing before the request goes out: the push event carrying
	// the reply can arrive ahead of the HTTP response, and it must find the
	// machine already waiting. The audio path is in Processing by now, so a
	// rejected apply here just means there is nothing to roll back.
	moved := c.machine.Apply(fsm.EventTextSent) == nil
	result, err := c.postInput(ctx, sessionID, suffix, body)
	if err != nil && moved {
		_ = c.machine.Apply(fsm.EventFail)
		_ = c.machine.Apply(fsm.EventRetryOK)
	}
	return result, err
}

func (c *Client) postInput(ctx context.Context, sessionID, suffix string, body []byte) (*Result, error) {
	url := c.baseURL + "/api/live/session/" + sessionID + suffix
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSessionNotFound
	case http.StatusConflict:
		return nil, ErrTurnInProgress
	default:
		return nil, fmt.Errorf("submit failed: server returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &result, nil
}

// consumeEvents drives the state machine from the push stream.
func (c *Client) consumeEvents(ctx context.Context, push *PushChannel) {
	done := make(chan error, 1)
	go func() { done <- push.Run(ctx) }()

	for event := range push.Events() {
		switch event.Type {
		case voice.EventMessage:
			if event.Message == nil || event.Message.Role != voice.RoleAssistant {
				continue
			}
			c.handleAssistantMessage(ctx, *event.Message)
		case voice.EventError:
			c.logger.Warn().Str("detail", event.Detail).Msg("server reported turn failure")
			// The turn slot is free again; return to listening if we were
			// waiting on a response.
			if c.machine.State() == fsm.StateProcessing {
				_ = c.machine.Apply(fsm.EventFail)
				_ = c.machine.Apply(fsm.EventRetryOK)
			}
		}
	}

	if err := <-done; errors.Is(err, ErrConnectionLost) {
		c.logger.Error().Msg("push channel lost beyond retry budget")
		if err := c.machine.Apply(fsm.EventFail); err != nil {
			c.logger.Debug().Err(err).Msg("fail transition rejected")
		}
	}
}

func (c *Client) handleAssistantMessage(ctx context.Context, msg voice.Message) {
	if err := c.machine.Apply(fsm.EventAssistantMsg); err != nil {
		c.logger.Debug().Err(err).Int64("seq", msg.Seq).Msg("assistant transition rejected")
	}

	if err := c.player(ctx, msg); err != nil {
		c.logger.Warn().Err(err).Int64("seq", msg.Seq).Msg("playback failed")
	}

	if err := c.machine.Apply(fsm.EventPlaybackDone); err != nil {
		c.logger.Debug().Err(err).Msg("playback transition rejected")
	}
}

// pumpUtterances forwards completed utterances to the server in capture
// order. An utterance arriving while a turn is in flight is dropped rather
// than interleaved.
func (c *Client) pumpUtterances(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case utterance, ok := <-c.capture.Utterances():
			if !ok {
				return
			}
			if _, err := c.SendUtterance(ctx, utterance); err != nil {
				if errors.Is(err, ErrTurnInProgress) {
					c.logger.Warn().Msg("utterance dropped, turn in progress")
					continue
				}
				c.logger.Error().Err(err).Msg("utterance submit failed")
			}
		}
	}
}

// NotifySpeechStart reflects a VAD start boundary into the state machine.
func (c *Client) NotifySpeechStart() {
	if err := c.machine.Apply(fsm.EventVADStart); err != nil {
		c.logger.Debug().Err(err).Msg("vad start transition rejected")
	}
}

// NotifySpeechEnd reflects a completed utterance boundary.
func (c *Client) NotifySpeechEnd() {
	if err := c.machine.Apply(fsm.EventVADStop); err != nil {
		c.logger.Debug().Err(err).Msg("vad stop transition rejected")
	}
}

// onPushOpen recovers the state machine after a successful manual retry.
func (c *Client) onPushOpen() {
	if c.machine.State() == fsm.StateError {
		if err := c.machine.Apply(fsm.EventRetryOK); err != nil {
			c.logger.Debug().Err(err).Msg("retry transition rejected")
		}
	}
}

func (c *Client) wsURL() string {
	url := c.baseURL + "/api/live/session/" + c.sessionID + "/ws"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}
