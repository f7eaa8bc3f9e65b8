// Package live owns voice session lifecycle: turn serialization, the
// per-session message log, push fan-out, and idle expiry.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
	"github.com/omnix-labs/omnix-voice/internal/service/ai"
	"github.com/omnix-labs/omnix-voice/internal/service/speech"
)

// Result is the synchronous echo returned to the submitter. The same
// assistant message is also delivered on the push stream.
type Result struct {
	Text  string `json:"text,omitempty"`
	Audio []byte `json:"audio,omitempty"`
}

// session is the manager-private state for one live conversation.
// All fields are guarded by Manager.mu.
type session struct {
	data       voice.Session
	nextSeq    int64
	turnActive bool
	turnCancel context.CancelFunc
	events     chan voice.Event
}

// Manager owns all live sessions. Submission is serialized per session:
// at most one turn is in flight, and concurrent submits are rejected with
// ErrTurnInProgress rather than interleaved into the model context.
type Manager struct {
	cfg         config.LiveConfig
	backend     ai.Backend
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	reapDone chan struct{}
	stopOnce sync.Once
}

// NewManager builds the session manager and starts the idle reaper.
// Transcriber and synthesizer may be nil when no speech provider is
// configured; audio submission then fails with ErrSpeechUnavailable.
func NewManager(cfg config.LiveConfig, backend ai.Backend, transcriber speech.Transcriber, synthesizer speech.Synthesizer, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:         cfg,
		backend:     backend,
		transcriber: transcriber,
		synthesizer: synthesizer,
		logger:      logger.With().Str("component", "live").Logger(),
		sessions:    make(map[string]*session),
		reapDone:    make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Close stops the reaper and ends every remaining session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.reapDone) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.End(id)
	}
}

// Create allocates a fresh session.
func (m *Manager) Create() voice.Session {
	now := time.Now().UTC()
	sess := &session{
		data: voice.Session{
			ID:         uuid.NewString(),
			Status:     voice.StatusActive,
			CreatedAt:  now,
			LastActive: now,
		},
		events: make(chan voice.Event, m.cfg.EventBuffer),
	}

	m.mu.Lock()
	m.sessions[sess.data.ID] = sess
	m.mu.Unlock()

	m.logger.Info().Str("session", sess.data.ID).Msg("session created")
	return sess.data
}

// Subscribe returns the ordered push channel for a session. The channel is
// closed when the session ends; events queued while no reader is attached
// are retained up to the configured buffer.
func (m *Manager) Subscribe(sessionID string) (<-chan voice.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.events, nil
}

// Status returns a point-in-time session snapshot.
func (m *Manager) Status(sessionID string) (voice.StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return voice.StatusSnapshot{}, ErrSessionNotFound
	}
	return voice.StatusSnapshot{
		SessionID:    sess.data.ID,
		Status:       sess.data.Status,
		CreatedAt:    sess.data.CreatedAt,
		MessageCount: len(sess.data.Messages),
	}, nil
}

// Transcript returns a copy of the session's ordered message log.
func (m *Manager) Transcript(sessionID string) ([]voice.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	messages := make([]voice.Message, len(sess.data.Messages))
	copy(messages, sess.data.Messages)
	return messages, nil
}

// SubmitText runs one text turn through the backend.
func (m *Manager) SubmitText(ctx context.Context, sessionID, text string) (*Result, error) {
	return m.submit(ctx, sessionID, text, nil)
}

// SubmitAudio transcribes the utterance, then runs the turn as text. The
// user message keeps the original audio with its transcript as content.
func (m *Manager) SubmitAudio(ctx context.Context, sessionID string, audio []byte) (*Result, error) {
	if m.transcriber == nil {
		return nil, ErrSpeechUnavailable
	}

	transcript, err := m.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return m.submit(ctx, sessionID, transcript, audio)
}

// submit enforces the single-active-turn invariant, then runs the backend
// call outside the manager lock so one session never stalls another.
func (m *Manager) submit(ctx context.Context, sessionID, text string, audio []byte) (*Result, error) {
	turnCtx, history, err := m.beginTurn(ctx, sessionID, text, audio)
	if err != nil {
		return nil, err
	}

	reply, err := m.backend.Respond(turnCtx, history, text)
	if err != nil {
		m.failTurn(sessionID, err, turnCtx)
		if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrProcessingTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var replyAudio []byte
	if m.synthesizer != nil {
		replyAudio, err = m.synthesizer.Synthesize(turnCtx, reply)
		if err != nil {
			// Voice is best-effort; the text reply still completes the turn.
			m.logger.Warn().Err(err).Str("session", sessionID).Msg("synthesis failed")
			replyAudio = nil
		}
	}

	if err := m.finishTurn(sessionID, reply, replyAudio); err != nil {
		return nil, err
	}
	return &Result{Text: reply, Audio: replyAudio}, nil
}

// beginTurn atomically claims the session's turn slot and appends the user
// message. It returns the turn context and a history snapshot that excludes
// the new input (the backend receives it as the query).
func (m *Manager) beginTurn(ctx context.Context, sessionID, text string, audio []byte) (context.Context, []voice.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if sess.turnActive {
		return nil, nil, ErrTurnInProgress
	}

	turnCtx, cancel := context.WithTimeout(ctx, m.cfg.ProcessingTimeout)
	sess.turnActive = true
	sess.turnCancel = cancel
	sess.data.LastActive = time.Now().UTC()

	history := make([]voice.Message, len(sess.data.Messages))
	copy(history, sess.data.Messages)

	m.appendLocked(sess, voice.Message{
		Role:    voice.RoleUser,
		Content: text,
		Audio:   audio,
	})

	return turnCtx, history, nil
}

// finishTurn appends the assistant message, frees the turn slot, and pushes
// the message to the subscriber. The session may have ended mid-turn.
func (m *Manager) finishTurn(sessionID, reply string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	sess.turnCancel()
	sess.turnActive = false
	sess.turnCancel = nil
	sess.data.LastActive = time.Now().UTC()

	msg := m.appendLocked(sess, voice.Message{
		Role:    voice.RoleAssistant,
		Content: reply,
		Audio:   audio,
	})
	m.pushLocked(sess, voice.Event{Type: voice.EventMessage, Message: &msg})
	return nil
}

// failTurn frees the turn slot and notifies the subscriber.
func (m *Manager) failTurn(sessionID string, cause error, turnCtx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	sess.turnCancel()
	sess.turnActive = false
	sess.turnCancel = nil

	detail := cause.Error()
	if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
		detail = ErrProcessingTimeout.Error()
	}
	m.logger.Warn().Str("session", sessionID).Str("detail", detail).Msg("turn failed")
	m.pushLocked(sess, voice.Event{Type: voice.EventError, Detail: detail})
}

// End releases everything bound to the session. Calling it for an unknown
// or already-ended session is a no-op.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}

	if sess.turnCancel != nil {
		sess.turnCancel()
		sess.turnCancel = nil
	}
	sess.data.Status = voice.StatusEnded
	close(sess.events)
	delete(m.sessions, sessionID)

	m.logger.Info().Str("session", sessionID).Msg("session ended")
	return nil
}

// appendLocked assigns the next sequence number and appends the message.
func (m *Manager) appendLocked(sess *session, msg voice.Message) voice.Message {
	msg.Seq = sess.nextSeq
	sess.nextSeq++
	msg.CreatedAt = time.Now().UTC()
	sess.data.Messages = append(sess.data.Messages, msg)
	return msg
}

// pushLocked delivers an event to the session's subscriber channel in FIFO
// order. A subscriber that stays away past the buffer loses oldest-first.
func (m *Manager) pushLocked(sess *session, event voice.Event) {
	for {
		select {
		case sess.events <- event:
			return
		default:
		}
		select {
		case dropped := <-sess.events:
			m.logger.Warn().Str("session", sess.data.ID).Str("type", dropped.Type).Msg("push buffer full, dropping oldest event")
		default:
		}
	}
}

// reapLoop destroys sessions idle past the configured timeout.
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reapDone:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []string
	for id, sess := range m.sessions {
		if !sess.turnActive && sess.data.LastActive.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Info().Str("session", id).Msg("reaping idle session")
		_ = m.End(id)
	}
}
