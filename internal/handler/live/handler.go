// Package live exposes the voice session REST surface plus its SSE and
// websocket push streams.
package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/model/voice"
	liveservice "github.com/omnix-labs/omnix-voice/internal/service/live"
	"github.com/omnix-labs/omnix-voice/pkg/utils"
)

// Handler serves the live session HTTP routes.
type Handler struct {
	manager           *liveservice.Manager
	heartbeatInterval time.Duration
	logger            zerolog.Logger
}

// New creates the live session handler.
func New(manager *liveservice.Manager, heartbeatInterval time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		manager:           manager,
		heartbeatInterval: heartbeatInterval,
		logger:            logger.With().Str("component", "live-handler").Logger(),
	}
}

// RegisterRoutes mounts the live session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/live/session", func(sr chi.Router) {
		sr.Post("/", h.handleCreate)
		sr.Post("/{sessionID}/text", h.handleText)
		sr.Post("/{sessionID}/audio", h.handleAudio)
		sr.Get("/{sessionID}/stream", h.handleStream)
		sr.Get("/{sessionID}/ws", h.handleWebSocket)
		sr.Post("/{sessionID}/end", h.handleEnd)
		sr.Get("/{sessionID}/status", h.handleStatus)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, _ *http.Request) {
	session := h.manager.Create()
	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"session_id": session.ID,
		"status":     "created",
	})
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.manager.SubmitText(r.Context(), sessionID, payload.Text)
	if err != nil {
		h.respondSubmitError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Audio []byte `json:"audio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Audio) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio data is required")
		return
	}

	result, err := h.manager.SubmitAudio(r.Context(), sessionID, payload.Audio)
	if err != nil {
		h.respondSubmitError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	_ = h.manager.End(sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "ended",
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snapshot, err := h.manager.Status(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

// handleStream delivers push events over Server-Sent Events. Heartbeats go
// out on the configured interval regardless of conversation activity.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := h.manager.Subscribe(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.SetupSSEHeaders(w)
	h.logger.Info().Str("session", sessionID).Msg("sse stream opened")

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	// Immediate heartbeat so the client can confirm liveness on open.
	utils.SendSSEChunk(w, flusher, voice.Event{Type: voice.EventHeartbeat})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("session", sessionID).Msg("sse stream closed by client")
			return
		case event, open := <-events:
			if !open {
				h.logger.Info().Str("session", sessionID).Msg("sse stream closed, session ended")
				return
			}
			utils.SendSSEChunk(w, flusher, event)
		case <-ticker.C:
			utils.SendSSEChunk(w, flusher, voice.Event{Type: voice.EventHeartbeat})
		}
	}
}

func (h *Handler) respondSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, liveservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, liveservice.ErrTurnInProgress):
		utils.RespondError(w, http.StatusConflict, "turn in progress")
	case errors.Is(err, liveservice.ErrProcessingTimeout):
		utils.RespondError(w, http.StatusGatewayTimeout, "processing timeout")
	case errors.Is(err, liveservice.ErrSpeechUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
	default:
		utils.RespondError(w, http.StatusBadGateway, "backend error")
	}
}
