package live

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/omnix-labs/omnix-voice/internal/model/voice"
	"github.com/omnix-labs/omnix-voice/pkg/utils"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket delivers the same push event sequence as the SSE stream
// over a websocket. This is the transport the Go client dials, because it
// keeps reconnection and liveness detection symmetric on both sides.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	events, err := h.manager.Subscribe(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Info().Str("session", sessionID).Msg("websocket push opened")

	// Reader goroutine only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	if err := h.writeEvent(conn, voice.Event{Type: voice.EventHeartbeat}); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			h.logger.Info().Str("session", sessionID).Msg("websocket push closed by client")
			return
		case event, open := <-events:
			if !open {
				deadline := time.Now().Add(writeTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
				return
			}
			if err := h.writeEvent(conn, event); err != nil {
				h.logger.Warn().Err(err).Str("session", sessionID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := h.writeEvent(conn, voice.Event{Type: voice.EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, event voice.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}
