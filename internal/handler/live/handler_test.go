package live_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	livehandler "github.com/omnix-labs/omnix-voice/internal/handler/live"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
	liveservice "github.com/omnix-labs/omnix-voice/internal/service/live"
)

type stubBackend struct {
	reply   string
	block   chan struct{}
	started chan struct{}
}

func (s *stubBackend) Respond(ctx context.Context, _ []voice.Message, _ string) (string, error) {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, nil
}

func setupRouter(t *testing.T, backend *stubBackend) (*chi.Mux, *liveservice.Manager) {
	t.Helper()

	cfg := config.LiveConfig{
		IdleTimeout:       time.Hour,
		ReapInterval:      time.Hour,
		ProcessingTimeout: 2 * time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		EventBuffer:       32,
	}
	manager := liveservice.NewManager(cfg, backend, nil, nil, zerolog.Nop())
	t.Cleanup(manager.Close)

	handler := livehandler.New(manager, cfg.HeartbeatInterval, zerolog.Nop())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, manager
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(t, &stubBackend{reply: "hi"})

	req := httptest.NewRequest(http.MethodPost, "/live/session", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["session_id"] == "" {
		t.Fatal("expected session_id in response")
	}
}

func TestSubmitTextEcho(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "hello back"})
	session := manager.Create()

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/live/session/"+session.ID+"/text", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Text != "hello back" {
		t.Fatalf("unexpected echo text: %q", result.Text)
	}
}

func TestSubmitTextMissingBody(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "hi"})
	session := manager.Create()

	req := httptest.NewRequest(http.MethodPost, "/live/session/"+session.ID+"/text", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSubmitTextUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, &stubBackend{reply: "hi"})

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/live/session/nope/text", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSubmitTextTurnInProgress(t *testing.T) {
	backend := &stubBackend{
		reply:   "slow",
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	r, manager := setupRouter(t, backend)
	session := manager.Create()

	body, _ := json.Marshal(map[string]string{"text": "first"})
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/live/session/"+session.ID+"/text", bytes.NewReader(body))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-backend.started

	second, _ := json.Marshal(map[string]string{"text": "second"})
	req := httptest.NewRequest(http.MethodPost, "/live/session/"+session.ID+"/text", bytes.NewReader(second))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	close(backend.block)
}

func TestEndIsIdempotent(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "hi"})
	session := manager.Create()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/live/session/"+session.ID+"/end", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("end call %d: expected 200, got %d", i+1, resp.Code)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "hi"})
	session := manager.Create()

	req := httptest.NewRequest(http.MethodGet, "/live/session/"+session.ID+"/status", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var snapshot voice.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.SessionID != session.ID || snapshot.Status != voice.StatusActive {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	req = httptest.NewRequest(http.MethodGet, "/live/session/nope/status", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}
}

func TestStreamEmitsHeartbeatAndMessages(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "streamed"})
	session := manager.Create()

	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/live/session/" + session.ID + "/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readSSEEvent(t, reader)
	if first.Type != voice.EventHeartbeat {
		t.Fatalf("expected initial heartbeat, got %q", first.Type)
	}

	if _, err := manager.SubmitText(context.Background(), session.ID, "hello"); err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}

	for {
		event := readSSEEvent(t, reader)
		if event.Type == voice.EventHeartbeat {
			continue
		}
		if event.Type != voice.EventMessage {
			t.Fatalf("unexpected event type %q", event.Type)
		}
		if event.Message.Content != "streamed" || event.Message.Seq != 1 {
			t.Fatalf("unexpected message: %+v", event.Message)
		}
		return
	}
}

func TestWebSocketPushDeliversHeartbeat(t *testing.T) {
	r, manager := setupRouter(t, &stubBackend{reply: "hi"})
	session := manager.Create()

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/session/" + session.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var event voice.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != voice.EventHeartbeat {
		t.Fatalf("expected heartbeat, got %q", event.Type)
	}
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) voice.Event {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event voice.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event
	}
}
