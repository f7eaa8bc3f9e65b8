package voice

// Push event types delivered over the session stream.
const (
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// Event is one frame on the server-to-client push stream.
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}
