package voice

import "time"

// Session status values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session captures one live voice conversation owned by the session manager.
// Mute is a client-side capture concern and never reaches the server.
type Session struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	Messages   []Message `json:"messages,omitempty"`
}

// Status is the snapshot returned by the session status endpoint.
type StatusSnapshot struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}
