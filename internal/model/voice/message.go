package voice

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn half. Seq is monotonic per session and
// never reused. When both Content and Audio are set, Content is the
// transcript of the audio.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	Audio     []byte    `json:"audio,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}
