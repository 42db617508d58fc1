package chat

import "time"

// Roles recognized in a conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single entry in a session's conversation history.
type Turn struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session captures a conversation's persisted state. History is kept as a
// FIFO window; the store drops the oldest turns beyond the retention limit.
type Session struct {
	ID           string    `json:"id"`
	Turns        []Turn    `json:"turns"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}
