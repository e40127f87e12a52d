package chat

import "time"

// Conversation is the browser-facing handle of one assessment transcript.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
