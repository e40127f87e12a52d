package chat

import "time"

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Attachment references a voice recording that produced a user turn.
// The audio itself is not retained.
type Attachment struct {
	ID       string        `json:"id" yaml:"id"`
	Filename string        `json:"filename,omitempty" yaml:"filename,omitempty"`
	Format   string        `json:"format" yaml:"format"`
	Size     int64         `json:"size" yaml:"size"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	Sender          Sender      `json:"sender" yaml:"sender"`
	Content         string      `json:"content" yaml:"content"`
	AudioAttachment *Attachment `json:"audioAttachment,omitempty" yaml:"audio_attachment,omitempty"`
	CreatedAt       time.Time   `json:"createdAt" yaml:"created_at"`
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.AudioAttachment != nil {
		att := *m.AudioAttachment
		m.AudioAttachment = &att
	}
	return m
}
