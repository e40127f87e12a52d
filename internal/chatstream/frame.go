package chatstream

import (
	"strings"

	"github.com/bytedance/sonic"
)

const (
	dataPrefix = "data:"

	// FrameChunk marks an incremental content fragment.
	FrameChunk = "chunk"
	// FrameComplete and FrameError are emitted by the chat backend and ignored here.
	FrameComplete = "complete"
	FrameError    = "error"
)

// Frame is the JSON envelope carried by one "data:" line.
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ParseLine decodes one protocol line. ok is false for lines that are not
// data frames; err is non-nil when a data frame carries an undecodable payload.
func ParseLine(line string) (frame Frame, ok bool, err error) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false, nil
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	if strings.TrimSpace(payload) == "" {
		return Frame{}, false, nil
	}

	if err := sonic.UnmarshalString(payload, &frame); err != nil {
		return Frame{}, true, &Error{Kind: KindParse, Op: "decode frame", Err: err}
	}
	return frame, true, nil
}
