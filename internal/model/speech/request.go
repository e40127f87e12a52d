package speech

import (
	"io"
)

// TranscriptionRequest 语音识别请求
type TranscriptionRequest struct {
	Filename  string    `json:"filename"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, webm, mp3, etc.
	Language  string    `json:"language"` // en-US, etc.
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}
