package speech

import "time"

// TranscriptionResponse 语音识别响应
type TranscriptionResponse struct {
	Success       bool          `json:"success"`
	Transcription string        `json:"transcription"`
	Format        string        `json:"format,omitempty"`
	Size          int64         `json:"size,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	Audio       []byte `json:"-"`
	ContentType string `json:"contentType"`
}
