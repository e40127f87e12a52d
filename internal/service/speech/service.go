package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pcoscare/companion/internal/model/speech"
	"github.com/pcoscare/companion/internal/upstream"
)

const (
	maxAudioSize       = 25 << 20
	defaultContentType = "audio/mpeg"
)

var (
	ErrInvalidAudio        = errors.New("invalid audio recording")
	ErrRecordingTooLong    = errors.New("recording exceeds maximum duration")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrEmptyText           = errors.New("text is required")
)

// Options 语音服务配置
type Options struct {
	TranscribeURL string
	TTSURL        string
	Language      string
	MaxRecording  time.Duration
	HTTPClient    *http.Client
}

// Service 通过推理服务完成语音转写与合成
type Service struct {
	opts Options
}

// NewService 创建语音服务实例
func NewService(opts Options) *Service {
	if opts.HTTPClient == nil {
		opts.HTTPClient = upstream.NewClient(0)
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Service{opts: opts}
}

// Language 返回默认识别语言
func (s *Service) Language() string {
	return s.opts.Language
}

type transcribeResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
	Error         string `json:"error"`
}

// Transcribe 上传录音并返回识别文本。WAV 录音在上传前校验文件头与时长。
func (s *Service) Transcribe(ctx context.Context, req *speech.TranscriptionRequest) (*speech.TranscriptionResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, ErrInvalidAudio
	}

	data, err := io.ReadAll(io.LimitReader(req.AudioData, maxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty recording", ErrInvalidAudio)
	}
	if len(data) > maxAudioSize {
		return nil, fmt.Errorf("%w: recording larger than %d bytes", ErrInvalidAudio, maxAudioSize)
	}

	format := detectFormat(req.Format, req.Filename)
	var duration time.Duration
	if format == "wav" {
		duration, err = inspectWAV(data)
		if err != nil {
			return nil, err
		}
		if s.opts.MaxRecording > 0 && duration > s.opts.MaxRecording {
			return nil, fmt.Errorf("%w: %s > %s", ErrRecordingTooLong, duration.Round(time.Millisecond), s.opts.MaxRecording)
		}
	}

	language := req.Language
	if language == "" {
		language = s.opts.Language
	}
	filename := req.Filename
	if filename == "" {
		filename = "recording." + format
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.TranscribeURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcribe request failed: %w", err)
	}
	if err := upstream.CheckResponse("transcribe", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	if !payload.Success {
		if payload.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrTranscriptionFailed, payload.Error)
		}
		return nil, ErrTranscriptionFailed
	}

	text := strings.TrimSpace(payload.Transcription)
	log.Printf("[speech] transcribed %s (%d bytes, %s) in %s", format, len(data), duration, time.Since(start).Round(time.Millisecond))
	return &speech.TranscriptionResponse{
		Success:       true,
		Transcription: text,
		Format:        format,
		Size:          int64(len(data)),
		Duration:      duration,
	}, nil
}

// Synthesize 将文本合成为语音，返回音频字节和内容类型
func (s *Service) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	payload := *req
	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Language == "" {
		payload.Language = s.opts.Language
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.TTSURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	if err := upstream.CheckResponse("tts", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, &upstream.Error{Service: "tts", Status: resp.StatusCode, Body: "empty audio"}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = defaultContentType
	}
	return &speech.TTSResponse{Audio: audio, ContentType: contentType}, nil
}

// detectFormat 优先使用显式格式（可以是 MIME 类型），否则取文件扩展名
func detectFormat(format, filename string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = strings.ToLower(filepath.Ext(filename))
	}
	if i := strings.IndexByte(format, ';'); i >= 0 {
		format = format[:i]
	}
	if i := strings.LastIndexByte(format, '/'); i >= 0 {
		format = format[i+1:]
	}
	format = strings.TrimPrefix(format, ".")

	switch format {
	case "":
		return "webm"
	case "wave", "x-wav", "vnd.wave":
		return "wav"
	case "mpeg":
		return "mp3"
	}
	return format
}
