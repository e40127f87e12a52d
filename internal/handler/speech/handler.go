package speech

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pcoscare/companion/internal/model/speech"
	speechsvc "github.com/pcoscare/companion/internal/service/speech"
	"github.com/pcoscare/companion/internal/upstream"
	"github.com/pcoscare/companion/pkg/utils"
)

const maxUploadMemory = 32 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Transcribe(ctx context.Context, req *speech.TranscriptionRequest) (*speech.TranscriptionResponse, error)
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
}

// New 创建语音处理器
func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/synthesize", h.handleSynthesize)
	})
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := ReadAudioUpload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	resp, err := h.speechSvc.Transcribe(r.Context(), req)
	if err != nil {
		log.Printf("[speech] ASR error: %v", err)
		status, message := StatusForError(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		status, message := StatusForError(err)
		utils.RespondError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Audio); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// ReadAudioUpload 解析 multipart 表单中的 audio 文件与 language 字段。
// cleanup 关闭文件并删除临时文件。
func ReadAudioUpload(r *http.Request) (*speech.TranscriptionRequest, func(), error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, nil, errors.New("failed to parse multipart form")
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, nil, errors.New("audio file is required")
	}

	req := &speech.TranscriptionRequest{
		Filename:  header.Filename,
		AudioData: file,
		Format:    r.FormValue("format"),
		Language:  r.FormValue("language"),
	}
	if ct := header.Header.Get("Content-Type"); req.Format == "" && strings.HasPrefix(ct, "audio/") {
		req.Format = ct
	}
	cleanup := func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}
	return req, cleanup, nil
}

// StatusForError 将语音服务错误映射为 HTTP 状态码和对外提示
func StatusForError(err error) (int, string) {
	var uerr *upstream.Error
	switch {
	case errors.Is(err, speechsvc.ErrInvalidAudio):
		return http.StatusBadRequest, "invalid audio recording"
	case errors.Is(err, speechsvc.ErrRecordingTooLong):
		return http.StatusRequestEntityTooLarge, "recording is too long"
	case errors.Is(err, speechsvc.ErrEmptyText):
		return http.StatusBadRequest, "text is required"
	case errors.Is(err, speechsvc.ErrTranscriptionFailed):
		return http.StatusUnprocessableEntity, "could not transcribe the recording"
	case errors.As(err, &uerr):
		return http.StatusBadGateway, "speech service unavailable"
	default:
		return http.StatusInternalServerError, "speech processing failed"
	}
}
