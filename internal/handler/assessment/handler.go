// Package assessment exposes the symptom-assessment conversations over HTTP:
// REST for lifecycle, server-sent events for streamed replies and a
// websocket for voice-first clients.
package assessment

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pcoscare/companion/internal/chatstream"
	speechhandler "github.com/pcoscare/companion/internal/handler/speech"
	"github.com/pcoscare/companion/internal/model/chat"
	"github.com/pcoscare/companion/internal/model/speech"
	"github.com/pcoscare/companion/internal/service/conversation"
	"github.com/pcoscare/companion/pkg/utils"
)

// Handler 症状评估对话的HTTP处理器
type Handler struct {
	conversations *conversation.Registry
	speechSvc     speechhandler.SpeechService
	upgrader      websocket.Upgrader
}

// New 创建评估处理器；speechSvc 为空时语音相关接口不可用
func New(conversations *conversation.Registry, speechSvc speechhandler.SpeechService) *Handler {
	return &Handler{
		conversations: conversations,
		speechSvc:     speechSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册评估相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assessment", func(ar chi.Router) {
		ar.Post("/conversations", h.handleCreate)
		ar.Route("/conversations/{conversationID}", func(cr chi.Router) {
			cr.Get("/", h.handleGet)
			cr.Delete("/", h.handleDelete)
			cr.Post("/messages", h.handleMessage)
			cr.Post("/voice", h.handleVoice)
			cr.Post("/cancel", h.handleCancel)
			cr.Post("/reset", h.handleReset)
		})
		ar.Get("/ws/{conversationID}", h.handleWebSocket)
	})
}

type conversationResponse struct {
	chat.Conversation
	State chatstream.State `json:"state"`
}

// streamEvent is one SSE payload of a streamed submission.
type streamEvent struct {
	Event  string             `json:"event"`
	Update *chatstream.Update `json:"update,omitempty"`
	Result *resultPayload     `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type resultPayload struct {
	chatstream.Result
	ErrorKind string `json:"errorKind,omitempty"`
}

func newResultPayload(res chatstream.Result) *resultPayload {
	p := &resultPayload{Result: res}
	if res.Err != nil {
		p.ErrorKind = chatstream.KindOf(res.Err).String()
	}
	return p
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	conv, ctrl := h.conversations.Create(r.Context())
	utils.RespondJSON(w, http.StatusCreated, conversationResponse{Conversation: conv, State: ctrl.Snapshot()})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversationResponse{Conversation: conv, State: ctrl.Snapshot()})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	conv, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctrl.Reset()
	utils.RespondJSON(w, http.StatusOK, conversationResponse{Conversation: conv, State: ctrl.Snapshot()})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"canceled": ctrl.Cancel()})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Input string `json:"input"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Input) == "" {
		utils.RespondError(w, http.StatusBadRequest, "input is required")
		return
	}
	h.streamSubmission(w, r, ctrl, func(ctx context.Context) (chatstream.Result, error) {
		return ctrl.Submit(ctx, payload.Input)
	})
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.speechSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
		return
	}
	if ctrl.Busy() {
		utils.RespondError(w, http.StatusConflict, chatstream.ErrBusy.Error())
		return
	}

	req, cleanup, err := speechhandler.ReadAudioUpload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	text, attachment, err := h.transcribe(r.Context(), req)
	if err != nil {
		log.Printf("[assessment] voice transcription failed: %v", err)
		if errors.Is(err, errEmptyTranscription) {
			utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		status, message := speechhandler.StatusForError(err)
		utils.RespondError(w, status, message)
		return
	}

	h.streamSubmission(w, r, ctrl, func(ctx context.Context) (chatstream.Result, error) {
		return ctrl.SubmitVoice(ctx, text, attachment)
	})
}

// transcribe turns a recording into the utterance and the attachment kept on the user turn.
func (h *Handler) transcribe(ctx context.Context, req *speech.TranscriptionRequest) (string, *chat.Attachment, error) {
	resp, err := h.speechSvc.Transcribe(ctx, req)
	if err != nil {
		return "", nil, err
	}
	text := strings.TrimSpace(resp.Transcription)
	if text == "" {
		return "", nil, errEmptyTranscription
	}
	return text, &chat.Attachment{
		ID:       uuid.NewString(),
		Filename: req.Filename,
		Format:   resp.Format,
		Size:     resp.Size,
		Duration: resp.Duration,
	}, nil
}

var errEmptyTranscription = errors.New("no speech detected in the recording")

// streamSubmission relays controller updates as SSE until submit returns.
// Headers are committed by the first event, so a submission rejected
// before any update still gets a plain JSON error status.
func (h *Handler) streamSubmission(w http.ResponseWriter, r *http.Request, ctrl *chatstream.Controller, submit func(context.Context) (chatstream.Result, error)) {
	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var (
		mu   sync.Mutex
		done bool
	)
	send := func(ev streamEvent) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		if err := sse.Send(ev); err != nil {
			log.Printf("[assessment] %v", err)
		}
	}

	unsubscribe := ctrl.Subscribe(func(u chatstream.Update) {
		send(streamEvent{Event: "update", Update: &u})
	})
	defer func() {
		mu.Lock()
		done = true
		mu.Unlock()
		unsubscribe()
	}()

	res, err := submit(r.Context())
	if err != nil {
		mu.Lock()
		if !sse.Started() {
			done = true
			status, message := statusForSubmitError(err)
			utils.RespondError(w, status, message)
			mu.Unlock()
			return
		}
		mu.Unlock()
		send(streamEvent{Event: "error", Error: err.Error()})
		return
	}

	event := "done"
	if res.Phase == chatstream.PhaseFailed {
		event = "error"
	}
	payload := newResultPayload(res)
	send(streamEvent{Event: event, Result: payload, Error: payload.ErrorKind})
}

func statusForSubmitError(err error) (int, string) {
	switch {
	case errors.Is(err, chatstream.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, chatstream.ErrEmptyUtterance):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chatstream.ErrClosed):
		return http.StatusNotFound, "conversation not found"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (chat.Conversation, *chatstream.Controller, bool) {
	conv, ctrl, err := h.conversations.Get(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return chat.Conversation{}, nil, false
	}
	return conv, ctrl, true
}
