package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/pcoscare/companion/internal/model/chat"
	"github.com/pcoscare/companion/internal/reasoning"
	chatService "github.com/pcoscare/companion/internal/service/chat"
	"github.com/pcoscare/companion/pkg/utils"
)

const streamFailureMessage = "An error occurred while processing your request"

// Streamer produces the model reply for one turn.
type Streamer interface {
	StreamResponse(ctx context.Context, messages []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error)
}

// Handler serves the development chat endpoint the assessment widget talks to.
type Handler struct {
	ai      Streamer
	history *chatService.Service
	now     func() time.Time
}

// New creates a new assistant handler
func New(ai Streamer, history *chatService.Service) *Handler {
	return &Handler{ai: ai, history: history, now: time.Now}
}

// Frame is one event on the /chat stream.
type Frame struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	SessionID      string `json:"session_id"`
	ProcessingTime string `json:"processing_time,omitempty"`
	ThinkContent   string `json:"think_content,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RegisterRoutes mounts the chat endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	ctx := r.Context()

	sessionID, created := h.history.EnsureSession(ctx, strings.TrimSpace(r.FormValue("session_id")))
	if created {
		log.Printf("[assistant] initialized session=%s", sessionID)
	}

	input := strings.TrimSpace(r.FormValue("input"))
	if input == "" {
		log.Printf("[assistant] empty input for session=%s", sessionID)
		utils.RespondJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "No input provided",
			"session_id": sessionID,
		})
		return
	}

	messages, err := h.history.LoadTranscript(ctx, sessionID)
	if err != nil {
		log.Printf("[assistant] failed to load history for session=%s: %v", sessionID, err)
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":      streamFailureMessage,
			"session_id": sessionID,
		})
		return
	}
	if err := h.history.SaveMessage(ctx, sessionID, chat.Message{Sender: chat.SenderUser, Content: input}); err != nil {
		log.Printf("[assistant] failed to save user message: %v", err)
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")

	reply, think, err := h.streamReply(ctx, sse, sessionID, messages, input)
	if err != nil {
		log.Printf("[assistant] stream failed for session=%s: %v", sessionID, err)
		h.send(sse, Frame{Type: "error", Error: streamFailureMessage, SessionID: sessionID})
		return
	}

	if err := h.history.SaveMessage(ctx, sessionID, chat.Message{Sender: chat.SenderAssistant, Content: reply}); err != nil {
		log.Printf("[assistant] failed to save assistant message: %v", err)
	}
	if think != "" {
		log.Printf("[assistant] session=%s reasoning=%d bytes", sessionID, len(think))
	}

	h.send(sse, Frame{
		Type:           "complete",
		SessionID:      sessionID,
		ProcessingTime: fmt.Sprintf("%.2fs", h.now().Sub(started).Seconds()),
		ThinkContent:   think,
	})
	log.Printf("[assistant] completed response for session=%s, length=%d", sessionID, len(reply))
}

// streamReply relays visible text as chunk frames and returns the trimmed
// visible reply and reasoning text.
func (h *Handler) streamReply(ctx context.Context, sse *utils.SSEWriter, sessionID string, messages []chat.Message, input string) (string, string, error) {
	stream, err := h.ai.StreamResponse(ctx, messages, input)
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	var (
		filter  reasoning.Filter
		visible strings.Builder
		think   strings.Builder
	)
	emit := func(text, thought string) {
		think.WriteString(thought)
		if text == "" {
			return
		}
		visible.WriteString(text)
		h.send(sse, Frame{Type: "chunk", Content: text, SessionID: sessionID})
	}

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", "", recvErr
		}
		if chunk == nil {
			continue
		}
		emit(filter.Write(chunk.Content))
	}
	emit(filter.Flush())

	return strings.TrimSpace(visible.String()), strings.TrimSpace(think.String()), nil
}

func (h *Handler) send(sse *utils.SSEWriter, frame Frame) {
	if err := sse.Send(frame); err != nil {
		log.Printf("[assistant] %v", err)
	}
}
