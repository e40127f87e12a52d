package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pcoscare/companion/internal/chatstream"
	speechhandler "github.com/pcoscare/companion/internal/handler/speech"
	"github.com/pcoscare/companion/internal/model/speech"
)

const (
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	writeWait        = 10 * time.Second
	maxBufferedAudio = 25 << 20
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频分片，audioData 为 base64
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

// PermissionMessage 客户端无法获取麦克风时发送
type PermissionMessage struct {
	Reason string `json:"reason"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConnection 单个 WebSocket 连接的状态
type wsConnection struct {
	conn           *websocket.Conn
	conversationID string
	ctrl           *chatstream.Controller

	writeMu sync.Mutex

	mu          sync.Mutex
	language    string
	ttsEnabled  bool
	audioFormat string
	buffer      bytes.Buffer
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	_, ctrl, err := h.conversations.Get(r.Context(), conversationID)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &wsConnection{
		conn:           conn,
		conversationID: conversationID,
		ctrl:           ctrl,
		ttsEnabled:     h.speechSvc != nil,
	}
	log.Printf("[websocket] new connection for conversation: %s", conversationID)

	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
	}()

	unsubscribe := ctrl.Subscribe(func(u chatstream.Update) {
		c.send("update", u)
	})
	defer unsubscribe()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.pingLoop(ctx)

	c.send("result", map[string]any{
		"type":  "connected",
		"state": ctrl.Snapshot(),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		h.handleWSMessage(ctx, c, &inflight, &msg)
	}
}

func (h *Handler) handleWSMessage(ctx context.Context, c *wsConnection, inflight *sync.WaitGroup, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		if strings.TrimSpace(text.Text) == "" {
			c.sendError(chatstream.ErrEmptyUtterance.Error())
			return
		}
		h.startSubmission(ctx, c, inflight, func(ctx context.Context) (chatstream.Result, error) {
			return c.ctrl.Submit(ctx, text.Text)
		})
	case "audio":
		h.handleAudioMessage(ctx, c, inflight, msg.Data)
	case "cancel":
		c.ctrl.Cancel()
	case "reset":
		c.ctrl.Reset()
	case "permission_denied":
		perm := PermissionMessage{Reason: "microphone access denied"}
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &perm)
		}
		c.ctrl.ReportPermissionDenied(errors.New(perm.Reason))
	case "config":
		h.handleConfigMessage(c, msg.Data)
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// startSubmission runs submit off the read loop so cancel and reset stay responsive.
func (h *Handler) startSubmission(ctx context.Context, c *wsConnection, inflight *sync.WaitGroup, submit func(context.Context) (chatstream.Result, error)) {
	if c.ctrl.Busy() {
		c.sendError(chatstream.ErrBusy.Error())
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		res, err := submit(ctx)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.send("result", newResultPayload(res))

		if res.Phase == chatstream.PhaseCompleted && res.Reply != "" && c.wantTTS() && h.speechSvc != nil {
			h.sendTTS(ctx, c, res)
		}
	}()
}

func (h *Handler) handleAudioMessage(ctx context.Context, c *wsConnection, inflight *sync.WaitGroup, raw json.RawMessage) {
	if h.speechSvc == nil {
		c.sendError("speech service unavailable")
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		c.sendError("invalid audio payload")
		return
	}

	c.mu.Lock()
	if audio.Format != "" {
		c.audioFormat = audio.Format
	}
	if audio.Language != "" {
		c.language = audio.Language
	}
	if c.buffer.Len()+len(audio.AudioData) > maxBufferedAudio {
		c.buffer.Reset()
		c.mu.Unlock()
		c.sendError("recording is too large")
		return
	}
	c.buffer.Write(audio.AudioData)
	if !audio.IsFinal {
		c.mu.Unlock()
		return
	}
	recording := bytes.Clone(c.buffer.Bytes())
	c.buffer.Reset()
	req := &speech.TranscriptionRequest{
		AudioData: bytes.NewReader(recording),
		Format:    c.audioFormat,
		Language:  c.language,
	}
	c.mu.Unlock()

	if len(recording) == 0 {
		return
	}
	log.Printf("[websocket] processing recording conversation=%s format=%s bytes=%d", c.conversationID, req.Format, len(recording))

	h.startSubmission(ctx, c, inflight, func(ctx context.Context) (chatstream.Result, error) {
		text, attachment, err := h.transcribe(ctx, req)
		if err != nil {
			log.Printf("[websocket] transcription failed: %v", err)
			if errors.Is(err, errEmptyTranscription) {
				return chatstream.Result{}, err
			}
			_, message := speechhandler.StatusForError(err)
			return chatstream.Result{}, errors.New(message)
		}
		return c.ctrl.SubmitVoice(ctx, text, attachment)
	})
}

func (h *Handler) sendTTS(ctx context.Context, c *wsConnection, res chatstream.Result) {
	ttsResp, err := h.speechSvc.Synthesize(ctx, &speech.TTSRequest{
		Text:      res.Reply,
		SessionID: res.SessionID,
		Language:  c.currentLanguage(),
	})
	if err != nil {
		log.Printf("[websocket] TTS failed: %v", err)
		c.send("tts", map[string]any{"error": "synthesis failed"})
		return
	}

	log.Printf("[websocket] TTS sending audio conversation=%s bytes=%d", c.conversationID, len(ttsResp.Audio))
	c.send("tts", map[string]any{
		"audioData":   ttsResp.Audio,
		"contentType": ttsResp.ContentType,
		"isFinal":     true,
	})
}

func (h *Handler) handleConfigMessage(c *wsConnection, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.sendError("invalid config payload")
		return
	}

	c.mu.Lock()
	if cfg.Language != "" {
		c.language = cfg.Language
	}
	if cfg.TTSEnabled != nil {
		c.ttsEnabled = *cfg.TTSEnabled && h.speechSvc != nil
	}
	ack := map[string]any{
		"type":     "config",
		"language": c.language,
		"tts":      c.ttsEnabled,
	}
	c.mu.Unlock()

	log.Printf("[websocket] config applied conversation=%s language=%s tts=%v", c.conversationID, ack["language"], ack["tts"])
	c.send("result", ack)
}

func (c *wsConnection) wantTTS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttsEnabled
}

func (c *wsConnection) currentLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

func (c *wsConnection) send(kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.ctrl.SessionID(),
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", kind, err)
	}
}

func (c *wsConnection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (c *wsConnection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
