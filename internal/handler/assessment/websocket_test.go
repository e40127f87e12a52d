package assessment

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/model/chat"
)

type wsEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func dialConversation(t *testing.T, url, id string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/api/assessment/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first envelope of the given type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env wsEnvelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == kind {
			return env
		}
	}
}

func TestWebSocketTextTurn(t *testing.T) {
	srv, _ := newTestServer(t, replyTransport{session: "s-ws", chunks: []string{"Let's talk about it."}}, &fakeSpeech{})
	created := createConversation(t, srv)
	conn := dialConversation(t, srv.URL, created.ID)

	connected := readUntil(t, conn, "result")
	assert.Contains(t, string(connected.Data), `"connected"`)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]string{"text": "I feel tired all the time"},
	}))

	update := readUntil(t, conn, "update")
	var u chatstream.Update
	require.NoError(t, json.Unmarshal(update.Data, &u))
	assert.Equal(t, chatstream.UpdateAppended, u.Kind)

	result := readUntil(t, conn, "result")
	var res resultPayload
	require.NoError(t, json.Unmarshal(result.Data, &res))
	assert.Equal(t, chatstream.PhaseCompleted, res.Phase)
	assert.Equal(t, "Let's talk about it.", res.Reply)
	assert.Equal(t, "s-ws", result.SessionID)

	tts := readUntil(t, conn, "tts")
	var audio struct {
		AudioData   []byte `json:"audioData"`
		ContentType string `json:"contentType"`
	}
	require.NoError(t, json.Unmarshal(tts.Data, &audio))
	assert.Equal(t, "mp3:Let's talk about it.", string(audio.AudioData))
	assert.Equal(t, "audio/mpeg", audio.ContentType)
}

func TestWebSocketAudioTurn(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{chunks: []string{"Thanks."}}, &fakeSpeech{text: "hair thinning"})
	created := createConversation(t, srv)
	conn := dialConversation(t, srv.URL, created.ID)
	readUntil(t, conn, "result")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config",
		"data": map[string]any{"language": "en", "ttsEnabled": false},
	}))
	ack := readUntil(t, conn, "result")
	assert.Contains(t, string(ack.Data), `"tts":false`)

	for i, part := range []string{"chunk-1", "chunk-2"} {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "audio",
			"data": AudioMessage{AudioData: []byte(part), Format: "webm", IsFinal: i == 1},
		}))
	}

	result := readUntil(t, conn, "result")
	var res resultPayload
	require.NoError(t, json.Unmarshal(result.Data, &res))
	assert.Equal(t, "Thanks.", res.Reply)

	_, ctrl, err := reg.Get(t.Context(), created.ID)
	require.NoError(t, err)
	user := ctrl.Snapshot().Transcript[1]
	assert.Equal(t, "hair thinning", user.Content)
	require.NotNil(t, user.AudioAttachment)
	assert.Equal(t, int64(len("chunk-1chunk-2")), user.AudioAttachment.Size)
}

func TestWebSocketPermissionDenied(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{}, nil)
	created := createConversation(t, srv)
	conn := dialConversation(t, srv.URL, created.ID)
	readUntil(t, conn, "result")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "permission_denied"}))
	readUntil(t, conn, "update")

	_, ctrl, err := reg.Get(t.Context(), created.ID)
	require.NoError(t, err)
	transcript := ctrl.Snapshot().Transcript
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.SenderAssistant, transcript[1].Sender)
}

func TestWebSocketUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t, replyTransport{}, nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/assessment/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
