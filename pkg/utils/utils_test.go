package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)
	assert.False(t, sse.Started())
	assert.Empty(t, rec.Header().Get("Content-Type"))

	payload := struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{Type: "chunk", Content: "hi"}
	require.NoError(t, sse.Send(payload))
	require.NoError(t, sse.Comment("keep-alive"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"type\":\"chunk\",\"content\":\"hi\"}\n\n: keep-alive\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.True(t, sse.Started())
	assert.Equal(t, http.StatusOK, rec.Code)
}

type plainWriter struct{ http.ResponseWriter }

func TestSSEWriterRequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(plainWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Text string `json:"text"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hello"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "hello", dst.Text)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"a"} {"text":"b"}`))
	assert.Error(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "bad input")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad input"}`, rec.Body.String())
}
