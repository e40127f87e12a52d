package assessment

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/model/chat"
	speechmodel "github.com/pcoscare/companion/internal/model/speech"
	"github.com/pcoscare/companion/internal/service/conversation"
)

// replyTransport answers every turn with the same chunks.
type replyTransport struct {
	session string
	chunks  []string
	fail    bool
}

func (t replyTransport) Open(ctx context.Context, req chatstream.Request) (io.ReadCloser, error) {
	if t.fail {
		return nil, &chatstream.Error{Kind: chatstream.KindTransport, Op: "open stream", Status: http.StatusBadGateway, Err: fmt.Errorf("bad gateway")}
	}
	var b strings.Builder
	for _, c := range t.chunks {
		fmt.Fprintf(&b, "data: {\"type\":\"chunk\",\"content\":%q,\"session_id\":%q}\n\n", c, t.session)
	}
	return io.NopCloser(strings.NewReader(b.String())), nil
}

// stallingTransport opens a stream that never delivers until ctx ends.
type stallingTransport struct{}

func (stallingTransport) Open(ctx context.Context, req chatstream.Request) (io.ReadCloser, error) {
	return io.NopCloser(stallReader{ctx}), nil
}

type stallReader struct{ ctx context.Context }

func (r stallReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

type fakeSpeech struct {
	text string
}

func (f *fakeSpeech) Transcribe(ctx context.Context, req *speechmodel.TranscriptionRequest) (*speechmodel.TranscriptionResponse, error) {
	data, _ := io.ReadAll(req.AudioData)
	return &speechmodel.TranscriptionResponse{Success: true, Transcription: f.text, Format: "webm", Size: int64(len(data))}, nil
}

func (f *fakeSpeech) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return &speechmodel.TTSResponse{Audio: []byte("mp3:" + req.Text), ContentType: "audio/mpeg"}, nil
}

func newTestServer(t *testing.T, transport chatstream.Transport, speechSvc *fakeSpeech) (*httptest.Server, *conversation.Registry) {
	t.Helper()
	reg := conversation.NewRegistry(transport, chatstream.WithGreeting("Welcome"))
	r := chi.NewRouter()
	h := New(reg, nil)
	if speechSvc != nil {
		h = New(reg, speechSvc)
	}
	r.Route("/api", h.RegisterRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func createConversation(t *testing.T, srv *httptest.Server) conversationResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/assessment/conversations", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out conversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readEvents(t *testing.T, body io.Reader) []streamEvent {
	t.Helper()
	var events []streamEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	return events
}

func TestCreateAndGetConversation(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{}, nil)

	created := createConversation(t, srv)
	assert.NotEmpty(t, created.ID)
	require.Len(t, created.State.Transcript, 1)
	assert.Equal(t, "Welcome", created.State.Transcript[0].Content)
	assert.Equal(t, 1, reg.Len())

	resp, err := http.Get(srv.URL + "/api/assessment/conversations/" + created.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/assessment/conversations/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageStreamsUpdates(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{session: "s-1", chunks: []string{"Irregular ", "periods are common."}}, nil)
	created := createConversation(t, srv)

	resp, err := http.Post(srv.URL+"/api/assessment/conversations/"+created.ID+"/messages", "application/json",
		strings.NewReader(`{"input":"my periods are irregular"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "done", last.Event)
	require.NotNil(t, last.Result)
	assert.Equal(t, "Irregular periods are common.", last.Result.Reply)
	assert.Equal(t, "s-1", last.Result.SessionID)

	var contents []string
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "update", ev.Event)
		if ev.Update.Message != nil && ev.Update.Message.Sender == chat.SenderAssistant {
			contents = append(contents, ev.Update.Message.Content)
		}
	}
	assert.Equal(t, []string{"Irregular ", "Irregular periods are common."}, contents)

	_, ctrl, err := reg.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, ctrl.Snapshot().Transcript, 3)
}

func TestMessageFailureEndsWithError(t *testing.T) {
	srv, _ := newTestServer(t, replyTransport{fail: true}, nil)
	created := createConversation(t, srv)

	resp, err := http.Post(srv.URL+"/api/assessment/conversations/"+created.ID+"/messages", "application/json",
		strings.NewReader(`{"input":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Event)
	assert.Equal(t, "transport", last.Error)
	assert.Equal(t, "failed", last.Result.Phase.String())
}

func TestMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t, replyTransport{}, nil)
	created := createConversation(t, srv)

	resp, err := http.Post(srv.URL+"/api/assessment/conversations/"+created.ID+"/messages", "application/json", strings.NewReader(`{"input":"   "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/assessment/conversations/missing/messages", "application/json", strings.NewReader(`{"input":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetCancelAndDelete(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{session: "s-2", chunks: []string{"Hi"}}, nil)
	created := createConversation(t, srv)
	base := srv.URL + "/api/assessment/conversations/" + created.ID

	resp, err := http.Post(base+"/messages", "application/json", strings.NewReader(`{"input":"hello"}`))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Post(base+"/reset", "application/json", nil)
	require.NoError(t, err)
	var reset conversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reset))
	resp.Body.Close()
	assert.Empty(t, reset.State.SessionID)
	assert.Len(t, reset.State.Transcript, 1)

	resp, err = http.Post(base+"/cancel", "application/json", nil)
	require.NoError(t, err)
	var canceled map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&canceled))
	resp.Body.Close()
	assert.False(t, canceled["canceled"])

	req, _ := http.NewRequest(http.MethodDelete, base, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, reg.Len())
}

func TestVoiceSubmitsTranscription(t *testing.T) {
	srv, reg := newTestServer(t, replyTransport{chunks: []string{"Noted."}}, &fakeSpeech{text: "I have acne"})
	created := createConversation(t, srv)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "note.webm")
	require.NoError(t, err)
	part.Write([]byte("webm-bytes"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(srv.URL+"/api/assessment/conversations/"+created.ID+"/voice", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	assert.Equal(t, "done", events[len(events)-1].Event)

	_, ctrl, err := reg.Get(context.Background(), created.ID)
	require.NoError(t, err)
	user := ctrl.Snapshot().Transcript[1]
	assert.Equal(t, "I have acne", user.Content)
	require.NotNil(t, user.AudioAttachment)
	assert.Equal(t, "note.webm", user.AudioAttachment.Filename)
	assert.Equal(t, int64(len("webm-bytes")), user.AudioAttachment.Size)
}

func TestVoiceUnavailableWithoutSpeech(t *testing.T) {
	srv, _ := newTestServer(t, replyTransport{}, nil)
	created := createConversation(t, srv)

	resp, err := http.Post(srv.URL+"/api/assessment/conversations/"+created.ID+"/voice", "multipart/form-data", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMessageWhileBusyConflicts(t *testing.T) {
	srv, reg := newTestServer(t, stallingTransport{}, nil)
	created := createConversation(t, srv)
	base := srv.URL + "/api/assessment/conversations/" + created.ID
	_, ctrl, err := reg.Get(context.Background(), created.ID)
	require.NoError(t, err)

	first := make(chan []streamEvent, 1)
	go func() {
		resp, err := http.Post(base+"/messages", "application/json", strings.NewReader(`{"input":"first"}`))
		if !assert.NoError(t, err) {
			first <- nil
			return
		}
		defer resp.Body.Close()
		first <- readEvents(t, resp.Body)
	}()
	require.Eventually(t, ctrl.Busy, time.Second, 5*time.Millisecond)

	resp, err := http.Post(base+"/messages", "application/json", strings.NewReader(`{"input":"second"}`))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, chatstream.ErrBusy.Error(), body["error"])

	resp, err = http.Post(base+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	events := <-first
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Event)
	assert.Equal(t, "canceled", last.Error)
}
