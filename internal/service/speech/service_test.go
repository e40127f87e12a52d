package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcoscare/companion/internal/model/speech"
	"github.com/pcoscare/companion/internal/upstream"
)

// pcmWAV builds a mono 16-bit 8kHz recording of the given length.
func pcmWAV(d time.Duration) []byte {
	const rate, bytesPerSample = 8000, 2
	dataSize := int(d.Seconds() * rate * bytesPerSample)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func transcribeServer(t *testing.T, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio")
		if assert.NoError(t, err) {
			file.Close()
			seen = append(seen, header.Filename, r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestTranscribeWAV(t *testing.T) {
	srv, seen := transcribeServer(t, `{"success":true,"transcription":"  my cycle is irregular "}`)
	svc := NewService(Options{TranscribeURL: srv.URL, MaxRecording: time.Minute, HTTPClient: srv.Client()})

	resp, err := svc.Transcribe(context.Background(), &speech.TranscriptionRequest{
		Filename:  "note.wav",
		AudioData: bytes.NewReader(pcmWAV(2 * time.Second)),
	})
	require.NoError(t, err)
	assert.Equal(t, "my cycle is irregular", resp.Transcription)
	assert.Equal(t, "wav", resp.Format)
	assert.Equal(t, 2*time.Second, resp.Duration)
	assert.Equal(t, []string{"note.wav", "en"}, *seen)
}

func TestTranscribeRejectsBadRecordings(t *testing.T) {
	svc := NewService(Options{TranscribeURL: "http://127.0.0.1:0", MaxRecording: time.Second})

	_, err := svc.Transcribe(context.Background(), &speech.TranscriptionRequest{Format: "wav", AudioData: bytes.NewReader([]byte("definitely not riff data"))})
	assert.ErrorIs(t, err, ErrInvalidAudio)

	_, err = svc.Transcribe(context.Background(), &speech.TranscriptionRequest{Format: "audio/wav", AudioData: bytes.NewReader(pcmWAV(3 * time.Second))})
	assert.ErrorIs(t, err, ErrRecordingTooLong)

	_, err = svc.Transcribe(context.Background(), &speech.TranscriptionRequest{Format: "webm", AudioData: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestTranscribeFailureFlag(t *testing.T) {
	srv, seen := transcribeServer(t, `{"success":false,"error":"no speech detected"}`)
	svc := NewService(Options{TranscribeURL: srv.URL, Language: "ur", HTTPClient: srv.Client()})

	_, err := svc.Transcribe(context.Background(), &speech.TranscriptionRequest{
		Format:    "audio/webm;codecs=opus",
		AudioData: bytes.NewReader([]byte{0x1a, 0x45, 0xdf, 0xa3}),
	})
	assert.ErrorIs(t, err, ErrTranscriptionFailed)
	assert.Equal(t, []string{"recording.webm", "ur"}, *seen)
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"text":"Hello","session_id":"s-1","language":"en"}`, string(body))
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFaudio"))
	}))
	defer srv.Close()

	svc := NewService(Options{TTSURL: srv.URL, HTTPClient: srv.Client()})
	resp, err := svc.Synthesize(context.Background(), &speech.TTSRequest{Text: " Hello ", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", resp.ContentType)
	assert.Equal(t, []byte("RIFFaudio"), resp.Audio)

	_, err = svc.Synthesize(context.Background(), &speech.TTSRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSynthesizeUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice model unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewService(Options{TTSURL: srv.URL, HTTPClient: srv.Client()}).Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})
	var uerr *upstream.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusBadGateway, uerr.Status)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "wav", detectFormat("", "clip.WAV"))
	assert.Equal(t, "webm", detectFormat("audio/webm;codecs=opus", ""))
	assert.Equal(t, "mp3", detectFormat("audio/mpeg", ""))
	assert.Equal(t, "wav", detectFormat("audio/x-wav", ""))
	assert.Equal(t, "webm", detectFormat("", ""))
}
