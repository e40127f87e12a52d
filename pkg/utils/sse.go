package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSEWriter 写出只包含 data 行的 Server-Sent Events，首次写入时才提交响应头
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewSSEWriter 返回写入器；ResponseWriter 不支持 Flush 时返回错误
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Started 报告响应头是否已经提交
func (s *SSEWriter) Started() bool {
	return s.started
}

func (s *SSEWriter) start() {
	if s.started {
		return
	}
	SetupSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Send 发送一个 JSON 数据块
func (s *SSEWriter) Send(payload interface{}) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}

	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse payload: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Comment 发送注释行，客户端会忽略它，用于保持连接
func (s *SSEWriter) Comment(text string) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write sse comment: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
