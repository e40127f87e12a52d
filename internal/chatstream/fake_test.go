package chatstream

import (
	"context"
	"io"
	"sync"
)

// scriptedTransport replays a fixed sequence of reads for every request.
type scriptedTransport struct {
	parts   [][]byte
	openErr error
	readErr error
	block   bool

	mu       sync.Mutex
	requests []Request
}

func lines(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func (s *scriptedTransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	parts := make([][]byte, len(s.parts))
	copy(parts, s.parts)
	return &scriptedBody{ctx: ctx, parts: parts, readErr: s.readErr, block: s.block}, nil
}

func (s *scriptedTransport) lastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type scriptedBody struct {
	ctx     context.Context
	parts   [][]byte
	readErr error
	block   bool
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.parts) > 0 {
		n := copy(p, b.parts[0])
		if n < len(b.parts[0]) {
			b.parts[0] = b.parts[0][n:]
		} else {
			b.parts = b.parts[1:]
		}
		return n, nil
	}
	if b.block {
		<-b.ctx.Done()
		return 0, b.ctx.Err()
	}
	if b.readErr != nil {
		return 0, b.readErr
	}
	return 0, io.EOF
}

func (b *scriptedBody) Close() error { return nil }
