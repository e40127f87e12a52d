package chatstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is one turn sent to the chat endpoint.
type Request struct {
	Input     string
	SessionID string
}

// Transport opens a streaming response for a request. The returned body is
// read until io.EOF and then closed by the caller.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// HTTPTransport posts form-encoded turns to a chat endpoint that answers with
// an event stream.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for endpoint. A nil client gets a
// client without an overall timeout; stalls are handled by the controller's
// idle timer instead.
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{endpoint: endpoint, httpClient: client}
}

// Endpoint returns the chat endpoint URL.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

// Open sends req and returns the response body once a 2xx status arrived.
func (t *HTTPTransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	form := url.Values{}
	form.Set("input", req.Input)
	if req.SessionID != "" {
		form.Set("session_id", req.SessionID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "open stream", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &Error{
			Kind:   KindTransport,
			Op:     "open stream",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	return resp.Body, nil
}
