// Package upstream holds what the HTTP clients for the inference and webhook
// services share.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 512

// Error is a non-2xx answer, or an explicit error payload, from an upstream service.
type Error struct {
	Service string
	Status  int
	Body    string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}

// CheckResponse returns an *Error for non-2xx responses. The body is drained
// (up to 512 bytes kept) and closed in that case.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return &Error{Service: service, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// NewClient returns the client used for non-streaming upstream calls.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
