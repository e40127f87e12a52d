// Package chatstream drives the symptom-assessment conversation: it sends
// user turns to the remote chat endpoint and folds the streamed reply into
// the transcript as it arrives.
package chatstream

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pcoscare/companion/internal/model/chat"
	"github.com/pcoscare/companion/internal/reasoning"
)

const (
	defaultIdleTimeout = 60 * time.Second
	defaultReadSize    = 4096
)

// Result reports how one submission ended.
type Result struct {
	Phase         Phase  `json:"phase"`
	Reply         string `json:"reply"`
	SessionID     string `json:"sessionId"`
	SkippedFrames int    `json:"skippedFrames"`
	Err           error  `json:"-"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithGreeting seeds every fresh transcript with an assistant greeting.
func WithGreeting(text string) Option {
	return func(c *Controller) { c.greeting = text }
}

// WithIdleTimeout fails a stream that delivers no bytes for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// WithApology overrides the text appended after a transport failure.
func WithApology(text string) Option {
	return func(c *Controller) {
		if text != "" {
			c.apology = text
		}
	}
}

// WithReadSize sets the size of each read from the response body.
func WithReadSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithSessionID resumes an existing server session. Reset still forgets it.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.resumeSession = id }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type subscriber struct {
	id int
	fn func(Update)
}

// Controller owns one conversation. Submissions are single-flight: a second
// Submit while one is streaming fails with ErrBusy.
type Controller struct {
	transport         Transport
	greeting          string
	apology           string
	permissionApology string
	idleTimeout       time.Duration
	readSize          int
	resumeSession     string
	now               func() time.Time

	// deliverMu serializes state changes with their delivery; taken before mu.
	deliverMu sync.Mutex

	mu         sync.Mutex
	state      State
	busy       bool
	closed     bool
	generation uint64
	cancel     context.CancelCauseFunc
	subs       []subscriber
	nextSub    int
}

// NewController creates a controller that talks to the chat endpoint through transport.
func NewController(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:         transport,
		apology:           DefaultApology,
		permissionApology: PermissionApology,
		idleTimeout:       defaultIdleTimeout,
		readSize:          defaultReadSize,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Apply(Cleared{Greeting: c.greeting, At: c.timestamp()})
	c.state.SessionID = c.resumeSession
	return c
}

// Submit sends a typed utterance and blocks until the reply stream ends.
// The returned error is only set when the utterance was not submitted at all;
// stream failures are reported through Result.Err.
func (c *Controller) Submit(ctx context.Context, utterance string) (Result, error) {
	return c.submit(ctx, utterance, nil)
}

// SubmitVoice is Submit for a transcribed recording; audio is kept on the user message.
func (c *Controller) SubmitVoice(ctx context.Context, utterance string, audio *chat.Attachment) (Result, error) {
	return c.submit(ctx, utterance, audio)
}

func (c *Controller) submit(ctx context.Context, utterance string, audio *chat.Attachment) (Result, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Result{}, ErrEmptyUtterance
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return Result{}, ErrBusy
	}
	c.busy = true
	gen := c.generation
	streamCtx, cancel := context.WithCancelCause(ctx)
	c.cancel = cancel
	req := Request{Input: text, SessionID: c.state.SessionID}
	c.mu.Unlock()

	defer func() {
		cancel(nil)
		c.mu.Lock()
		c.busy = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	c.apply(gen, UserTurn{Content: text, Audio: audio, At: c.timestamp()})
	c.apply(gen, RequestSent{})

	res := c.stream(streamCtx, cancel, gen, req)
	res.SessionID = c.SessionID()
	return res, nil
}

func (c *Controller) stream(ctx context.Context, cancel context.CancelCauseFunc, gen uint64, req Request) Result {
	var res Result

	var idle *time.Timer
	if c.idleTimeout > 0 {
		idle = time.AfterFunc(c.idleTimeout, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	body, err := c.transport.Open(ctx, req)
	if err != nil {
		return c.fail(gen, res, c.classify(ctx, err))
	}
	defer body.Close()

	var (
		buf StreamBuffer
		raw strings.Builder
	)
	chunk := make([]byte, c.readSize)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			if idle != nil {
				idle.Reset(c.idleTimeout)
			}
			for _, line := range buf.Feed(chunk[:n]) {
				c.handleLine(gen, line, &raw, &res)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return c.fail(gen, res, c.classify(ctx, readErr))
		}
	}
	if line, ok := buf.Flush(); ok {
		c.handleLine(gen, line, &raw, &res)
	}

	c.apply(gen, StreamEnded{})
	c.apply(gen, Settled{})
	res.Phase = PhaseCompleted
	return res
}

func (c *Controller) handleLine(gen uint64, line string, raw *strings.Builder, res *Result) {
	frame, ok, err := ParseLine(line)
	if !ok {
		return
	}
	if err != nil {
		res.SkippedFrames++
		log.Printf("[chatstream] skipping malformed frame: %v", err)
		return
	}

	if frame.Type == FrameChunk {
		raw.WriteString(frame.Content)
		res.Reply = reasoning.Strip(raw.String())
		c.apply(gen, ContentUpdated{Content: res.Reply, At: c.timestamp()})
	}
	if frame.SessionID != "" {
		c.apply(gen, SessionAssigned{SessionID: frame.SessionID})
	}
}

func (c *Controller) fail(gen uint64, res Result, err *Error) Result {
	res.Phase = PhaseFailed
	res.Err = err

	notice := c.apology
	if err.Kind == KindCanceled {
		notice = ""
		log.Printf("[chatstream] submission canceled: %v", err)
	} else {
		log.Printf("[chatstream] submission failed: %v", err)
	}

	c.apply(gen, StreamFailed{Notice: notice, At: c.timestamp()})
	c.apply(gen, Settled{})
	return res
}

func (c *Controller) classify(ctx context.Context, err error) *Error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrIdleTimeout):
		return &Error{Kind: KindTransport, Op: "read stream", Err: ErrIdleTimeout}
	case errors.Is(cause, ErrCanceled), errors.Is(cause, errReset), errors.Is(cause, ErrClosed):
		return &Error{Kind: KindCanceled, Op: "read stream", Err: cause}
	case errors.Is(cause, context.Canceled):
		return &Error{Kind: KindCanceled, Op: "read stream", Err: cause}
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: KindTransport, Op: "read stream", Err: err}
}

// Cancel aborts the in-flight submission, if any. Content already shown is
// kept and no apology is appended.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel(ErrCanceled)
	return true
}

// Reset clears the conversation: the transcript returns to its initial
// state and the session id is forgotten. An in-flight stream is aborted and
// its remaining frames are dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	if c.cancel != nil {
		c.cancel(errReset)
	}
	gen := c.generation
	c.mu.Unlock()

	c.apply(gen, Cleared{Greeting: c.greeting, At: c.timestamp()})
}

// Close tears the controller down. After Close no stream mutates the state
// and subscribers are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	if c.cancel != nil {
		c.cancel(ErrClosed)
	}
	c.subs = nil
}

// ReportPermissionDenied records that the client could not capture audio.
func (c *Controller) ReportPermissionDenied(cause error) *Error {
	perr := &Error{Kind: KindPermission, Op: "capture audio", Err: cause}
	log.Printf("[chatstream] %v", perr)

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	c.apply(gen, AssistantNotice{Content: c.permissionApology, At: c.timestamp()})
	return perr
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SessionID returns the server-assigned session id, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Subscribe registers fn for every subsequent state change. Updates are
// delivered in order on the goroutine that caused them. Once unsubscribe
// returns fn is not called again. fn may read the controller but must not
// mutate it or unsubscribe.
func (c *Controller) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.deliverMu.Lock()
		defer c.deliverMu.Unlock()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) apply(gen uint64, ev Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	upd, changed := c.state.Apply(ev)
	subs := append([]subscriber(nil), c.subs...)
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, s := range subs {
		s.fn(upd)
	}
}

func (c *Controller) timestamp() time.Time {
	return c.now().UTC()
}
