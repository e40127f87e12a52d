package chatstream

import (
	"fmt"
	"time"

	"github.com/pcoscare/companion/internal/model/chat"
)

// Phase is where a controller is in the submit cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIdle; candidate <= PhaseFailed; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// State is everything a conversation view needs to render.
type State struct {
	Transcript []chat.Message `json:"transcript"`
	SessionID  string         `json:"sessionId"`
	Composing  bool           `json:"composing"`
	Phase      Phase          `json:"phase"`
	// InProgress is true while an assistant reply is still receiving content.
	InProgress bool `json:"inProgress"`

	// reply indexes the in-progress assistant message.
	reply int
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Transcript != nil {
		out.Transcript = make([]chat.Message, len(s.Transcript))
		for i, m := range s.Transcript {
			out.Transcript[i] = m.Clone()
		}
	}
	return out
}

// Last returns the most recent message.
func (s State) Last() (chat.Message, bool) {
	if len(s.Transcript) == 0 {
		return chat.Message{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// Event is an input to State.Apply.
type Event interface {
	event()
}

// UserTurn appends the user's utterance.
type UserTurn struct {
	Content string
	Audio   *chat.Attachment
	At      time.Time
}

// RequestSent marks the assistant as composing.
type RequestSent struct{}

// ContentUpdated carries the full cleaned reply text received so far.
type ContentUpdated struct {
	Content string
	At      time.Time
}

// SessionAssigned carries a session id seen on a frame.
type SessionAssigned struct {
	SessionID string
}

// StreamEnded marks a normal end of stream.
type StreamEnded struct{}

// StreamFailed marks an abnormal end. A non-empty Notice is appended as an assistant message.
type StreamFailed struct {
	Notice string
	At     time.Time
}

// AssistantNotice appends a synthetic assistant message outside of a stream.
type AssistantNotice struct {
	Content string
	At      time.Time
}

// Cleared empties the conversation and forgets the session.
type Cleared struct {
	Greeting string
	At       time.Time
}

// Settled returns a finished cycle to idle.
type Settled struct{}

func (UserTurn) event()        {}
func (RequestSent) event()     {}
func (ContentUpdated) event()  {}
func (SessionAssigned) event() {}
func (StreamEnded) event()     {}
func (StreamFailed) event()    {}
func (AssistantNotice) event() {}
func (Cleared) event()         {}
func (Settled) event()         {}

// UpdateKind says what part of the state an update touched.
type UpdateKind string

const (
	UpdateAppended UpdateKind = "appended"
	UpdateChanged  UpdateKind = "changed"
	UpdateSession  UpdateKind = "session"
	UpdatePhase    UpdateKind = "phase"
	UpdateCleared  UpdateKind = "cleared"
)

// Update describes one state change.
type Update struct {
	Kind      UpdateKind    `json:"kind"`
	Index     int           `json:"index"`
	Message   *chat.Message `json:"message,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Composing bool          `json:"composing"`
	Phase     Phase         `json:"phase"`
}

// Apply folds ev into s and reports the resulting change. changed is false
// when ev left s untouched.
func (s *State) Apply(ev Event) (upd Update, changed bool) {
	switch e := ev.(type) {
	case UserTurn:
		s.InProgress = false
		return s.appendMessage(chat.Message{
			Sender:          chat.SenderUser,
			Content:         e.Content,
			AudioAttachment: e.Audio,
			CreatedAt:       e.At,
		}), true

	case RequestSent:
		s.Composing = true
		s.Phase = PhaseSending
		return s.phaseUpdate(), true

	case ContentUpdated:
		s.Phase = PhaseStreaming
		if s.InProgress && s.reply < len(s.Transcript) {
			idx := s.reply
			if s.Transcript[idx].Content == e.Content {
				return Update{}, false
			}
			s.Transcript[idx].Content = e.Content
			msg := s.Transcript[idx].Clone()
			return Update{Kind: UpdateChanged, Index: idx, Message: &msg, Composing: s.Composing, Phase: s.Phase}, true
		}
		if e.Content == "" {
			return s.phaseUpdate(), true
		}
		s.InProgress = true
		s.reply = len(s.Transcript)
		return s.appendMessage(chat.Message{Sender: chat.SenderAssistant, Content: e.Content, CreatedAt: e.At}), true

	case SessionAssigned:
		if s.SessionID != "" || e.SessionID == "" {
			return Update{}, false
		}
		s.SessionID = e.SessionID
		return Update{Kind: UpdateSession, SessionID: s.SessionID, Composing: s.Composing, Phase: s.Phase}, true

	case StreamEnded:
		s.Composing = false
		s.InProgress = false
		s.Phase = PhaseCompleted
		return s.phaseUpdate(), true

	case StreamFailed:
		s.Composing = false
		s.InProgress = false
		s.Phase = PhaseFailed
		if e.Notice == "" {
			return s.phaseUpdate(), true
		}
		return s.appendMessage(chat.Message{Sender: chat.SenderAssistant, Content: e.Notice, CreatedAt: e.At}), true

	case AssistantNotice:
		return s.appendMessage(chat.Message{Sender: chat.SenderAssistant, Content: e.Content, CreatedAt: e.At}), true

	case Cleared:
		s.Transcript = nil
		s.SessionID = ""
		s.Composing = false
		s.InProgress = false
		s.Phase = PhaseIdle
		if e.Greeting != "" {
			s.Transcript = append(s.Transcript, chat.Message{Sender: chat.SenderAssistant, Content: e.Greeting, CreatedAt: e.At})
		}
		return Update{Kind: UpdateCleared, Phase: s.Phase}, true

	case Settled:
		if s.Phase == PhaseIdle {
			return Update{}, false
		}
		s.Phase = PhaseIdle
		return s.phaseUpdate(), true
	}
	return Update{}, false
}

func (s *State) appendMessage(m chat.Message) Update {
	s.Transcript = append(s.Transcript, m)
	idx := len(s.Transcript) - 1
	msg := m.Clone()
	return Update{Kind: UpdateAppended, Index: idx, Message: &msg, Composing: s.Composing, Phase: s.Phase}
}

func (s *State) phaseUpdate() Update {
	return Update{Kind: UpdatePhase, Composing: s.Composing, Phase: s.Phase}
}
