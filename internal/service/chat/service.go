package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pcoscare/companion/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Service keeps the assistant's per-session history in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string][]chat.Message
}

// NewService bootstraps an empty history store.
func NewService() *Service {
	return &Service{sessions: make(map[string][]chat.Message)}
}

// EnsureSession returns the session to use for sessionID. A blank id gets a
// fresh uuid; an id the store has not seen starts an empty history under
// that id. created reports whether a new history was started.
func (s *Service) EnsureSession(_ context.Context, sessionID string) (id string, created bool) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return sessionID, false
	}
	s.sessions[sessionID] = make([]chat.Message, 0, 16)
	return sessionID, true
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(_ context.Context, sessionID string, message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.sessions[sessionID] = append(s.sessions[sessionID], message)
	return nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
