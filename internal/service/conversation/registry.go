// Package conversation keeps the live assessment conversations of the API server.
package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/model/chat"
)

var ErrConversationNotFound = errors.New("conversation not found")

type entry struct {
	conversation chat.Conversation
	controller   *chatstream.Controller
}

// Registry maps conversation ids to their controllers. Every controller shares
// one transport and the same options.
type Registry struct {
	transport chatstream.Transport
	opts      []chatstream.Option

	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry(transport chatstream.Transport, opts ...chatstream.Option) *Registry {
	return &Registry{
		transport: transport,
		opts:      opts,
		entries:   make(map[string]entry),
	}
}

// Create starts a new conversation.
func (r *Registry) Create(_ context.Context) (chat.Conversation, *chatstream.Controller) {
	conv := chat.Conversation{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	ctrl := chatstream.NewController(r.transport, r.opts...)

	r.mu.Lock()
	r.entries[conv.ID] = entry{conversation: conv, controller: ctrl}
	r.mu.Unlock()

	log.Printf("[conversation] created id=%s", conv.ID)
	return conv, ctrl
}

// Get looks up a conversation by id.
func (r *Registry) Get(_ context.Context, id string) (chat.Conversation, *chatstream.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return chat.Conversation{}, nil, ErrConversationNotFound
	}
	return e.conversation, e.controller, nil
}

// Delete closes the conversation's controller and forgets it.
func (r *Registry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return ErrConversationNotFound
	}
	e.controller.Close()
	log.Printf("[conversation] deleted id=%s", id)
	return nil
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll closes every controller; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.controller.Close()
	}
}
