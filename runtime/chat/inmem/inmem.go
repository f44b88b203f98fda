// Package inmem provides an in-memory chat.Store for tests and single
// process development runs.
package inmem

import (
	"context"
	"sync"

	"github.com/korefocus/diligence/runtime/chat"
)

// Store is an in-memory chat.Store. Safe for concurrent use. All reads and
// writes operate on defensive copies so callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*chat.Chat
	messages map[string][]*chat.Message
	runs     map[string][]string
	msgIDs   map[string]struct{}
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		chats:    make(map[string]*chat.Chat),
		messages: make(map[string][]*chat.Message),
		runs:     make(map[string][]string),
		msgIDs:   make(map[string]struct{}),
	}
}

// SaveChat implements chat.Store. Saving an existing ID is a no-op.
func (s *Store) SaveChat(_ context.Context, c *chat.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[c.ID]; ok {
		return nil
	}
	s.chats[c.ID] = cloneChat(c)
	return nil
}

// LoadChat implements chat.Store.
func (s *Store) LoadChat(_ context.Context, id string) (*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	return cloneChat(c), nil
}

// DeleteChat implements chat.Store, cascading to messages and runs.
func (s *Store) DeleteChat(_ context.Context, id string) (*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, chat.ErrChatNotFound
	}
	for _, m := range s.messages[id] {
		delete(s.msgIDs, m.ID)
	}
	delete(s.chats, id)
	delete(s.messages, id)
	delete(s.runs, id)
	return cloneChat(c), nil
}

// UpdateTitle implements chat.Store.
func (s *Store) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Title = title
	return nil
}

// UpdateAttachments implements chat.Store with last-write-wins semantics.
func (s *Store) UpdateAttachments(_ context.Context, id string, atts []chat.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return chat.ErrChatNotFound
	}
	c.Attachments = append([]chat.Attachment(nil), atts...)
	return nil
}

// SaveMessage implements chat.Store. The first writer for a message ID wins.
func (s *Store) SaveMessage(_ context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[m.ChatID]; !ok {
		return chat.ErrChatNotFound
	}
	if _, ok := s.msgIDs[m.ID]; ok {
		return chat.ErrMessageExists
	}
	s.msgIDs[m.ID] = struct{}{}
	s.messages[m.ChatID] = append(s.messages[m.ChatID], cloneMessage(m))
	return nil
}

// ListMessages implements chat.Store, returning messages in insertion order.
func (s *Store) ListMessages(_ context.Context, chatID string) ([]*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.chats[chatID]; !ok {
		return nil, chat.ErrChatNotFound
	}
	msgs := s.messages[chatID]
	out := make([]*chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

// AppendRun implements chat.Store.
func (s *Store) AppendRun(_ context.Context, chatID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return chat.ErrChatNotFound
	}
	s.runs[chatID] = append(s.runs[chatID], runID)
	return nil
}

// ListRuns implements chat.Store.
func (s *Store) ListRuns(_ context.Context, chatID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.chats[chatID]; !ok {
		return nil, chat.ErrChatNotFound
	}
	return append([]string(nil), s.runs[chatID]...), nil
}

func cloneChat(c *chat.Chat) *chat.Chat {
	cp := *c
	cp.Attachments = append([]chat.Attachment(nil), c.Attachments...)
	return &cp
}

func cloneMessage(m *chat.Message) *chat.Message {
	cp := *m
	cp.Parts = append(chat.Parts(nil), m.Parts...)
	cp.Attachments = append([]chat.Attachment(nil), m.Attachments...)
	return &cp
}
