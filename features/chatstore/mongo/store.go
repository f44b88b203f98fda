// Package mongo implements chat.Store on MongoDB.
package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/korefocus/diligence/features/chatstore/mongo/clients/mongo"
	"github.com/korefocus/diligence/runtime/chat"
)

// Store implements chat.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// SaveChat implements chat.Store.
func (s *Store) SaveChat(ctx context.Context, c *chat.Chat) error {
	return s.client.SaveChat(ctx, c)
}

// LoadChat implements chat.Store.
func (s *Store) LoadChat(ctx context.Context, id string) (*chat.Chat, error) {
	return s.client.LoadChat(ctx, id)
}

// DeleteChat implements chat.Store.
func (s *Store) DeleteChat(ctx context.Context, id string) (*chat.Chat, error) {
	return s.client.DeleteChat(ctx, id)
}

// UpdateTitle implements chat.Store.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	return s.client.UpdateTitle(ctx, id, title)
}

// UpdateAttachments implements chat.Store.
func (s *Store) UpdateAttachments(ctx context.Context, id string, atts []chat.Attachment) error {
	return s.client.UpdateAttachments(ctx, id, atts)
}

// SaveMessage implements chat.Store.
func (s *Store) SaveMessage(ctx context.Context, m *chat.Message) error {
	return s.client.SaveMessage(ctx, m)
}

// ListMessages implements chat.Store.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]*chat.Message, error) {
	return s.client.ListMessages(ctx, chatID)
}

// AppendRun implements chat.Store.
func (s *Store) AppendRun(ctx context.Context, chatID, runID string) error {
	return s.client.AppendRun(ctx, chatID, runID)
}

// ListRuns implements chat.Store.
func (s *Store) ListRuns(ctx context.Context, chatID string) ([]string, error) {
	return s.client.ListRuns(ctx, chatID)
}
