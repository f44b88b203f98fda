package chat

import (
	"context"
	"errors"
)

var (
	// ErrChatNotFound is returned when the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageExists is returned by SaveMessage when a message with the
	// same ID is already persisted. The first writer wins; callers must not
	// retry with the same ID.
	ErrMessageExists = errors.New("message already exists")
)

// Store persists chats, their messages, and the append-only run list per
// chat. Implementations must be safe for concurrent use.
type Store interface {
	// SaveChat creates the chat if it does not exist. Saving an existing
	// chat ID is a no-op so concurrent first posts to the same chat are
	// idempotent.
	SaveChat(ctx context.Context, c *Chat) error

	// LoadChat returns the chat or ErrChatNotFound.
	LoadChat(ctx context.Context, id string) (*Chat, error)

	// DeleteChat removes the chat, its messages, and its run list, returning
	// the deleted chat. Returns ErrChatNotFound when absent.
	DeleteChat(ctx context.Context, id string) (*Chat, error)

	// UpdateTitle sets the chat's title. Returns ErrChatNotFound when the
	// chat is absent.
	UpdateTitle(ctx context.Context, id, title string) error

	// UpdateAttachments replaces the chat's attachment metadata wholesale.
	// Last write wins. Returns ErrChatNotFound when the chat is absent.
	UpdateAttachments(ctx context.Context, id string, atts []Attachment) error

	// SaveMessage persists one message. Returns ErrMessageExists when the
	// message ID is already stored and ErrChatNotFound when the owning chat
	// is absent.
	SaveMessage(ctx context.Context, m *Message) error

	// ListMessages returns the chat's messages in insertion order.
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)

	// AppendRun appends a generation run ID to the chat's run list.
	AppendRun(ctx context.Context, chatID, runID string) error

	// ListRuns returns the chat's run IDs in append order.
	ListRuns(ctx context.Context, chatID string) ([]string, error)
}
