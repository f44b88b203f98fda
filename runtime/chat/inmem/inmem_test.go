package inmem

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/korefocus/diligence/runtime/chat"
)

func newChat(id, userID string) *chat.Chat {
	return &chat.Chat{
		ID:         id,
		UserID:     userID,
		Title:      "Acme diligence",
		Visibility: chat.VisibilityPrivate,
		CreatedAt:  time.Now().UTC(),
	}
}

func newMessage(id, chatID string, role chat.Role, text string) *chat.Message {
	return &chat.Message{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Parts:     chat.Parts{chat.TextPart{Text: text}},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveChatIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))

	// A second save with different content must not clobber the original.
	other := newChat("c1", "u2")
	other.Title = "other"
	require.NoError(t, s.SaveChat(ctx, other))

	got, err := s.LoadChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "Acme diligence", got.Title)
}

func TestLoadChatNotFound(t *testing.T) {
	_, err := New().LoadChat(context.Background(), "missing")
	require.ErrorIs(t, err, chat.ErrChatNotFound)
}

func TestUpdateTitle(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	require.NoError(t, s.UpdateTitle(ctx, "c1", "Series B diligence"))

	got, err := s.LoadChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Series B diligence", got.Title)

	require.ErrorIs(t, s.UpdateTitle(ctx, "missing", "x"), chat.ErrChatNotFound)
}

func TestUpdateAttachmentsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))

	first := []chat.Attachment{{URL: "https://files/a.pdf", Name: "a.pdf", ContentType: "application/pdf"}}
	second := []chat.Attachment{{URL: "https://files/b.pdf", Name: "b.pdf", ContentType: "application/pdf"}}
	require.NoError(t, s.UpdateAttachments(ctx, "c1", first))
	require.NoError(t, s.UpdateAttachments(ctx, "c1", second))

	got, err := s.LoadChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, second, got.Attachments)
}

func TestSaveMessageFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	require.NoError(t, s.SaveMessage(ctx, newMessage("m1", "c1", chat.RoleUser, "hello")))

	err := s.SaveMessage(ctx, newMessage("m1", "c1", chat.RoleUser, "other"))
	require.ErrorIs(t, err, chat.ErrMessageExists)

	require.ErrorIs(t, s.SaveMessage(ctx, newMessage("m2", "missing", chat.RoleUser, "x")), chat.ErrChatNotFound)
}

func TestListMessagesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, s.SaveMessage(ctx, newMessage(id, "c1", chat.RoleUser, id)))
	}
	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		require.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

func TestRunsAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	require.NoError(t, s.AppendRun(ctx, "c1", "r1"))
	require.NoError(t, s.AppendRun(ctx, "c1", "r2"))

	runs, err := s.ListRuns(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2"}, runs)
}

func TestDeleteChatCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	require.NoError(t, s.SaveMessage(ctx, newMessage("m1", "c1", chat.RoleUser, "hello")))
	require.NoError(t, s.AppendRun(ctx, "c1", "r1"))

	deleted, err := s.DeleteChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", deleted.ID)

	_, err = s.LoadChat(ctx, "c1")
	require.ErrorIs(t, err, chat.ErrChatNotFound)

	// The message ID is free again after the cascade.
	require.NoError(t, s.SaveChat(ctx, newChat("c1", "u1")))
	require.NoError(t, s.SaveMessage(ctx, newMessage("m1", "c1", chat.RoleUser, "again")))
}

func TestStoredStateIsIsolatedFromCallers(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := newChat("c1", "u1")
	require.NoError(t, s.SaveChat(ctx, c))
	c.Title = "mutated"

	got, err := s.LoadChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Acme diligence", got.Title)

	got.Title = "mutated again"
	again, err := s.LoadChat(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Acme diligence", again.Title)
}
