package chatapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/korefocus/diligence/runtime/chat"
	"github.com/korefocus/diligence/runtime/chat/blob"
)

type patchRequest struct {
	ChatID      string            `json:"chatId"`
	Attachments []chat.Attachment `json:"attachments"`
}

// patchChat replaces the chat's attachment metadata. Owner only, last write
// wins, idempotent.
func (s *Service) patchChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body patchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(ctx, w, KindBadRequest, err)
		return
	}
	if !isUUID(body.ChatID) {
		respondError(ctx, w, KindBadRequest, errors.New("chat id must be a UUID"))
		return
	}
	if err := validateAttachments(body.Attachments); err != nil {
		respondError(ctx, w, KindBadRequest, err)
		return
	}
	ch, err := s.store.LoadChat(ctx, body.ChatID)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			respondError(ctx, w, KindNotFound, nil)
		} else {
			respondError(ctx, w, KindPersistenceFailure, err)
		}
		return
	}
	if ch.UserID != sess.UserID {
		respondError(ctx, w, KindForbidden, nil)
		return
	}
	if err := s.store.UpdateAttachments(ctx, body.ChatID, body.Attachments); err != nil {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteChat removes the chat, its messages, and its run list. Owner only.
// Responds with the deleted chat summary.
func (s *Service) deleteChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(ctx, w, KindBadRequest, nil)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ch, err := s.store.LoadChat(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			respondError(ctx, w, KindNotFound, nil)
		} else {
			respondError(ctx, w, KindPersistenceFailure, err)
		}
		return
	}
	if ch.UserID != sess.UserID {
		respondError(ctx, w, KindForbidden, nil)
		return
	}
	deleted, err := s.store.DeleteChat(ctx, id)
	if err != nil {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(deleted)
}

// serveFile streams a tool artifact from the blob store.
func (s *Service) serveFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	obj, err := s.blobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			respondError(ctx, w, KindNotFound, nil)
		} else {
			respondError(ctx, w, KindOffline, err)
		}
		return
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", obj.Name))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
