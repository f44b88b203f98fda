package chatapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"goa.design/clue/log"

	"github.com/korefocus/diligence/runtime/chat"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

// resumeChat reattaches a client to the latest run of a chat. With a live
// registry entry the stored stream is replayed and followed; otherwise the
// last persisted assistant message is replayed as a single append-message
// frame when it is recent enough, else the stream is empty.
func (s *Service) resumeChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resumeRequestedAt := s.now()

	if s.registry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		respondError(ctx, w, KindBadRequest, nil)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ch, err := s.store.LoadChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			respondError(ctx, w, KindNotFound, nil)
		} else {
			respondError(ctx, w, KindPersistenceFailure, err)
		}
		return
	}
	if ch.Visibility == chat.VisibilityPrivate && ch.UserID != sess.UserID {
		respondError(ctx, w, KindForbidden, nil)
		return
	}
	runs, err := s.store.ListRuns(ctx, chatID)
	if err != nil {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}
	if len(runs) == 0 {
		respondError(ctx, w, KindNotFound, nil)
		return
	}
	latest := runs[len(runs)-1]

	att, err := s.registry.Attach(ctx, latest)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "attach resumable stream"}, log.KV{K: "run_id", V: latest})
		att = nil
	}

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	if att != nil {
		defer att.Cancel()
		for {
			select {
			case frame, open := <-att.Frames:
				if !open {
					return
				}
				if _, err := w.Write(append(frame, '\n')); err != nil {
					return
				}
				flush()
			case err, open := <-att.Errs:
				if !open {
					// The consumer finished; keep draining buffered frames
					// until Frames closes.
					att.Errs = nil
					continue
				}
				log.Error(ctx, err, log.KV{K: "msg", V: "resumable stream read"}, log.KV{K: "run_id", V: latest})
				return
			case <-ctx.Done():
				return
			}
		}
	}

	// No live stream. Replay the trailing assistant message when it is young
	// enough that the client plausibly missed the end of its own run.
	msgs, err := s.store.ListMessages(ctx, chatID)
	if err != nil || len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	if resumeRequestedAt.Sub(last.CreatedAt) > s.replayWindow {
		return
	}
	raw, err := json.Marshal(last)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode replay message"}, log.KV{K: "chat_id", V: chatID})
		return
	}
	frame, err := stream.EncodeFrame(stream.NewAppendMessage(latest, chatID, raw))
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "encode replay frame"}, log.KV{K: "chat_id", V: chatID})
		return
	}
	if _, err := w.Write(append(frame, '\n')); err != nil {
		return
	}
	flush()
}
