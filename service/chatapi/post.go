package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/korefocus/diligence/runtime/chat"
	"github.com/korefocus/diligence/runtime/chat/driver"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

const (
	textPartMax       = 2000
	attachmentMIME    = "application/pdf"
	simTimeoutHeader  = "X-Simulate-Timeout"
	streamContentType = "application/x-ndjson"
)

type (
	postRequest struct {
		ID                     string          `json:"id"`
		Message                incomingMessage `json:"message"`
		SelectedChatModel      string          `json:"selectedChatModel"`
		SelectedVisibilityType string          `json:"selectedVisibilityType"`
	}

	incomingMessage struct {
		ID          string            `json:"id"`
		CreatedAt   time.Time         `json:"createdAt"`
		Role        string            `json:"role"`
		Content     string            `json:"content"`
		Parts       []incomingPart    `json:"parts"`
		Attachments []chat.Attachment `json:"experimental_attachments"`
	}

	incomingPart struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
)

// postChat starts a generation run and streams its events back on the
// response. The run itself is detached from the request context so a client
// disconnect never aborts generation.
func (s *Service) postChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body postRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(ctx, w, KindBadRequest, err)
		return
	}
	if err := s.validatePost(body); err != nil {
		respondError(ctx, w, KindBadRequest, err)
		return
	}
	if r.Header.Get(simTimeoutHeader) == "1" {
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}
	variant := s.models[body.SelectedChatModel]

	firstTurn := false
	ch, err := s.store.LoadChat(ctx, body.ID)
	switch {
	case errors.Is(err, chat.ErrChatNotFound):
		firstTurn = true
		ch = &chat.Chat{
			ID:         body.ID,
			UserID:     sess.UserID,
			Visibility: chat.Visibility(body.SelectedVisibilityType),
			CreatedAt:  s.now().UTC(),
		}
		if err := s.store.SaveChat(ctx, ch); err != nil {
			respondError(ctx, w, KindPersistenceFailure, err)
			return
		}
	case err != nil:
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	case ch.UserID != sess.UserID:
		respondError(ctx, w, KindForbidden, nil)
		return
	}

	userMsg := &chat.Message{
		ID:          body.Message.ID,
		ChatID:      body.ID,
		Role:        chat.RoleUser,
		Parts:       textParts(body.Message.Parts),
		Attachments: body.Message.Attachments,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil && !errors.Is(err, chat.ErrMessageExists) {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}
	history, err := s.store.ListMessages(ctx, body.ID)
	if err != nil {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}

	runID := uuid.NewString()
	if err := s.store.AppendRun(ctx, body.ID, runID); err != nil {
		respondError(ctx, w, KindPersistenceFailure, err)
		return
	}
	em := stream.NewEmitter(runID, body.ID)
	if s.registry != nil {
		if err := s.registry.Register(ctx, runID, em); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "register resumable stream"}, log.KV{K: "run_id", V: runID})
		}
	}

	sink := newHTTPSink(w)
	if err := em.Subscribe(sink); err != nil {
		respondError(ctx, w, KindOffline, err)
		return
	}
	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	sink.flush()

	if firstTurn {
		go s.generateTitle(context.WithoutCancel(ctx), body.ID, variant.ModelID, userMsg.Text())
	}

	run := driver.Run{
		ID:            runID,
		ChatID:        body.ID,
		Model:         variant.ModelID,
		Thinking:      variant.Thinking,
		History:       history,
		HasAttachment: hasAttachment(history),
		FirstTurn:     len(history) == 1,
		Emitter:       em,
	}
	go func() {
		genCtx := context.WithoutCancel(ctx)
		if err := s.driver.Run(genCtx, run); err != nil {
			log.Error(genCtx, err, log.KV{K: "msg", V: "generation run failed"}, log.KV{K: "run_id", V: runID})
		}
	}()

	// Hold the response open until the run closes the sink or the client
	// goes away. A failed write drops the sink without stopping the run.
	select {
	case <-sink.done:
	case <-ctx.Done():
		// The response writer dies with the handler; seal the sink so the
		// emitter stops writing to it and drops it on the next event.
		_ = sink.Close(ctx)
	}
}

func (s *Service) generateTitle(ctx context.Context, chatID, modelID, userText string) {
	title, err := s.driver.GenerateTitle(ctx, modelID, userText)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "generate chat title"}, log.KV{K: "chat_id", V: chatID})
		return
	}
	if err := s.store.UpdateTitle(ctx, chatID, title); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "save chat title"}, log.KV{K: "chat_id", V: chatID})
	}
}

func (s *Service) validatePost(body postRequest) error {
	if !isUUID(body.ID) {
		return errors.New("chat id must be a UUID")
	}
	if !isUUID(body.Message.ID) {
		return errors.New("message id must be a UUID")
	}
	if body.Message.Role != string(chat.RoleUser) {
		return fmt.Errorf("message role must be %q", chat.RoleUser)
	}
	if len(body.Message.Parts) == 0 {
		return errors.New("message requires at least one part")
	}
	for i, p := range body.Message.Parts {
		if p.Type != "text" {
			return fmt.Errorf("part %d: type must be text", i)
		}
		if len(p.Text) == 0 || len(p.Text) > textPartMax {
			return fmt.Errorf("part %d: text must be 1 to %d characters", i, textPartMax)
		}
	}
	if err := validateAttachments(body.Message.Attachments); err != nil {
		return err
	}
	if _, ok := s.models[body.SelectedChatModel]; !ok {
		return fmt.Errorf("unknown model %q", body.SelectedChatModel)
	}
	switch chat.Visibility(body.SelectedVisibilityType) {
	case chat.VisibilityPrivate, chat.VisibilityPublic:
	default:
		return fmt.Errorf("unknown visibility %q", body.SelectedVisibilityType)
	}
	return nil
}

func validateAttachments(atts []chat.Attachment) error {
	for i, a := range atts {
		u, err := url.Parse(a.URL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("attachment %d: invalid url", i)
		}
		if len(a.Name) == 0 || len(a.Name) > textPartMax {
			return fmt.Errorf("attachment %d: name must be 1 to %d characters", i, textPartMax)
		}
		if a.ContentType != attachmentMIME {
			return fmt.Errorf("attachment %d: content type must be %s", i, attachmentMIME)
		}
	}
	return nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func textParts(parts []incomingPart) chat.Parts {
	out := make(chat.Parts, 0, len(parts))
	for _, p := range parts {
		out = append(out, chat.TextPart{Text: p.Text})
	}
	return out
}

// hasAttachment reports whether any user turn carries documents.
func hasAttachment(history []*chat.Message) bool {
	for _, m := range history {
		if m.Role == chat.RoleUser && len(m.Attachments) > 0 {
			return true
		}
	}
	return false
}

// httpSink writes stream frames to the HTTP response, newline delimited,
// flushing after every frame so clients observe events as they happen.
type httpSink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ stream.Sink = (*httpSink)(nil)

func newHTTPSink(w http.ResponseWriter) *httpSink {
	flusher, _ := w.(http.Flusher)
	return &httpSink{w: w, flusher: flusher, done: make(chan struct{})}
}

// Send implements stream.Sink.
func (h *httpSink) Send(_ context.Context, event stream.Event) error {
	frame, err := stream.EncodeFrame(event)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("response closed")
	}
	if _, err := h.w.Write(append(frame, '\n')); err != nil {
		return err
	}
	h.flush()
	return nil
}

// Close implements stream.Sink. Idempotent.
func (h *httpSink) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	return nil
}

func (h *httpSink) flush() {
	if h.flusher != nil {
		h.flusher.Flush()
	}
}
