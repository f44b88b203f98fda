// Package chatapi exposes the chat session coordinator over HTTP: start
// generation, resume a run's stream, manage attachments, delete chats, and
// serve tool artifacts. All errors cross the boundary through the Kind
// taxonomy.
package chatapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"goa.design/clue/health"

	"github.com/korefocus/diligence/runtime/chat"
	"github.com/korefocus/diligence/runtime/chat/auth"
	"github.com/korefocus/diligence/runtime/chat/blob"
	"github.com/korefocus/diligence/runtime/chat/driver"
	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/resume"
)

// DefaultReplayWindow bounds how old a persisted assistant message may be and
// still be replayed on resume.
const DefaultReplayWindow = 15 * time.Second

type (
	// ModelVariant maps a client-facing model selector to a provider model.
	ModelVariant struct {
		// ModelID is the provider-specific model identifier.
		ModelID string
		// Thinking enables extended thinking for the variant.
		Thinking *model.ThinkingOptions
	}

	// Options configures the coordinator.
	Options struct {
		// Auth authenticates callers. Required.
		Auth auth.Authenticator
		// Store persists chats and messages. Required.
		Store chat.Store
		// Blobs serves tool artifacts. Required.
		Blobs blob.Store
		// Driver executes generation runs. Required.
		Driver *driver.Driver
		// Registry mirrors run streams for resumption. Nil disables
		// resumability.
		Registry resume.Registry
		// Models maps allowed selectedChatModel values to provider models.
		// Required, non-empty.
		Models map[string]ModelVariant
		// ReplayWindow overrides DefaultReplayWindow.
		ReplayWindow time.Duration
		// Pingers feed the health endpoints.
		Pingers []health.Pinger
		// Now overrides the clock, for tests.
		Now func() time.Time
	}

	// Service is the HTTP chat coordinator.
	Service struct {
		auth         auth.Authenticator
		store        chat.Store
		blobs        blob.Store
		driver       *driver.Driver
		registry     resume.Registry
		models       map[string]ModelVariant
		replayWindow time.Duration
		pingers      []health.Pinger
		now          func() time.Time
	}
)

// New builds a Service from the provided options.
func New(opts Options) (*Service, error) {
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.Driver == nil {
		return nil, errors.New("driver is required")
	}
	if len(opts.Models) == 0 {
		return nil, errors.New("at least one model variant is required")
	}
	for name, v := range opts.Models {
		if v.ModelID == "" {
			return nil, errors.New("model variant " + name + " is missing a model id")
		}
	}
	window := opts.ReplayWindow
	if window <= 0 {
		window = DefaultReplayWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		auth:         opts.Auth,
		store:        opts.Store,
		blobs:        opts.Blobs,
		driver:       opts.Driver,
		registry:     opts.Registry,
		models:       opts.Models,
		replayWindow: window,
		pingers:      opts.Pingers,
		now:          now,
	}, nil
}

// Handler returns the service routes mounted on a chi router.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", s.postChat)
	r.Get("/chat", s.resumeChat)
	r.Patch("/chat", s.patchChat)
	r.Delete("/chat", s.deleteChat)
	r.Get("/files/{id}", s.serveFile)
	check := health.Handler(health.NewChecker(s.pingers...))
	r.Get("/healthz", check)
	r.Get("/livez", check)
	return r
}

// session authenticates the request, writing a 401 on failure.
func (s *Service) session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, err := s.auth.Authenticate(r)
	if err != nil {
		respondError(r.Context(), w, KindUnauthorized, nil)
		return auth.Session{}, false
	}
	return sess, true
}
