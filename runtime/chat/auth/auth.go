// Package auth authenticates HTTP callers. Session issuance is external;
// this package only resolves credentials already present on a request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no valid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

type (
	// Session identifies an authenticated caller.
	Session struct {
		// UserID is the caller's stable identifier.
		UserID string
	}

	// Authenticator resolves the session for a request.
	Authenticator interface {
		// Authenticate returns the caller's session or ErrUnauthenticated.
		Authenticate(r *http.Request) (Session, error)
	}

	// StaticTokens authenticates bearer tokens against a fixed token to user
	// mapping. Suitable for service-to-service setups and tests; interactive
	// session issuance stays external.
	StaticTokens struct {
		tokens map[string]string
	}
)

// NewStaticTokens builds an Authenticator from a token to user ID mapping.
func NewStaticTokens(tokens map[string]string) (*StaticTokens, error) {
	if len(tokens) == 0 {
		return nil, errors.New("at least one token is required")
	}
	cp := make(map[string]string, len(tokens))
	for t, u := range tokens {
		if t == "" || u == "" {
			return nil, errors.New("token and user id are required")
		}
		cp[t] = u
	}
	return &StaticTokens{tokens: cp}, nil
}

// Authenticate implements Authenticator using the Authorization header.
func (s *StaticTokens) Authenticate(r *http.Request) (Session, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return Session{}, ErrUnauthenticated
	}
	user, ok := s.tokens[token]
	if !ok {
		return Session{}, ErrUnauthenticated
	}
	return Session{UserID: user}, nil
}

type ctxKey struct{}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session stored in the context, if any.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
