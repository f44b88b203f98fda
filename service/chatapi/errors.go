package chatapi

import (
	"context"
	"encoding/json"
	"net/http"

	"goa.design/clue/log"
)

// Kind classifies boundary errors. Every error crossing the HTTP surface is
// mapped to one of these; raw internals never reach the wire.
type Kind string

const (
	KindBadRequest         Kind = "bad_request"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindUpstreamFailure    Kind = "upstream_failure"
	KindPersistenceFailure Kind = "persistence_failure"
	KindOffline            Kind = "offline"
)

func (k Kind) status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindPersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func (k Kind) message() string {
	switch k {
	case KindBadRequest:
		return "The request could not be processed. Please check your input and try again."
	case KindUnauthorized:
		return "You need to sign in before continuing."
	case KindForbidden:
		return "This chat belongs to another user."
	case KindNotFound:
		return "The requested chat was not found."
	case KindUpstreamFailure:
		return "An upstream service failed while processing your request."
	case KindPersistenceFailure:
		return "Your request could not be saved. Please try again."
	default:
		return "Something went wrong. Please try again later."
	}
}

// respondError writes the taxonomy error for the kind. The cause, when given,
// is logged server-side only.
func respondError(ctx context.Context, w http.ResponseWriter, kind Kind, cause error) {
	if cause != nil {
		log.Error(ctx, cause, log.KV{K: "msg", V: "request failed"}, log.KV{K: "code", V: string(kind)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.status())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(kind),
		"message": kind.message(),
	})
}
