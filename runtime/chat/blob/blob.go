// Package blob defines storage for tool-produced artifacts (SWOT decks,
// question memos). Objects are written once and served back by the HTTP
// files endpoint.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for unknown object IDs.
var ErrNotFound = errors.New("blob not found")

type (
	// Object is one stored artifact.
	Object struct {
		// ID is the object identifier, assigned by Put when empty.
		ID string
		// Name is the display file name.
		Name string
		// ContentType is the MIME type served with the object.
		ContentType string
		// Data is the object payload.
		Data []byte
		// CreatedAt is the storage timestamp.
		CreatedAt time.Time
	}

	// Store persists artifacts. Implementations must be safe for concurrent
	// use.
	Store interface {
		// Put stores the object and returns the URL it will be served from.
		Put(ctx context.Context, obj *Object) (string, error)

		// Get returns the stored object or ErrNotFound.
		Get(ctx context.Context, id string) (*Object, error)
	}
)
