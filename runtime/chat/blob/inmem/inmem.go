// Package inmem provides an in-memory blob.Store for tests and single
// process development runs.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/korefocus/diligence/runtime/chat/blob"
)

// Store is an in-memory blob.Store. Safe for concurrent use.
type Store struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]*blob.Object
}

// New constructs an empty store. baseURL prefixes served object URLs,
// typically "/files".
func New(baseURL string) *Store {
	return &Store{baseURL: baseURL, objects: make(map[string]*blob.Object)}
}

// Put implements blob.Store.
func (s *Store) Put(_ context.Context, obj *blob.Object) (string, error) {
	cp := *obj
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Data = append([]byte(nil), obj.Data...)
	s.mu.Lock()
	s.objects[cp.ID] = &cp
	s.mu.Unlock()
	return s.baseURL + "/" + cp.ID, nil
}

// Get implements blob.Store.
func (s *Store) Get(_ context.Context, id string) (*blob.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, blob.ErrNotFound
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return &cp, nil
}
