// Package blob holds in-memory byte payloads behind opaque references that can
// be handed to a presentation layer and revoked explicitly.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// refPrefix marks every reference handed out by a Store.
const refPrefix = "blob:"

// ErrNotFound is returned when a reference is unknown or was revoked.
var ErrNotFound = errors.New("blob: reference not found")

// Blob is an immutable payload tagged with a content type.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store maps references to payloads. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{blobs: make(map[string]Blob)}
}

// Create stores data and returns a new reference to it.
// The store keeps its own copy of data.
func (s *Store) Create(data []byte, contentType string) string {
	ref := refPrefix + uuid.New().String()
	payload := Blob{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}

	s.mu.Lock()
	s.blobs[ref] = payload
	s.mu.Unlock()
	return ref
}

// Open returns the payload behind ref.
func (s *Store) Open(ref string) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return b, nil
}

// Revoke drops ref. It reports whether the reference was live; revoking twice
// is harmless.
func (s *Store) Revoke(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		return false
	}
	delete(s.blobs, ref)
	return true
}

// Len returns the number of live references.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsRef reports whether s looks like a reference produced by a Store.
func IsRef(s string) bool {
	return strings.HasPrefix(s, refPrefix)
}
