package docstore

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("document store not configured")

// Store mirrors heavy session payloads (GPS traces) into a document store.
// Writes are fire-and-forget from the engine's perspective: a failure is
// logged, never rolled back into the relational submission.
type Store interface {
	// AddDocument stores payload as one JSON document in the named
	// collection and returns the generated document id.
	AddDocument(ctx context.Context, collection string, payload any) (string, error)
	Close() error
}

// NoopStore stands in when no document store is configured.
type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) AddDocument(_ context.Context, _ string, _ any) (string, error) {
	return "", ErrNotConfigured
}

func (s *NoopStore) Close() error {
	return nil
}
