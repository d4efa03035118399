package blobstore

import (
	"context"
	"sync"

	"storefront/exporter/internal/domain"
)

// Store is a key-value blob store used for settings and persisted cache
// entries. Load returns domain.ErrNotFound for absent keys; callers must
// tolerate absence of any given key.
type Store interface {
	Load(ctx context.Context, namespace, key string) ([]byte, error)
	Save(ctx context.Context, namespace, key string, data []byte) error
}

type memoryStore struct {
	mutex sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an in-process Store, used in tests and as a
// fallback when no persistence is configured.
func NewMemoryStore() Store {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Load(_ context.Context, namespace, key string) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, ok := s.blobs[namespace+"/"+key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *memoryStore) Save(_ context.Context, namespace, key string, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[namespace+"/"+key] = stored
	return nil
}
