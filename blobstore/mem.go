package blobstore

import (
	"context"
	"sync"

	"github.com/dshollow/hollow/blob"
)

// MemStore is a transient, in-process Publisher/Announcer/BlobRetriever
// intended for tests, grounded on edb/storage_mem.go's mutex-guarded
// map-of-buckets shape (simplified here to one flat map, since MemStore
// has no transactional isolation to provide — each call is already
// atomic under the single mutex).
type MemStore struct {
	mu        sync.Mutex
	blobs     map[memKey][]byte
	latest    int64
	hasLatest bool
}

type memKey struct {
	version int64
	kind    blob.Kind
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[memKey][]byte)}
}

func (s *MemStore) Publish(ctx context.Context, version int64, kind blob.Kind, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), payload...)
	s.blobs[memKey{version, kind}] = cp
	return nil
}

func (s *MemStore) Retrieve(ctx context.Context, version int64, kind blob.Kind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.blobs[memKey{version, kind}]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (s *MemStore) Announce(ctx context.Context, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = version
	s.hasLatest = true
	return nil
}

func (s *MemStore) LatestAnnounced() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasLatest {
		return 0, ErrNotFound
	}
	return s.latest, nil
}
