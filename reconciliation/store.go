package reconciliation

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
)

// ObjectStore is the durable key/value contract spec.md §6 requires for
// PersistState/RestoreState. It is intentionally not a SQL or document
// store interface: the core only ever needs whole-blob save/read/exists.
type ObjectStore interface {
	Save(ctx context.Context, key string, value []byte) error
	ContainsKey(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// ErrObjectNotFound is returned by MemoryObjectStore.Read for an absent key.
var ErrObjectNotFound = fmt.Errorf("object not found")

// MemoryObjectStore is an in-process ObjectStore double for tests and for
// hosts that checkpoint to local state rather than a remote bucket. Every
// write is tagged with a fresh uuid (see LastWriteID), so two saves under
// the same key are distinguishable; the later value still replaces the
// earlier one, e.g. two backups within the same wall-clock second (the
// backup key's resolution) keep only the second.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	writeID map[string]uuid.UUID
}

// NewMemoryObjectStore constructs an empty MemoryObjectStore.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		objects: make(map[string][]byte),
		writeID: make(map[string]uuid.UUID),
	}
}

// Save stores value under key, overwriting any prior value.
func (s *MemoryObjectStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("generate write id: %w", err)
	}
	s.objects[key] = append([]byte(nil), value...)
	s.writeID[key] = id
	return nil
}

// ContainsKey reports whether key has ever been written.
func (s *MemoryObjectStore) ContainsKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Read returns the value last saved under key, or ErrObjectNotFound.
func (s *MemoryObjectStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// LastWriteID returns the uuid minted for the most recent Save under key, for
// tests asserting that two concurrent checkpoints produced distinct writes.
func (s *MemoryObjectStore) LastWriteID(key string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.writeID[key]
	return id, ok
}
