package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory RoomStore for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*RoomSessionRecord
}

var _ RoomStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*RoomSessionRecord)}
}

// Get implements RoomStore.
func (s *MemoryStore) Get(_ context.Context, roomID string) (*RoomSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	if rec.Tokens != nil {
		tokens := *rec.Tokens
		cp.Tokens = &tokens
	}
	return &cp, nil
}

// Put implements RoomStore.
func (s *MemoryStore) Put(_ context.Context, roomID string, rec *RoomSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if rec.Tokens != nil {
		tokens := *rec.Tokens
		cp.Tokens = &tokens
	}
	cp.UpdatedAt = time.Now().UTC()
	s.records[roomID] = &cp
	return nil
}

// Delete implements RoomStore.
func (s *MemoryStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, roomID)
	return nil
}

// List implements RoomStore.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stale implements RoomStore.
func (s *MemoryStore) Stale(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
