package drop

import (
	"context"
	"sync"
	"time"
)

// Store persists drop entries by code.
type Store interface {
	// Put inserts a new entry. ErrCodeTaken is returned if the code exists.
	Put(ctx context.Context, e *Entry) error
	// Get returns the entry or ErrNotFound.
	Get(ctx context.Context, code string) (*Entry, error)
	// Update overwrites an existing entry.
	Update(ctx context.Context, e *Entry) error
	// Delete removes an entry. Deleting a missing code is not an error.
	Delete(ctx context.Context, code string) error
	// PurgeExpired removes every entry expired at now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// MemoryStore keeps entries in process memory. Entries are stored encoded so
// callers never share slices with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	expiry  map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		expiry:  make(map[string]time.Time),
	}
}

func (s *MemoryStore) Put(_ context.Context, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Code]; ok {
		return ErrCodeTaken
	}
	s.entries[e.Code] = data
	s.expiry[e.Code] = e.ExpiresAt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, code string) (*Entry, error) {
	s.mu.Lock()
	data, ok := s.entries[code]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeEntry(data)
}

func (s *MemoryStore) Update(_ context.Context, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Code]; !ok {
		return ErrNotFound
	}
	s.entries[e.Code] = data
	s.expiry[e.Code] = e.ExpiresAt
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	delete(s.entries, code)
	delete(s.expiry, code)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.entries, code)
			delete(s.expiry, code)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
