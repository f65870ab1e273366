package otp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quocanhngo/studymate/internal/model"
)

// ErrNotFound is returned by a Store when no record exists for a key
var ErrNotFound = errors.New("otp record not found")

// Store persists OTP records keyed by "purpose:recipient".
// Implementations must not enforce expiry on Get: the manager decides what an
// expired record means.
type Store interface {
	Get(ctx context.Context, key string) (*model.OTPRecord, error)
	Put(ctx context.Context, key string, record *model.OTPRecord) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that can bulk-remove expired records
type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.OTPRecord
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.OTPRecord)}
}

// Get returns a copy of the record stored under key
func (s *MemoryStore) Get(_ context.Context, key string) (*model.OTPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Put stores a copy of record under key, replacing any previous one
func (s *MemoryStore) Put(_ context.Context, key string, record *model.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = *record
	return nil
}

// Delete removes the record under key; missing keys are not an error
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// DeleteExpired removes every record whose expiry is before the given time
func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, rec := range s.records {
		if rec.ExpiresAt.Before(before) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
