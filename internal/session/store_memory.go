package session

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data      *Data
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Entries expire ttl after their last
// access; expired entries are dropped on read and swept on create.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, d *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	d.CreatedAt = now
	d.UpdatedAt = now
	d.Version = 1

	s.sessions[d.ID] = memEntry{data: d.Clone(), expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !now.Before(e.expiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}

	e.expiresAt = now.Add(s.ttl)
	s.sessions[id] = e
	return e.data.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, d *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[d.ID]
	if !ok || !now.Before(e.expiresAt) {
		delete(s.sessions, d.ID)
		return ErrNotFound
	}
	if e.data.Version != d.Version {
		return ErrVersionConflict
	}

	d.Version++
	d.UpdatedAt = now

	s.sessions[d.ID] = memEntry{data: d.Clone(), expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]memEntry)
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now

	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
}
