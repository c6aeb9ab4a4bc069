package catalog

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type MemStore struct {
	mu    sync.RWMutex
	m     map[string]Product
	order []string
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]Product{}}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.copyOf(id))
	}
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.m[id]; !ok {
		return Product{}, false, nil
	}
	return s.copyOf(id), true, nil
}

func (s *MemStore) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := s.m[id]; ok {
			out = append(out, s.copyOf(id))
		}
	}
	return out, nil
}

func (s *MemStore) Create(ctx context.Context, f Fields) (Product, error) {
	p := Product{ID: uuid.NewString(), Fields: f.clone()}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[p.ID] = p
	s.order = append(s.order, p.ID)
	return s.copyOf(p.ID), nil
}

func (s *MemStore) Update(ctx context.Context, id string, f Fields) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return Product{}, false, nil
	}
	s.m[id] = Product{ID: id, Fields: f.clone()}
	return s.copyOf(id), true, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true, nil
}

// copyOf must be called with mu held.
func (s *MemStore) copyOf(id string) Product {
	p := s.m[id]
	return Product{ID: p.ID, Fields: p.Fields.clone()}
}
