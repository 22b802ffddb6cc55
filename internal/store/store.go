// Package store holds product records in memory and hands out the per-product
// locks that serialize mutations.
package store

import (
	"sort"
	"sync"

	"github.com/fairyhunter13/inventory-coordinator/internal/model"
)

// Store maps product ids to their current record. It applies no concurrency
// policy beyond keeping the map itself consistent; callers mutate a product
// only while holding Locks.For(id).
type Store struct {
	mu sync.RWMutex
	m  map[string]model.Product
}

func New() *Store {
	return &Store{m: make(map[string]model.Product)}
}

// Get returns a copy of the stored record.
func (s *Store) Get(id string) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return model.Product{}, false
	}
	return p.Clone(), true
}

// Put overwrites the record for p.ID with a copy of p.
func (s *Store) Put(p model.Product) {
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.ID] = p.Clone()
}

// List returns copies of all records ordered by id.
func (s *Store) List() []model.Product {
	s.mu.RLock()
	out := make([]model.Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
