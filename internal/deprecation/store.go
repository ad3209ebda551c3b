package deprecation

import (
	"context"
	"sort"
	"sync"
)

// Store persists migration records. Records must survive process
// restarts in production deployments; the in-memory implementation
// exists for tests and dry runs.
type Store interface {
	Save(ctx context.Context, m *Migration) error
	Get(ctx context.Context, id string) (*Migration, error)
	Update(ctx context.Context, m *Migration) error
	// List returns all migrations, newest first.
	List(ctx context.Context) ([]*Migration, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu         sync.RWMutex
	migrations map[string]*Migration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{migrations: make(map[string]*Migration)}
}

func (s *MemoryStore) Save(ctx context.Context, m *Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.migrations[m.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.migrations[id]
	if !ok {
		return nil, &NotFoundError{MigrationID: id}
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, m *Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; !ok {
		return &NotFoundError{MigrationID: m.ID}
	}
	cp := *m
	s.migrations[m.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Migration, 0, len(s.migrations))
	for _, m := range s.migrations {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
