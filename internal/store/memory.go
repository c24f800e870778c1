package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with in-memory maps. Used for anonymous
// sessions without a device database and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Upsert(ctx context.Context, table, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableLocked(table)[key] = clone(data)
	return nil
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, table string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(table)
	for _, r := range records {
		t[r.Key] = clone(r.Data)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, table, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], key)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.tables[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(data), nil
}

// ScanAll returns records ordered by key.
func (s *MemoryStore) ScanAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.tables[table]
	out := make([]Record, 0, len(t))
	for k, v := range t {
		out = append(out, Record{Key: k, Data: clone(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) tableLocked(table string) map[string][]byte {
	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	return t
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
