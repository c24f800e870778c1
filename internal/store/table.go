package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table is a typed view over one table of a Store, encoding values as JSON.
type Table[T any] struct {
	store Store
	name  string
	key   func(T) string
}

func NewTable[T any](s Store, name string, key func(T) string) *Table[T] {
	return &Table[T]{store: s, name: name, key: key}
}

func (t *Table[T]) Name() string {
	return t.name
}

func (t *Table[T]) Put(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record failed: %w", t.name, err)
	}
	return t.store.Upsert(ctx, t.name, t.key(v), data)
}

func (t *Table[T]) PutAll(ctx context.Context, vs []T) error {
	if len(vs) == 0 {
		return nil
	}
	records := make([]Record, 0, len(vs))
	for _, v := range vs {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s record failed: %w", t.name, err)
		}
		records = append(records, Record{Key: t.key(v), Data: data})
	}
	return t.store.UpsertBatch(ctx, t.name, records)
}

func (t *Table[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	data, err := t.store.Get(ctx, t.name, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s record failed: %w", t.name, err)
	}
	return v, nil
}

// All decodes every record. Records that fail to decode are skipped and
// reported through the second return value.
func (t *Table[T]) All(ctx context.Context) ([]T, []error, error) {
	records, err := t.store.ScanAll(ctx, t.name)
	if err != nil {
		return nil, nil, err
	}
	out := make([]T, 0, len(records))
	var bad []error
	for _, r := range records {
		var v T
		if err := json.Unmarshal(r.Data, &v); err != nil {
			bad = append(bad, fmt.Errorf("unmarshal %s/%s failed: %w", t.name, r.Key, err))
			continue
		}
		out = append(out, v)
	}
	return out, bad, nil
}

func (t *Table[T]) Delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, t.name, key)
}

func (t *Table[T]) Clear(ctx context.Context) error {
	return t.store.Clear(ctx, t.name)
}
