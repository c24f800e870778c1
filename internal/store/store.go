// Package store is the device-local persistence used as catalog cache and as
// the durable mirror of the cart. Records are opaque bytes grouped in tables;
// each component owns its own table names.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

type Record struct {
	Key  string
	Data []byte
}

type Store interface {
	Upsert(ctx context.Context, table, key string, data []byte) error
	// UpsertBatch replaces the given keys and leaves every other key untouched.
	UpsertBatch(ctx context.Context, table string, records []Record) error
	Delete(ctx context.Context, table, key string) error
	Get(ctx context.Context, table, key string) ([]byte, error)
	ScanAll(ctx context.Context, table string) ([]Record, error)
	Clear(ctx context.Context, table string) error
	Close() error
}
