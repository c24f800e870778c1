package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "catalog_items", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert replaces by key", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, "catalog_items", "a", []byte(`{"v":1}`)))
		require.NoError(t, s.Upsert(ctx, "catalog_items", "a", []byte(`{"v":2}`)))

		data, err := s.Get(ctx, "catalog_items", "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(data))
	})

	t.Run("batch keeps keys outside the batch", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, "catalog_items", "c", []byte(`{"v":"c"}`)))
		require.NoError(t, s.UpsertBatch(ctx, "catalog_items", []Record{
			{Key: "a", Data: []byte(`{"v":"a2"}`)},
			{Key: "b", Data: []byte(`{"v":"b"}`)},
		}))

		records, err := s.ScanAll(ctx, "catalog_items")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "a", records[0].Key)
		assert.Equal(t, "b", records[1].Key)
		assert.Equal(t, "c", records[2].Key)
		assert.JSONEq(t, `{"v":"a2"}`, string(records[0].Data))
	})

	t.Run("tables are disjoint", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, "cart_items:u1", "a", []byte(`{"q":1}`)))

		records, err := s.ScanAll(ctx, "cart_items:u1")
		require.NoError(t, err)
		assert.Len(t, records, 1)

		require.NoError(t, s.Clear(ctx, "cart_items:u1"))
		records, err = s.ScanAll(ctx, "catalog_items")
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "catalog_items", "b"))
		require.NoError(t, s.Delete(ctx, "catalog_items", "missing"))

		_, err := s.Get(ctx, "catalog_items", "b")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, "catalog_items"))
		records, err := s.ScanAll(ctx, "catalog_items")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Upsert(ctx, "t", "k", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func setupSQLite(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.RunMigrations("./migrations"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, setupSQLite(t))
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	s := setupSQLite(t)
	assert.NoError(t, s.RunMigrations("./migrations"))
}

func TestSQLiteStore_UnopenablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "store.db")

	s, err := NewSQLiteStore(path)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorContains(t, err, path)
}

func TestSQLiteStore_CancelledContext(t *testing.T) {
	s := setupSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScanAll(ctx, "catalog_items")
	assert.ErrorContains(t, err, "context canceled")
}

// setupTestRedis creates a miniredis server and returns a RedisStore on top of it
func setupTestRedis(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	s := NewRedisStore(client, opts...)
	t.Cleanup(func() { client.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := setupTestRedis(t)
	runStoreContract(t, s)
}

func TestRedisStore_TableTTL(t *testing.T) {
	s, mr := setupTestRedis(t, WithTableTTL("catalog_items", 15*time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "catalog_items", "a", []byte("{}")))
	require.NoError(t, s.Upsert(ctx, "cart_items:u1", "a", []byte("{}")))

	ttl := mr.TTL("storefront:catalog_items")
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")

	assert.Equal(t, time.Duration(0), mr.TTL("storefront:cart_items:u1"), "cart mirror must not expire")
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	s, mr := setupTestRedis(t, WithKeyPrefix("device42"))
	require.NoError(t, s.Upsert(context.Background(), "catalog_items", "a", []byte("{}")))

	assert.True(t, mr.Exists("device42:catalog_items"))
	got := mr.HGet("device42:catalog_items", "a")
	assert.Equal(t, "{}", got)
}

type widget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestTable(t *testing.T) {
	s := NewMemoryStore()
	tbl := NewTable(s, "widgets", func(w widget) string { return w.ID })
	ctx := context.Background()

	require.NoError(t, tbl.PutAll(ctx, []widget{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}))
	require.NoError(t, tbl.Put(ctx, widget{ID: "1", Name: "uno"}))
	require.NoError(t, s.Upsert(ctx, "widgets", "3", []byte("not json")))

	w, err := tbl.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "uno", w.Name)

	all, bad, err := tbl.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, bad, 1)

	require.NoError(t, tbl.Delete(ctx, "2"))
	_, err = tbl.Get(ctx, "2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tbl.Clear(ctx))
	all, _, err = tbl.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, "widgets", tbl.Name())
}
