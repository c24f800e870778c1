package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per table. Tables registered with WithTableTTL
// expire after their base TTL plus up to 5 minutes of jitter, so cached
// tables written at the same moment do not all expire together.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttls   map[string]time.Duration
}

type RedisOption func(*RedisStore)

func WithTableTTL(table string, baseTTL time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.ttls[table] = baseTTL
	}
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: "storefront",
		ttls:   make(map[string]time.Duration),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *RedisStore) Upsert(ctx context.Context, table, key string, data []byte) error {
	return r.UpsertBatch(ctx, table, []Record{{Key: key, Data: data}})
}

func (r *RedisStore) UpsertBatch(ctx context.Context, table string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	hashKey := r.hashKey(table)
	values := make(map[string]interface{}, len(records))
	for _, rec := range records {
		values[rec.Key] = rec.Data
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, values)
		if ttl, ok := r.ttlFor(table); ok {
			pipe.Expire(ctx, hashKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, table, key string) error {
	if err := r.client.HDel(ctx, r.hashKey(table), key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	data, err := r.client.HGet(ctx, r.hashKey(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStore) ScanAll(ctx context.Context, table string) ([]Record, error) {
	all, err := r.client.HGetAll(ctx, r.hashKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	records := make([]Record, 0, len(all))
	for k, v := range all {
		records = append(records, Record{Key: k, Data: []byte(v)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (r *RedisStore) Clear(ctx context.Context, table string) error {
	if err := r.client.Del(ctx, r.hashKey(table)).Err(); err != nil {
		return fmt.Errorf("redis clear failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) ttlFor(table string) (time.Duration, bool) {
	base, ok := r.ttls[table]
	if !ok || base <= 0 {
		return 0, false
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return base + jitter, true
}

func (r *RedisStore) hashKey(table string) string {
	return fmt.Sprintf("%s:%s", r.prefix, table)
}
