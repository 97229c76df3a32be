package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"docsync/internal/config"
	"docsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisRemoteStore keeps each document in a Redis hash; every field holds the
// JSON encoding of one document value. HSET only touches the given fields,
// which gives merge-write semantics for free.
type RedisRemoteStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisRemoteStore(client *redis.Client, keyPrefix string) *RedisRemoteStore {
	if keyPrefix == "" {
		keyPrefix = models.DefaultRedisKeyPrefix
	}
	return &RedisRemoteStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisRemoteStore) key(loc models.Location) string {
	return fmt.Sprintf("%s%s:%s", r.keyPrefix, loc.Collection, loc.DocID)
}

func (r *RedisRemoteStore) Get(ctx context.Context, loc models.Location) (models.SyncDocument, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	fields, err := r.client.HGetAll(ctx, r.key(loc)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	doc := make(models.SyncDocument, len(fields))
	for name, raw := range fields {
		var val interface{}
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			return nil, fmt.Errorf("failed to decode field %q: %w", name, err)
		}
		doc[name] = val
	}
	if ts, ok := doc.LastUpdatedAt(); ok {
		doc[models.FieldLastUpdatedAt] = ts
	}

	return doc, nil
}

func (r *RedisRemoteStore) MergeSet(ctx context.Context, loc models.Location, doc models.SyncDocument) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(doc) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(doc))
	for name, val := range doc {
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to encode field %q: %w", name, err)
		}
		values[name] = string(raw)
	}

	if err := r.client.HSet(ctx, r.key(loc), values).Err(); err != nil {
		return fmt.Errorf("failed to merge document in redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
