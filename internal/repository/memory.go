package repository

import (
	"context"
	"sync"

	"docsync/internal/models"
)

// MemoryRemoteStore is an in-process RemoteStore with merge semantics.
// Used for local development and as a test double.
type MemoryRemoteStore struct {
	mu     sync.RWMutex
	docs   map[models.Location]models.SyncDocument
	writes []models.SyncDocument
}

func NewMemoryRemoteStore() *MemoryRemoteStore {
	return &MemoryRemoteStore{
		docs: make(map[models.Location]models.SyncDocument),
	}
}

func (r *MemoryRemoteStore) Get(ctx context.Context, loc models.Location) (models.SyncDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[loc]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (r *MemoryRemoteStore) MergeSet(ctx context.Context, loc models.Location, doc models.SyncDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.docs[loc]
	if !ok {
		current = make(models.SyncDocument, len(doc))
	}
	for k, v := range doc {
		current[k] = v
	}
	r.docs[loc] = current
	r.writes = append(r.writes, doc.Clone())
	return nil
}

// Writes returns every document passed to MergeSet, oldest first.
func (r *MemoryRemoteStore) Writes() []models.SyncDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SyncDocument, len(r.writes))
	copy(out, r.writes)
	return out
}

// MemoryCache is an in-process LocalCache.
type MemoryCache struct {
	entries sync.Map
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok := c.entries.Load(key)
	if !ok {
		return nil, nil
	}
	src := val.([]byte)
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries.Store(key, stored)
	return nil
}

func (c *MemoryCache) Remove(ctx context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}
