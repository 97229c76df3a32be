package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "cache.db"), &logger)
	require.NoError(t, err)
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestCacheEntries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		got, err := db.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, db.Set(ctx, "doc", []byte(`{"v":1,"last_updated_at":100}`)))

		got, err := db.Get(ctx, "doc")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1,"last_updated_at":100}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, db.Set(ctx, "doc", []byte(`{"v":2,"last_updated_at":200}`)))

		got, err := db.Get(ctx, "doc")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2,"last_updated_at":200}`, string(got))
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, db.Remove(ctx, "doc"))
		got, err := db.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, db.Remove(ctx, "doc"))
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		require.NoError(t, db.Set(ctx, "a", []byte("1")))
		require.NoError(t, db.Set(ctx, "b", []byte("2")))
		require.NoError(t, db.Remove(ctx, "a"))

		got, err := db.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "2", string(got))
	})
}

func TestCacheConcurrentWrites(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.Set(ctx, fmt.Sprintf("k%d", i), []byte("x")))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		got, err := db.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.Equal(t, "x", string(got))
	}
}

func TestClosedDB(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Close())
	ctx := context.Background()

	_, err := db.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, db.Set(ctx, "k", []byte("v")))
	assert.Error(t, db.Remove(ctx, "k"))
}
