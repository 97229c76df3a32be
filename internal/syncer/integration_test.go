package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"docsync/internal/config"
	"docsync/internal/connectivity"
	"docsync/internal/database"
	"docsync/internal/models"
	"docsync/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineWithRedisAndSQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := repository.NewRedisClient(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	remote := repository.NewRedisRemoteStore(client, "it:")

	db, err := database.NewDB(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	monitor := connectivity.NewMonitor(nil, nil)
	clock := newFakeClock(1000)
	engine, err := New(Options{Location: testLoc, CacheKey: testCacheKey}, remote, db, monitor, WithClock(clock))
	require.NoError(t, err)

	ctx := context.Background()

	// Another writer updates the remote copy.
	require.NoError(t, remote.MergeSet(ctx, testLoc, models.SyncDocument{
		"name":                    "remote",
		"age":                     41,
		models.FieldLastUpdatedAt: int64(500),
	}))
	require.True(t, engine.Pull(ctx).Success)

	doc, res := engine.Get(ctx)
	require.True(t, res.Success)
	assert.Equal(t, "remote", doc["name"])
	assert.Equal(t, int64(500), doc.Timestamp())

	// Offline edit, then reconnect.
	monitor.SetOffline()
	clock.Set(2000)
	require.True(t, engine.Push(ctx, models.SyncDocument{"name": "local"}).Success)

	got, err := remote.Get(ctx, testLoc)
	require.NoError(t, err)
	assert.Equal(t, "remote", got["name"])

	monitor.SetOnline()
	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Flush(flushCtx))

	got, err = remote.Get(ctx, testLoc)
	require.NoError(t, err)
	assert.Equal(t, "local", got["name"])
	assert.Equal(t, float64(41), got["age"])
	assert.Equal(t, int64(2000), got.Timestamp())
	assert.Zero(t, engine.Status().QueueLength)

	// Remote and cache now agree.
	require.True(t, engine.Pull(ctx).Success)
	doc, _ = engine.Get(ctx)
	assert.Equal(t, int64(2000), doc.Timestamp())
}
