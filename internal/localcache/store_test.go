package localcache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE cache_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER
		)
	`)
	require.NoError(t, err)
	return db
}

func TestSQLiteStore_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", `["a"]`))
	require.NoError(t, store.Set(ctx, "k", `["b"]`))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["b"]`, value, "last writer wins")
}

func TestSQLiteStore_ExpiredEntriesAreServedStale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, time.Hour)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	store.now = func() time.Time { return past }
	require.NoError(t, store.Set(ctx, "k", "v"))
	store.now = time.Now

	_, fresh, err := store.GetIfFresh(ctx, "k")
	require.NoError(t, err)
	assert.False(t, fresh)

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestSQLiteStore_ZeroTTLNeverExpires(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, 0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v"))
	store.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }

	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, fresh, err := store.GetIfFresh(ctx, "k")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSQLiteStore_DeleteAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key("u1", KindSelectedAccounts), "[]"))
	require.NoError(t, store.Set(ctx, Key("u1", KindFavoriteProducts), "[]"))
	require.NoError(t, store.Set(ctx, Key("u2", KindSelectedAccounts), "[]"))

	entries, err := store.List(ctx, UserPrefix("u1"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Key("u1", KindFavoriteProducts), entries[0].Key)
	assert.NotNil(t, entries[0].ExpiresAt)

	require.NoError(t, store.Delete(ctx, Key("u1", KindFavoriteProducts)))
	entries, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSQLiteStore_ListDoesNotMixUsersSharingAPrefix(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key("a", KindSelectedAccounts), "[1]"))
	require.NoError(t, store.Set(ctx, Key("a:b", KindSelectedAccounts), "[2]"))

	entries, err := store.List(ctx, UserPrefix("a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "[1]", entries[0].Value)

	entries, err = store.List(ctx, UserPrefix("a:b"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "[2]", entries[0].Value)
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewSQLiteStore(db, time.Hour)
	ctx := context.Background()

	store.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	require.NoError(t, store.Set(ctx, "expired", "v"))
	store.now = time.Now
	require.NoError(t, store.Set(ctx, "fresh", "v"))

	job := NewCleanupJob(store, zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&count))
	assert.Equal(t, 1, count)

	_, ok, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCleanupJobRunEmptyTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewSQLiteStore(db, time.Hour), zerolog.Nop())
	require.NoError(t, job.Run())
}
