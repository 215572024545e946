package syncqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebase/docvault/internal/vault/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
  tenant_id TEXT NOT NULL,
  ciphertext BLOB NOT NULL,
  nonce BLOB NOT NULL,
  idempotency_key TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  retry_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func item(key string, retryAt time.Time) *models.QueueItem {
	return &models.QueueItem{
		TenantID:       "t1",
		Ciphertext:     []byte{0x01},
		Nonce:          []byte{0x02},
		IdempotencyKey: key,
		Status:         models.QueueStatusPending,
		RetryAt:        retryAt,
		CreatedAt:      time.Now(),
	}
}

func TestInsert_AssignsMonotonicIDs(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	id1, err := r.Insert(ctx, item("k1", time.Now()))
	require.NoError(t, err)
	id2, err := r.Insert(ctx, item("k2", time.Now()))
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestDue_OrderAndFiltering(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, err := r.Insert(ctx, item("due1", now.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = r.Insert(ctx, item("future", now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = r.Insert(ctx, item("due2", now.Add(-time.Second)))
	require.NoError(t, err)

	got, err := r.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// oldest-first by queue id, regardless of retry_at ordering
	assert.Equal(t, "due1", got[0].IdempotencyKey)
	assert.Equal(t, "due2", got[1].IdempotencyKey)
}

func TestDue_ExcludesFailedAndInflight(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	id1, err := r.Insert(ctx, item("claimed", now.Add(-time.Minute)))
	require.NoError(t, err)
	id2, err := r.Insert(ctx, item("dead", now.Add(-time.Minute)))
	require.NoError(t, err)

	ok, err := r.Claim(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.MarkFailed(ctx, id2, 6))

	got, err := r.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClaim_OnlyOneWinner(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	id, err := r.Insert(ctx, item("k", time.Now()))
	require.NoError(t, err)

	ok, err := r.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second claim loses
	ok, err = r.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// claiming a deleted item loses too
	require.NoError(t, r.DeleteByID(ctx, id))
	ok, err = r.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelease_KeepsIdempotencyKey(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	id, err := r.Insert(ctx, item("stable-key", now))
	require.NoError(t, err)

	ok, err := r.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	retryAt := now.Add(2 * time.Second)
	require.NoError(t, r.Release(ctx, id, 1, retryAt))

	got, err := r.Due(ctx, retryAt.Add(time.Millisecond), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stable-key", got[0].IdempotencyKey)
	assert.Equal(t, 1, got[0].AttemptCount)
	assert.Equal(t, retryAt.UnixMilli(), got[0].RetryAt.UnixMilli())
}

func TestResetInflight(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	id, err := r.Insert(ctx, item("orphan", now.Add(-time.Minute)))
	require.NoError(t, err)
	ok, err := r.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := r.ResetInflight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStats(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, err := r.Insert(ctx, item("p1", now))
	require.NoError(t, err)
	id2, err := r.Insert(ctx, item("p2", now))
	require.NoError(t, err)
	id3, err := r.Insert(ctx, item("f1", now))
	require.NoError(t, err)

	ok, err := r.Claim(ctx, id2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.MarkFailed(ctx, id3, 6))

	pending, failed, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending) // pending + inflight both count as outstanding
	assert.Equal(t, int64(1), failed)
}

func TestDeleteFailedBefore_SparesPending(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now()

	old := item("old-failed", now)
	old.CreatedAt = now.Add(-40 * 24 * time.Hour)
	idOld, err := r.Insert(ctx, old)
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, idOld, 6))

	ancientPending := item("ancient-pending", now)
	ancientPending.CreatedAt = now.Add(-400 * 24 * time.Hour)
	_, err = r.Insert(ctx, ancientPending)
	require.NoError(t, err)

	recentFailed := item("recent-failed", now)
	idRecent, err := r.Insert(ctx, recentFailed)
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, idRecent, 6))

	n, err := r.DeleteFailedBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, failed, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending) // pending survives regardless of age
	assert.Equal(t, int64(1), failed)
}
