package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skyreader/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "skyreader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	cursor, err := repo.GetCursor(ctx, "jetstream")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	require.NoError(t, repo.UpdateCursor(ctx, "jetstream", 1700000000000000))
	require.NoError(t, repo.UpdateCursor(ctx, "jetstream", 1700000000000042))

	cursor, err = repo.GetCursor(ctx, "jetstream")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000042), cursor)

	other, err := repo.GetCursor(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	latest, err := repo.LatestSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := &domain.Session{
		DID:        "did:plc:alice",
		Handle:     "alice.test",
		PDS:        "https://pds.test",
		AccessJwt:  "a1",
		RefreshJwt: "r1",
		UpdatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &domain.Session{
		DID:        "did:plc:bob",
		Handle:     "bob.test",
		PDS:        "https://pds.test",
		AccessJwt:  "b1",
		RefreshJwt: "s1",
		UpdatedAt:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveSession(ctx, older))
	require.NoError(t, repo.SaveSession(ctx, newer))

	latest, err = repo.LatestSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "did:plc:bob", latest.DID)
	assert.Equal(t, "b1", latest.AccessJwt)

	t.Run("upsert replaces tokens", func(t *testing.T) {
		refreshed := *older
		refreshed.AccessJwt = "a2"
		refreshed.RefreshJwt = "r2"
		refreshed.UpdatedAt = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.SaveSession(ctx, &refreshed))

		latest, err := repo.LatestSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "did:plc:alice", latest.DID)
		assert.Equal(t, "a2", latest.AccessJwt)
		assert.Equal(t, "r2", latest.RefreshJwt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, "did:plc:alice"))
		latest, err := repo.LatestSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "did:plc:bob", latest.DID)
	})

	t.Run("missing did", func(t *testing.T) {
		assert.Error(t, repo.SaveSession(ctx, &domain.Session{}))
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "skyreader.db")

	repo, err := NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateCursor(ctx, "jetstream", 99))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	cursor, err := repo.GetCursor(ctx, "jetstream")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cursor)
}

var (
	_ domain.CursorRepository  = (*Repository)(nil)
	_ domain.SessionRepository = (*Repository)(nil)
)
