package keys

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsclarke/keyward/internal/db"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewManager(store.NewSQLiteStore(database, 0), nil)
}

func ptr[T any](v T) *T { return &v }

func TestManagerCreate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	key, err := m.Create(ctx, "svc-a", "first service")
	require.NoError(t, err)
	assert.True(t, LooksLikeSecret(key.Key))
	assert.Equal(t, models.StatusActive, key.Status)
	assert.Zero(t, key.RequestCount)
	assert.Nil(t, key.LastUsedAt)
	assert.Nil(t, key.RateLimit)

	got, err := m.Get(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.Key, got.Key)
	assert.Equal(t, "first service", got.Description)
}

func TestManagerCreateDuplicateName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "X", "")
	require.NoError(t, err)

	_, err = m.Create(ctx, "X", "again")
	assert.True(t, errors.Is(err, store.ErrConflict), "expected ErrConflict, got %v", err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	count := 0
	for _, k := range list {
		if k.Name == "X" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	// names are case-sensitive
	_, err = m.Create(ctx, "x", "")
	assert.NoError(t, err)
}

func TestManagerGetNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestManagerUpdate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "b", "")
	require.NoError(t, err)

	t.Run("status and rate limit", func(t *testing.T) {
		updated, err := m.Update(ctx, a.ID, models.KeyUpdate{
			Status:    ptr(models.StatusInactive),
			RateLimit: ptr(5),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusInactive, updated.Status)
		require.NotNil(t, updated.RateLimit)
		assert.Equal(t, 5, *updated.RateLimit)
		assert.Equal(t, a.Key, updated.Key)
	})

	t.Run("same name is not a conflict", func(t *testing.T) {
		_, err := m.Update(ctx, a.ID, models.KeyUpdate{Name: ptr("a")})
		assert.NoError(t, err)
	})

	t.Run("name taken", func(t *testing.T) {
		_, err := m.Update(ctx, a.ID, models.KeyUpdate{Name: ptr("b")})
		assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := m.Update(ctx, a.ID, models.KeyUpdate{Status: ptr(models.KeyStatus("paused"))})
		assert.True(t, errors.Is(err, ErrInvalidStatus))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := m.Update(ctx, "missing", models.KeyUpdate{Name: ptr("z")})
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	key, err := m.Create(ctx, "doomed", "")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, key.ID))

	_, err = m.Get(ctx, key.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(m.Delete(ctx, key.ID), store.ErrNotFound))
}
