package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "data", "obs.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertSelectAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	observed := time.Date(2025, time.April, 13, 15, 30, 0, 0, time.UTC)
	submitted := time.Date(2025, time.April, 13, 16, 0, 0, 123, time.UTC)

	require.NoError(t, store.Insert(ctx, observation.Observation{
		ID: "a", UserID: "42", MediaRef: "p1", MediaKind: observation.MediaImage,
		ObservedAt: observed, Latitude: ptr(43.222), Longitude: ptr(76.8512),
		FullName: ptr("Айгерим"), SubmittedAt: submitted,
	}))
	require.NoError(t, store.Insert(ctx, observation.Observation{
		ID: "b", UserID: "42", MediaRef: "v2", MediaKind: observation.MediaVideo,
		ObservedAt: observed, Address: ptr("Алматы, парк"), SubmittedAt: submitted.Add(time.Second),
	}))

	rows, err := store.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, observation.MediaImage, rows[0].MediaKind)
	assert.True(t, rows[0].ObservedAt.Equal(observed))
	assert.True(t, rows[0].SubmittedAt.Equal(submitted))
	assert.Equal(t, 43.222, *rows[0].Latitude)
	assert.Equal(t, 76.8512, *rows[0].Longitude)
	assert.Nil(t, rows[0].Address)
	assert.Equal(t, "Айгерим", *rows[0].FullName)

	assert.Equal(t, "v2", rows[1].MediaRef)
	assert.Nil(t, rows[1].Latitude)
	assert.Equal(t, "Алматы, парк", *rows[1].Address)
	assert.Nil(t, rows[1].FullName)
}

func TestInsertIsIdempotentByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	o := observation.Observation{ID: "same", UserID: "1", MediaRef: "p", Address: ptr("x")}

	require.NoError(t, store.Insert(ctx, o))
	require.NoError(t, store.Insert(ctx, o))

	rows, err := store.SelectAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInsertAssignsIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, observation.Observation{UserID: "1", MediaRef: "p", Address: ptr("x")}))

	rows, err := store.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].ID)
	assert.False(t, rows[0].SubmittedAt.IsZero())
}

func TestInsertRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	err := store.Insert(context.Background(), observation.Observation{UserID: "1", MediaRef: "p"})
	assert.ErrorIs(t, err, observation.ErrLocationRequired)
}

func TestConcurrentInserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Insert(ctx, observation.Observation{UserID: "1", MediaRef: "p", Address: ptr("x")}))
		}()
	}
	wg.Wait()

	rows, err := store.SelectAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.db")
	ctx := context.Background()

	store, err := NewStore(ctx, path, time.UTC)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, observation.Observation{UserID: "1", MediaRef: "p", Address: ptr("x")}))
	require.NoError(t, store.Close())

	store, err = NewStore(ctx, path, time.UTC)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.SelectAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, path, store.Path())
}

func TestOpenFailure(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "x.db"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sqlite")
}
