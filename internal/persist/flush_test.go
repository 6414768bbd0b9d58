package persist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/object"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	upserts []dbstore.ObjectRow
	deletes []string
	failing bool
}

func (f *fakeObjectStore) UpsertObjects(ctx context.Context, rows []dbstore.ObjectRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("boom")
	}
	f.upserts = append(f.upserts, rows...)
	return nil
}

func (f *fakeObjectStore) DeleteObjects(ctx context.Context, boardID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("boom")
	}
	f.deletes = append(f.deletes, ids...)
	return nil
}

func (f *fakeObjectStore) ListObjects(ctx context.Context, boardID string) ([]dbstore.ObjectRow, error) {
	return nil, nil
}

func TestFlushOncePersistsDirtyObjects(t *testing.T) {
	reg := board.NewRegistry()
	b := reg.GetOrCreate("board-1")
	require.NoError(t, b.Objects().Insert(object.Object{ID: "o1", BoardID: "board-1", Version: 1}))

	store := &fakeObjectStore{}
	f := NewFlusher(reg, store, 0, zap.NewNop(), nil)
	f.FlushOnce(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "o1", store.upserts[0].ID)
}

func TestFlushOnceRequeuesOnFailure(t *testing.T) {
	reg := board.NewRegistry()
	b := reg.GetOrCreate("board-1")
	require.NoError(t, b.Objects().Insert(object.Object{ID: "o1", BoardID: "board-1", Version: 1}))

	store := &fakeObjectStore{failing: true}
	f := NewFlusher(reg, store, 0, zap.NewNop(), nil)
	f.FlushOnce(context.Background())

	// Nothing persisted on failure...
	store.mu.Lock()
	assert.Empty(t, store.upserts)
	store.mu.Unlock()

	// ...and the dirty entry must still be there for the next tick.
	store.failing = false
	f.FlushOnce(context.Background())
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.upserts, 1)
}

func TestFlushOnceSkipsCleanBoards(t *testing.T) {
	reg := board.NewRegistry()
	reg.GetOrCreate("board-1") // never mutated

	store := &fakeObjectStore{}
	f := NewFlusher(reg, store, 0, zap.NewNop(), nil)
	f.FlushOnce(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.upserts)
	assert.Empty(t, store.deletes)
}

func TestFlushOnceDeletesTombstones(t *testing.T) {
	reg := board.NewRegistry()
	b := reg.GetOrCreate("board-1")
	require.NoError(t, b.Objects().Insert(object.Object{ID: "o1", BoardID: "board-1", Version: 1}))

	store := &fakeObjectStore{}
	f := NewFlusher(reg, store, 0, zap.NewNop(), nil)
	f.FlushOnce(context.Background()) // flush the insert first

	require.NoError(t, b.Objects().Delete("o1"))
	f.FlushOnce(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"o1"}, store.deletes)
}
