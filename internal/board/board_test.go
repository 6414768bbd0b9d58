package board

import (
	"sync"
	"testing"

	"github.com/arc-self/board-hub/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	full     bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Enqueue(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.received = append(f.received, data)
	return true
}

func TestJoinReturnsSnapshotAndOthersPresence(t *testing.T) {
	b := New("board-1")
	require.NoError(t, b.Objects().Insert(object.Object{ID: "o1", BoardID: "board-1", Version: 1}))

	s1 := &fakeSub{id: "c1"}
	_, others1, _ := b.Join(s1, Presence{UserID: "u1", DisplayName: "Ann"})
	assert.Empty(t, others1)

	s2 := &fakeSub{id: "c2"}
	objs, others2, rev := b.Join(s2, Presence{UserID: "u2", DisplayName: "Bob"})
	require.Len(t, objs, 1)
	require.Len(t, others2, 1)
	assert.Equal(t, "u1", others2[0].UserID)
	assert.Equal(t, int64(1), rev) // one insert happened before this join
}

func TestPartRemovesSubscriberAndPresence(t *testing.T) {
	b := New("board-1")
	s1 := &fakeSub{id: "c1"}
	b.Join(s1, Presence{UserID: "u1"})
	assert.Equal(t, 1, b.MemberCount())

	p, ok := b.Part("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 0, b.MemberCount())
}

func TestPartUnknownConnReturnsFalse(t *testing.T) {
	b := New("board-1")
	_, ok := b.Part("ghost")
	assert.False(t, ok)
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New("board-1")
	s1 := &fakeSub{id: "c1"}
	s2 := &fakeSub{id: "c2"}
	b.Join(s1, Presence{UserID: "u1"})
	b.Join(s2, Presence{UserID: "u2"})

	overflowed := b.Broadcast([]byte("hello"), "c1")
	assert.Empty(t, overflowed)
	assert.Empty(t, s1.received)
	assert.Equal(t, [][]byte{[]byte("hello")}, s2.received)
}

func TestBroadcastReportsOverflow(t *testing.T) {
	b := New("board-1")
	s1 := &fakeSub{id: "c1", full: true}
	b.Join(s1, Presence{UserID: "u1"})

	overflowed := b.Broadcast([]byte("x"), "")
	assert.Equal(t, []string{"c1"}, overflowed)
}

func TestHydrateIsIdempotent(t *testing.T) {
	b := New("board-1")
	b.Hydrate([]object.Object{{ID: "o1", BoardID: "board-1", Version: 1}})
	assert.True(t, b.Hydrated())

	// Second hydrate call must not duplicate or error.
	b.Hydrate([]object.Object{{ID: "o1", BoardID: "board-1", Version: 1}})
	assert.Len(t, b.Objects().Snapshot(), 1)
}

func TestRegistryGetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	b1 := r.GetOrCreate("board-1")
	b2 := r.GetOrCreate("board-1")
	assert.Same(t, b1, b2)
	assert.Len(t, r.All(), 1)
}

func TestRegistryDeleteEvictsBoard(t *testing.T) {
	r := NewRegistry()
	b1 := r.GetOrCreate("board-1")
	r.Delete("board-1")
	b2 := r.GetOrCreate("board-1")
	assert.NotSame(t, b1, b2)
}

func TestLockReturnsPreviousHolder(t *testing.T) {
	b := New("board-1")
	_, had := b.Lock("o1", "u1")
	assert.False(t, had)

	prev, had := b.Lock("o1", "u2")
	assert.True(t, had)
	assert.Equal(t, "u1", prev)
}

func TestUnlockOnlySucceedsForCurrentHolder(t *testing.T) {
	b := New("board-1")
	b.Lock("o1", "u1")

	assert.False(t, b.Unlock("o1", "u2"))
	assert.True(t, b.Unlock("o1", "u1"))
	// Already unlocked: a second unlock by the original holder is a no-op.
	assert.False(t, b.Unlock("o1", "u1"))
}
