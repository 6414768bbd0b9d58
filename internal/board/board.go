// Package board implements the board coordinator: the per-board critical
// section that owns the object store, the subscriber set, and presence,
// giving every board a single total order of accepted mutations.
package board

import (
	"sort"
	"sync"

	"github.com/arc-self/board-hub/internal/object"
)

// Presence is a connected subscriber's public identity, broadcast to other
// subscribers on join/part.
type Presence struct {
	UserID      string
	DisplayName string
	Color       string
}

// Subscriber is anything the board can fan out frames to. internal/hub's
// connection type implements this; tests use lightweight fakes.
type Subscriber interface {
	ID() string
	Enqueue(data []byte) bool // false means the outbound queue overflowed
}

// Board is the coordinator for one whiteboard: its object store, the set
// of currently-subscribed connections, and their presence records. All
// mutating methods serialize through mu, which is the single concurrency
// primitive backing the per-board total-order invariant.
type Board struct {
	ID string

	mu          sync.Mutex
	objects     *object.Store
	subscribers map[string]Subscriber
	presence    map[string]Presence
	locks       map[string]string // object id -> holder user id, advisory only
	hydrated    bool
}

// New constructs an empty, not-yet-hydrated board coordinator.
func New(id string) *Board {
	return &Board{
		ID:          id,
		objects:     object.NewStore(),
		subscribers: make(map[string]Subscriber),
		presence:    make(map[string]Presence),
		locks:       make(map[string]string),
	}
}

// Hydrated reports whether Hydrate has already been run for this board.
func (b *Board) Hydrated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hydrated
}

// Hydrate loads objs (typically read from durable storage) into the store
// exactly once. Subsequent calls are no-ops — a board is hydrated from
// persistence the first time it is joined in this process's lifetime, not
// on every join.
func (b *Board) Hydrate(objs []object.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hydrated {
		return
	}
	for _, o := range objs {
		_ = b.objects.Insert(o)
	}
	// Hydration is not itself a mutation the flush pipeline needs to
	// persist back, since it is reading what is already durable.
	b.objects.DrainDirty()
	b.hydrated = true
}

// Objects exposes the underlying object store for callers that already
// hold the board lock via WithLock. Most callers should prefer the
// higher-level methods below.
func (b *Board) Objects() *object.Store { return b.objects }

// WithLock runs fn with the board's mutex held, giving the caller direct,
// serialized access to the object store for operations (dispatch handlers)
// that need to compute a broadcast target set atomically with a mutation.
func (b *Board) WithLock(fn func(objs *object.Store)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.objects)
}

// Join adds sub as a subscriber with the given presence, returning the
// current object snapshot, the other subscribers' presence, and the board
// revision — everything board:join needs to hydrate a new connection.
func (b *Board) Join(sub Subscriber, p Presence) (objs []object.Object, others []Presence, revision int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	others = make([]Presence, 0, len(b.presence))
	for _, existing := range b.presence {
		others = append(others, existing)
	}
	sort.Slice(others, func(i, j int) bool { return others[i].UserID < others[j].UserID })

	b.subscribers[sub.ID()] = sub
	b.presence[sub.ID()] = p

	return b.objects.Snapshot(), others, b.objects.Revision()
}

// Part removes sub from the subscriber and presence sets. Returns the
// presence record that was removed, and whether it was present at all.
func (b *Board) Part(connID string) (Presence, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.presence[connID]
	delete(b.presence, connID)
	delete(b.subscribers, connID)
	return p, ok
}

// Lock records an advisory hold on objectID by userID, returning the
// previous holder (if any). It never consults the object store and never
// blocks object:update/object:delete — it is a hint for clients to render
// a "someone is editing this" affordance, nothing more.
func (b *Board) Lock(objectID, userID string) (previousHolder string, hadPrevious bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.locks[objectID]
	b.locks[objectID] = userID
	return prev, ok
}

// Unlock clears an advisory hold, but only if userID is the current
// holder — a stale unlock from a connection that already lost the hold
// (e.g. after a reconnect) is a no-op rather than stealing someone else's
// lock.
func (b *Board) Unlock(objectID, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locks[objectID] != userID {
		return false
	}
	delete(b.locks, objectID)
	return true
}

// MemberCount returns the number of currently-subscribed connections.
func (b *Board) MemberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Broadcast enqueues data onto every subscriber's outbound queue except
// excludeConnID (pass "" to exclude none). Returns the ids of connections
// whose outbound queue overflowed. Broadcast itself never closes a
// connection; a subscriber's Enqueue decides what overflow does.
func (b *Board) Broadcast(data []byte, excludeConnID string) (overflowed []string) {
	b.mu.Lock()
	targets := make([]Subscriber, 0, len(b.subscribers))
	for id, sub := range b.subscribers {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if !sub.Enqueue(data) {
			overflowed = append(overflowed, sub.ID())
		}
	}
	return overflowed
}

// Send enqueues data onto a single subscriber's outbound queue. Returns
// false if the subscriber is unknown or its queue overflowed.
func (b *Board) Send(connID string, data []byte) bool {
	b.mu.Lock()
	sub, ok := b.subscribers[connID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	return sub.Enqueue(data)
}
