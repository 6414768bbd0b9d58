package board

import "sync"

// Registry owns the set of boards currently live in process memory. Boards
// are created lazily on first join and are only evicted by Delete
// (board:delete) — the target scale is a bounded working set of boards,
// not an LRU cache.
type Registry struct {
	mu     sync.Mutex
	boards map[string]*Board
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{boards: make(map[string]*Board)}
}

// GetOrCreate returns the in-memory Board for id, creating (but not
// hydrating) it if this is the first reference this process has seen.
// Callers must still call Hydrate before first use if b.Hydrated() is
// false.
func (r *Registry) GetOrCreate(id string) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[id]
	if !ok {
		b = New(id)
		r.boards[id] = b
	}
	return b
}

// All returns every board currently held in the registry, used by the
// object-flush pipeline to iterate every board's dirty set each tick.
func (r *Registry) All() []*Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Board, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, b)
	}
	return out
}

// Delete evicts a board from memory, used by board:delete after the
// durable row is removed. A board with live subscribers is evicted
// anyway — board:delete is owner-initiated and its callers are expected
// to have already parted.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, id)
}
