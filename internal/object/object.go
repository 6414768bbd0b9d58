// Package object implements the per-board authoritative object store: an
// in-memory map of drawable entities with version-based last-write-wins
// semantics and dirty tracking for the object-flush pipeline.
package object

import (
	"errors"
	"sort"

	"github.com/arc-self/board-hub/internal/frame"
)

// ErrDuplicate is returned by Insert when the id already exists.
var ErrDuplicate = errors.New("object: duplicate id")

// ErrUnknown is returned by Update/Delete when the id does not exist.
var ErrUnknown = errors.New("object: unknown id")

// UpdateResult reports the outcome of Update.
type UpdateResult int

const (
	// Accepted means the update was applied and the version bumped.
	Accepted UpdateResult = iota
	// Stale means incoming_version was behind the stored version; the
	// store was left unchanged and no broadcast should occur.
	Stale
)

// Object is a per-board drawable entity.
type Object struct {
	ID        string
	BoardID   string
	Kind      string
	X, Y      float64
	W, H      *float64
	Rotation  float64
	ZIndex    int
	Props     frame.Value // always a Map, or Null if empty
	CreatedBy string
	Version   int64
}

// clone returns a deep-enough copy safe to hand out of the store (Props is
// an immutable value type, so only top-level fields need copying).
func (o Object) clone() Object {
	if o.W != nil {
		w := *o.W
		o.W = &w
	}
	if o.H != nil {
		h := *o.H
		o.H = &h
	}
	return o
}

// dirtyEntry is either a live object snapshot or a tombstone (Live=false)
// recorded for a deleted id.
type dirtyEntry struct {
	Live    bool
	Object  Object
	Version int64
}

// Store is the authoritative per-board object map. All methods assume the
// caller holds the owning board's lock (see internal/board) — Store itself
// is not safe for concurrent use.
type Store struct {
	objects  map[string]Object
	dirty    map[string]dirtyEntry
	revision int64
}

// NewStore constructs an empty object store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]Object),
		dirty:   make(map[string]dirtyEntry),
	}
}

// Revision returns the strictly monotonic counter bumped by every accepted
// mutation, usable by external callers to detect "no change since X".
func (s *Store) Revision() int64 { return s.revision }

// Insert adds a new object. Fails with ErrDuplicate if id already exists.
func (s *Store) Insert(o Object) error {
	if _, exists := s.objects[o.ID]; exists {
		return ErrDuplicate
	}
	if o.Version == 0 {
		o.Version = 1
	}
	s.objects[o.ID] = o
	s.markDirty(o.ID)
	s.revision++
	return nil
}

// Partial is the set of fields an object:update frame may carry. Nil means
// "not present in this update" (geometry fields replace wholesale when
// present; Props merges shallowly when present).
type Partial struct {
	Kind     *string
	X, Y     *float64
	W, H     *float64
	Rotation *float64
	ZIndex   *int
	Props    *frame.Value
}

// Update applies partial to the object at id if incomingVersion is not
// behind the stored version. Geometry fields replace wholesale; Props
// merges shallowly (keys in the incoming map overwrite, others survive).
// Concurrent writers never merge field-by-field across two different
// updates — only the newest serialized write is ever applied, and it wins
// wholesale over the previous value for Props shallow-merge purposes.
func (s *Store) Update(id string, p Partial, incomingVersion int64) (UpdateResult, Object, error) {
	current, exists := s.objects[id]
	if !exists {
		return Stale, Object{}, ErrUnknown
	}
	if incomingVersion < current.Version {
		return Stale, Object{}, nil
	}

	updated := current
	if p.Kind != nil {
		updated.Kind = *p.Kind
	}
	if p.X != nil {
		updated.X = *p.X
	}
	if p.Y != nil {
		updated.Y = *p.Y
	}
	if p.W != nil {
		w := *p.W
		updated.W = &w
	}
	if p.H != nil {
		h := *p.H
		updated.H = &h
	}
	if p.Rotation != nil {
		updated.Rotation = *p.Rotation
	}
	if p.ZIndex != nil {
		updated.ZIndex = *p.ZIndex
	}
	if p.Props != nil {
		updated.Props = mergeProps(current.Props, *p.Props)
	}
	updated.Version = current.Version + 1

	s.objects[id] = updated
	s.markDirty(id)
	s.revision++
	return Accepted, updated.clone(), nil
}

// mergeProps shallow-merges incoming keys over base. Either side may be
// Null (treated as an empty map). A key set explicitly to null in incoming
// is removed from the result rather than stored as null.
func mergeProps(base, incoming frame.Value) frame.Value {
	merged, _ := base.AsMap()
	if merged == nil {
		merged = map[string]frame.Value{}
	} else {
		// AsMap already copies into a fresh map.
	}
	if inc, ok := incoming.AsMap(); ok {
		for k, v := range inc {
			if v.IsNull() {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
	}
	return frame.Map(merged)
}

// Delete removes id, marking it dirty-deleted. Returns ErrUnknown if id is
// not present.
func (s *Store) Delete(id string) error {
	if _, exists := s.objects[id]; !exists {
		return ErrUnknown
	}
	delete(s.objects, id)
	s.revision++
	s.dirty[id] = dirtyEntry{Live: false, Version: s.revision}
	return nil
}

func (s *Store) markDirty(id string) {
	s.dirty[id] = dirtyEntry{Live: true, Object: s.objects[id], Version: s.revision}
}

// Get returns the current value of id.
func (s *Store) Get(id string) (Object, bool) {
	o, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.clone(), true
}

// Snapshot returns every current object sorted by (ZIndex, ID) — the stable
// iteration order new subscribers receive on join.
func (s *Store) Snapshot() []Object {
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DirtyObject is one entry returned by DrainDirty: either a live object or
// a tombstone for a deleted id.
type DirtyObject struct {
	ID      string
	Deleted bool
	Object  Object
}

// DrainDirty atomically returns and clears the current dirty set. Any
// mutation that lands on an id after the drain starts re-marks it dirty in
// the (now-empty) set, so it is picked up on the next drain rather than
// lost or raced against the snapshot just taken.
func (s *Store) DrainDirty() []DirtyObject {
	if len(s.dirty) == 0 {
		return nil
	}
	out := make([]DirtyObject, 0, len(s.dirty))
	for id, entry := range s.dirty {
		if entry.Live {
			out = append(out, DirtyObject{ID: id, Object: entry.Object})
		} else {
			out = append(out, DirtyObject{ID: id, Deleted: true})
		}
	}
	s.dirty = make(map[string]dirtyEntry)
	return out
}

// Requeue merges entries back into the dirty set, used when a flush
// transaction fails so the next tick retries the same ids.
func (s *Store) Requeue(entries []DirtyObject) {
	for _, e := range entries {
		// Only requeue if the id hasn't moved on since: a concurrent mutation
		// already re-marked it dirty (e.g. a live re-create after a delete),
		// in which case our stale copy must not overwrite it.
		if _, alreadyDirty := s.dirty[e.ID]; alreadyDirty {
			continue
		}
		if e.Deleted {
			s.dirty[e.ID] = dirtyEntry{Live: false}
		} else {
			s.dirty[e.ID] = dirtyEntry{Live: true, Object: e.Object}
		}
	}
}
