package dispatch

import (
	"context"

	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/object"
)

// dispatchObject handles the "object" prefix: create, update, delete, and
// the advisory lock/unlock hint. Every accepted mutation is broadcast from
// inside the board's lock scope so the snapshot a concurrently-joining
// connection receives and the broadcast a concurrently-mutating connection
// triggers never interleave out of order.
func (d *Dispatcher) dispatchObject(ctx context.Context, connID, boardID, userID string, f frame.Frame) []frame.Frame {
	switch f.Syscall {
	case "object:create":
		return d.objectCreate(connID, boardID, userID, f)
	case "object:update":
		return d.objectUpdate(connID, boardID, f)
	case "object:delete":
		return d.objectDelete(connID, boardID, f)
	case "object:lock":
		return d.objectLock(boardID, userID, f)
	case "object:unlock":
		return d.objectUnlock(boardID, userID, f)
	default:
		return []frame.Frame{d.errorFrame(f, CodeUnknownSyscall, "unknown object syscall: "+f.Syscall)}
	}
}

// objectLock and objectUnlock are advisory hints only — they never gate
// object:update/object:delete, which any subscriber can still issue
// regardless of lock state. They exist so clients can render "someone is
// editing this" without a server-enforced locking protocol.
func (d *Dispatcher) objectLock(boardID, userID string, f frame.Frame) []frame.Frame {
	idVal, _ := f.Payload.Get("id")
	id, _ := idVal.AsString()
	if id == "" {
		return []frame.Frame{d.errorFrame(f, CodeUnknownObject, "id is required")}
	}

	b := d.Boards.GetOrCreate(boardID)
	b.Lock(id, userID)

	d.broadcast(b, d.itemFrame(f, frame.Map(map[string]frame.Value{
		"id":      frame.String(id),
		"user_id": frame.String(userID),
	})), "")
	return []frame.Frame{d.doneFrame(f, frame.Null)}
}

func (d *Dispatcher) objectUnlock(boardID, userID string, f frame.Frame) []frame.Frame {
	idVal, _ := f.Payload.Get("id")
	id, _ := idVal.AsString()
	if id == "" {
		return []frame.Frame{d.errorFrame(f, CodeUnknownObject, "id is required")}
	}

	b := d.Boards.GetOrCreate(boardID)
	b.Unlock(id, userID)

	d.broadcast(b, d.itemFrame(f, frame.Map(map[string]frame.Value{
		"id":      frame.String(id),
		"user_id": frame.String(userID),
	})), "")
	return []frame.Frame{d.doneFrame(f, frame.Null)}
}

func (d *Dispatcher) objectCreate(connID, boardID, userID string, f frame.Frame) []frame.Frame {
	b := d.Boards.GetOrCreate(boardID)

	kindVal, _ := f.Payload.Get("kind")
	kind, _ := kindVal.AsString()
	x, _ := getNumber(f.Payload, "x")
	y, _ := getNumber(f.Payload, "y")
	rotation, _ := getNumber(f.Payload, "rotation")
	props, hasProps := f.Payload.Get("props")
	if !hasProps {
		props = frame.Map(map[string]frame.Value{})
	}

	o := object.Object{
		ID:        d.newID(),
		BoardID:   boardID,
		Kind:      kind,
		X:         x,
		Y:         y,
		Rotation:  rotation,
		Props:     props,
		CreatedBy: userID,
	}
	if w, ok := getNumber(f.Payload, "w"); ok {
		o.W = &w
	}
	if h, ok := getNumber(f.Payload, "h"); ok {
		o.H = &h
	}

	var created object.Object
	b.WithLock(func(objs *object.Store) {
		snapshot := objs.Snapshot()
		maxZ := 0
		if len(snapshot) > 0 {
			maxZ = snapshot[len(snapshot)-1].ZIndex
		}
		o.ZIndex = maxZ + 1
		_ = objs.Insert(o)
		created, _ = objs.Get(o.ID)
	})

	// object:created is broadcast to every subscriber including the sender,
	// so the sender can reconcile its optimistic temp id against the
	// request's parent-id.
	createdFrame := d.itemFrame(f, objectToValue(created))
	createdFrame.Syscall = "object:created"
	d.broadcast(b, createdFrame, "")
	return []frame.Frame{d.doneFrame(f, frame.Map(map[string]frame.Value{"id": frame.String(created.ID)}))}
}

func (d *Dispatcher) objectUpdate(connID, boardID string, f frame.Frame) []frame.Frame {
	b := d.Boards.GetOrCreate(boardID)

	idVal, _ := f.Payload.Get("id")
	id, _ := idVal.AsString()
	if id == "" {
		return []frame.Frame{d.errorFrame(f, CodeUnknownObject, "id is required")}
	}
	versionVal, _ := f.Payload.Get("version")
	version, _ := versionVal.AsNumber()

	var p object.Partial
	if kindVal, ok := f.Payload.Get("kind"); ok {
		s, _ := kindVal.AsString()
		p.Kind = &s
	}
	if v, ok := getNumber(f.Payload, "x"); ok {
		p.X = &v
	}
	if v, ok := getNumber(f.Payload, "y"); ok {
		p.Y = &v
	}
	if v, ok := getNumber(f.Payload, "w"); ok {
		p.W = &v
	}
	if v, ok := getNumber(f.Payload, "h"); ok {
		p.H = &v
	}
	if v, ok := getNumber(f.Payload, "rotation"); ok {
		p.Rotation = &v
	}
	if v, ok := getNumber(f.Payload, "z"); ok {
		zi := int(v)
		p.ZIndex = &zi
	}
	if propsVal, ok := f.Payload.Get("props"); ok {
		p.Props = &propsVal
	}

	var (
		result  object.UpdateResult
		updated object.Object
		err     error
	)
	b.WithLock(func(objs *object.Store) {
		result, updated, err = objs.Update(id, p, int64(version))
	})

	if err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownObject, "unknown object id")}
	}
	if result == object.Stale {
		return []frame.Frame{d.doneFrame(f, frame.Map(map[string]frame.Value{"stale": frame.Bool(true)}))}
	}

	// object:updated broadcasts to all subscribers, sender included — unlike
	// the ephemeral cursor/drag syscalls, which explicitly exclude it.
	updatedFrame := d.itemFrame(f, objectToValue(updated))
	updatedFrame.Syscall = "object:updated"
	d.broadcast(b, updatedFrame, "")
	return []frame.Frame{d.doneFrame(f, frame.Map(map[string]frame.Value{
		"id":      frame.String(updated.ID),
		"version": frame.Number(float64(updated.Version)),
	}))}
}

func (d *Dispatcher) objectDelete(connID, boardID string, f frame.Frame) []frame.Frame {
	b := d.Boards.GetOrCreate(boardID)

	idVal, _ := f.Payload.Get("id")
	id, _ := idVal.AsString()

	var err error
	b.WithLock(func(objs *object.Store) {
		err = objs.Delete(id)
	})
	if err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownObject, "unknown object id")}
	}

	d.broadcast(b, d.itemFrame(f, frame.Map(map[string]frame.Value{"id": frame.String(id)})), "")
	return []frame.Frame{d.doneFrame(f, frame.Null)}
}

func getNumber(v frame.Value, key string) (float64, bool) {
	val, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return val.AsNumber()
}
