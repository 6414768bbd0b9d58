package dispatch

import (
	"context"
	"errors"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/object"
)

// objectToValue projects an object into the wire payload shape used in
// snapshot items and object:created/object:updated broadcasts.
func objectToValue(o object.Object) frame.Value {
	m := map[string]frame.Value{
		"id":        frame.String(o.ID),
		"kind":      frame.String(o.Kind),
		"x":         frame.Number(o.X),
		"y":         frame.Number(o.Y),
		"rotation":  frame.Number(o.Rotation),
		"z":         frame.Number(float64(o.ZIndex)),
		"created_by": frame.String(o.CreatedBy),
		"version":   frame.Number(float64(o.Version)),
		"props":     o.Props,
	}
	if o.W != nil {
		m["w"] = frame.Number(*o.W)
	}
	if o.H != nil {
		m["h"] = frame.Number(*o.H)
	}
	return frame.Map(m)
}

func presenceToValue(p board.Presence) frame.Value {
	return frame.Map(map[string]frame.Value{
		"user_id":      frame.String(p.UserID),
		"display_name": frame.String(p.DisplayName),
		"color":        frame.String(p.Color),
	})
}

// dispatchBoard handles the "board" prefix: join, part, and the
// supplemental create/list/delete CRUD operations.
func (d *Dispatcher) dispatchBoard(ctx context.Context, sub board.Subscriber, userID string, f frame.Frame) []frame.Frame {
	switch f.Syscall {
	case "board:join":
		return d.boardJoin(ctx, sub, userID, f)
	case "board:part":
		return d.boardPart(sub.ID(), f)
	case "board:create":
		return d.boardCreate(ctx, userID, f)
	case "board:list":
		return d.boardList(ctx, userID, f)
	case "board:delete":
		return d.boardDelete(ctx, userID, f)
	default:
		return []frame.Frame{d.errorFrame(f, CodeUnknownSyscall, "unknown board syscall: "+f.Syscall)}
	}
}

func (d *Dispatcher) boardJoin(ctx context.Context, sub board.Subscriber, userID string, f frame.Frame) []frame.Frame {
	boardID, _ := f.Payload.Get("board_id")
	id, _ := boardID.AsString()
	if id == "" {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "board_id is required")}
	}

	// internal/hub resolves the session (display_name, color) via the auth
	// collaborator before forwarding board:join, and attaches it here so
	// presence broadcasts carry a name instead of a bare user id.
	displayNameVal, _ := f.Payload.Get("display_name")
	displayName, _ := displayNameVal.AsString()
	colorVal, _ := f.Payload.Get("color")
	color, _ := colorVal.AsString()

	row, err := d.BoardDB.GetBoard(ctx, id)
	if errors.Is(err, dbstore.ErrBoardNotFound) {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "board does not exist")}
	}
	if err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to look up board")}
	}

	if !row.IsPublic {
		authorized, err := d.ACL.IsAuthorized(ctx, id, userID)
		if err != nil || !authorized {
			return []frame.Frame{d.errorFrame(f, CodeForbidden, "not authorized for board")}
		}
	}

	b := d.Boards.GetOrCreate(id)
	if !b.Hydrated() {
		rows, err := d.ObjectDB.ListObjects(ctx, id)
		if err == nil {
			objs := make([]object.Object, 0, len(rows))
			for _, r := range rows {
				var props frame.Value
				_ = props.UnmarshalJSON(r.Props)
				objs = append(objs, dbstore.FromRow(r, props))
			}
			b.Hydrate(objs)
		}
	}

	presence := board.Presence{UserID: userID, DisplayName: displayName, Color: color}
	snapshot, others, revision := b.Join(sub, presence)

	out := make([]frame.Frame, 0, len(snapshot)+len(others)+1)
	for _, o := range snapshot {
		out = append(out, d.itemFrame(f, objectToValue(o)))
	}
	for _, p := range others {
		out = append(out, d.itemFrame(f, presenceToValue(p)))
	}
	out = append(out, d.doneFrame(f, frame.Map(map[string]frame.Value{
		"object_count": frame.Number(float64(len(snapshot))),
		"member_count": frame.Number(float64(b.MemberCount())),
		"board_revision": frame.Number(float64(revision)),
	})))

	d.broadcast(b, d.itemFrame(frame.Frame{ID: d.newID(), Syscall: "board:presence"}, presenceToValue(presence)), sub.ID())
	return out
}

func (d *Dispatcher) boardPart(connID string, f frame.Frame) []frame.Frame {
	b := d.Boards.GetOrCreate(f.BoardID)
	p, ok := b.Part(connID)
	if ok {
		d.broadcast(b, d.itemFrame(frame.Frame{ID: d.newID(), Syscall: "board:presence_removed"}, presenceToValue(p)), connID)
	}
	return []frame.Frame{d.doneFrame(f, frame.Null)}
}

func (d *Dispatcher) boardCreate(ctx context.Context, userID string, f frame.Frame) []frame.Frame {
	name, _ := f.Payload.Get("name")
	nameStr, _ := name.AsString()
	isPublicVal, _ := f.Payload.Get("is_public")
	isPublic, _ := isPublicVal.AsBool()

	id := d.newID()
	row := dbstore.BoardRow{ID: id, Name: nameStr, OwnerID: userID, IsPublic: isPublic}
	if err := d.BoardDB.CreateBoard(ctx, row); err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to create board")}
	}
	return []frame.Frame{d.doneFrame(f, frame.Map(map[string]frame.Value{"id": frame.String(id)}))}
}

func boardRowToValue(row dbstore.BoardRow) frame.Value {
	return frame.Map(map[string]frame.Value{
		"id":        frame.String(row.ID),
		"name":      frame.String(row.Name),
		"owner_id":  frame.String(row.OwnerID),
		"is_public": frame.Bool(row.IsPublic),
	})
}

func (d *Dispatcher) boardList(ctx context.Context, userID string, f frame.Frame) []frame.Frame {
	rows, err := d.BoardDB.ListBoardsForUser(ctx, userID)
	if err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to list boards")}
	}

	out := make([]frame.Frame, 0, len(rows)+1)
	for _, row := range rows {
		out = append(out, d.itemFrame(f, boardRowToValue(row)))
	}
	out = append(out, d.doneFrame(f, frame.Map(map[string]frame.Value{"count": frame.Number(float64(len(rows)))})))
	return out
}

func (d *Dispatcher) boardDelete(ctx context.Context, userID string, f frame.Frame) []frame.Frame {
	idVal, _ := f.Payload.Get("id")
	id, _ := idVal.AsString()
	if id == "" {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "id is required")}
	}

	err := d.BoardDB.DeleteBoard(ctx, id, userID)
	switch {
	case errors.Is(err, dbstore.ErrBoardNotFound):
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "board does not exist")}
	case errors.Is(err, dbstore.ErrNotOwner):
		return []frame.Frame{d.errorFrame(f, CodeForbidden, "only the owner may delete this board")}
	case err != nil:
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to delete board")}
	}

	d.Boards.Delete(id)
	return []frame.Frame{d.doneFrame(f, frame.Null)}
}
