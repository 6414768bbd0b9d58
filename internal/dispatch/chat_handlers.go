package dispatch

import (
	"context"

	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/frame"
)

// dispatchChat handles the "chat" prefix: message and history. This is a
// supplemental, non-core feature riding the same dispatch surface as
// everything else.
func (d *Dispatcher) dispatchChat(ctx context.Context, connID, boardID, userID string, f frame.Frame) []frame.Frame {
	switch f.Syscall {
	case "chat:message":
		return d.chatMessage(ctx, connID, boardID, userID, f)
	case "chat:history":
		return d.chatHistory(ctx, boardID, f)
	default:
		return []frame.Frame{d.errorFrame(f, CodeUnknownSyscall, "unknown chat syscall: "+f.Syscall)}
	}
}

func chatMessageToValue(m dbstore.ChatMessageRow) frame.Value {
	return frame.Map(map[string]frame.Value{
		"id":         frame.String(m.ID),
		"board_id":   frame.String(m.BoardID),
		"user_id":    frame.String(m.UserID),
		"body":       frame.String(m.Body),
		"created_at": frame.Number(float64(m.CreatedAt.UnixMilli())),
	})
}

func (d *Dispatcher) chatMessage(ctx context.Context, connID, boardID, userID string, f frame.Frame) []frame.Frame {
	bodyVal, _ := f.Payload.Get("body")
	body, _ := bodyVal.AsString()
	if body == "" {
		return []frame.Frame{d.errorFrame(f, CodeMalformedFrame, "body is required")}
	}

	m := dbstore.ChatMessageRow{ID: d.newID(), BoardID: boardID, UserID: userID, Body: body}
	if err := d.ChatDB.InsertMessage(ctx, m); err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to store chat message")}
	}

	b := d.Boards.GetOrCreate(boardID)
	d.broadcast(b, d.itemFrame(f, chatMessageToValue(m)), "")
	return []frame.Frame{d.doneFrame(f, frame.Map(map[string]frame.Value{"id": frame.String(m.ID)}))}
}

func (d *Dispatcher) chatHistory(ctx context.Context, boardID string, f frame.Frame) []frame.Frame {
	limit := 200
	if limitVal, ok := f.Payload.Get("limit"); ok {
		if n, ok := limitVal.AsNumber(); ok && n > 0 {
			limit = int(n)
		}
	}

	rows, err := d.ChatDB.History(ctx, boardID, limit)
	if err != nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownBoard, "failed to load chat history")}
	}

	out := make([]frame.Frame, 0, len(rows)+1)
	for _, m := range rows {
		out = append(out, d.itemFrame(f, chatMessageToValue(m)))
	}
	out = append(out, d.doneFrame(f, frame.Map(map[string]frame.Value{"count": frame.Number(float64(len(rows)))})))
	return out
}
