package dispatch

import "github.com/arc-self/board-hub/internal/frame"

// dispatchEphemeral handles "cursor" and "drag" prefixed frames: broadcast
// verbatim to every other subscriber, sender excluded. The sender receives
// no response at all — no item, no done. Loggable already excludes these
// prefixes before Dispatch enqueues to the frame-log, so nothing here needs
// to worry about persistence.
func (d *Dispatcher) dispatchEphemeral(connID, boardID string, f frame.Frame) []frame.Frame {
	b := d.Boards.GetOrCreate(boardID)

	echoed := f
	echoed.ID = d.newID()
	echoed.ParentID = f.ID
	echoed.TsMillis = d.now()
	if f.Syscall == "cursor:move" {
		echoed.Syscall = "cursor:moved"
	}

	d.broadcast(b, echoed, connID)
	return nil
}
