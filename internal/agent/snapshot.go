package agent

import (
	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/object"
)

// objectSummary is the compact projection of an object the model sees: id,
// kind, position, size, rotation, z, and salient props, never the full wire
// payload.
type objectSummary struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w,omitempty"`
	H        float64 `json:"h,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Z        int     `json:"z"`
	Text     string  `json:"text,omitempty"`
	Color    string  `json:"color,omitempty"`
}

func summarize(o object.Object) objectSummary {
	s := objectSummary{ID: o.ID, Kind: o.Kind, X: o.X, Y: o.Y, Rotation: o.Rotation, Z: o.ZIndex}
	if o.W != nil {
		s.W = *o.W
	}
	if o.H != nil {
		s.H = *o.H
	}
	if props, ok := o.Props.AsMap(); ok {
		if v, ok := props["text"]; ok {
			s.Text, _ = v.AsString()
		}
		if v, ok := props["color"]; ok {
			s.Color, _ = v.AsString()
		}
	}
	return s
}

// boardState snapshots a board's current objects into the compact form fed
// to the model, both as the loop's initial context and as the getBoardState
// tool's result.
func boardState(b *board.Board) []objectSummary {
	var snapshot []object.Object
	b.WithLock(func(objs *object.Store) {
		snapshot = objs.Snapshot()
	})
	out := make([]objectSummary, 0, len(snapshot))
	for _, o := range snapshot {
		out = append(out, summarize(o))
	}
	return out
}
