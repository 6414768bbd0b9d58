package agent

import (
	"fmt"

	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/llm"
)

func numberSchema() map[string]any { return map[string]any{"type": "number"} }
func stringSchema() map[string]any { return map[string]any{"type": "string"} }

// toolCatalog returns the tool definitions offered to the provider every
// round. Every mutating tool is a thin translation to an object:* syscall —
// there is no generic "execute" tool and no privileged bypass of the normal
// object store semantics.
func toolCatalog() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "getBoardState",
			Description: "Return the current objects on the board, their kind, position, size, rotation, z-index, and salient properties.",
			Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "createShape",
			Description: "Create a rectangle, ellipse, or line shape.",
			Schema: objectSchema(map[string]any{
				"kind":  stringSchema(),
				"color": stringSchema(),
			}, "kind", "x", "y"),
		},
		{
			Name:        "createStickyNote",
			Description: "Create a sticky note with text.",
			Schema: objectSchema(map[string]any{
				"text":  stringSchema(),
				"color": stringSchema(),
			}, "x", "y", "text"),
		},
		{
			Name:        "createFrame",
			Description: "Create a labeled frame container.",
			Schema: objectSchema(map[string]any{
				"title": stringSchema(),
			}, "x", "y", "w", "h"),
		},
		{
			Name:        "createConnector",
			Description: "Create a connector line between two existing object ids.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"from_id": stringSchema(),
					"to_id":   stringSchema(),
				},
				"required": []string{"from_id", "to_id"},
			},
		},
		{
			Name:        "moveObject",
			Description: "Move an existing object to a new position.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringSchema(), "x": numberSchema(), "y": numberSchema(), "version": numberSchema(),
				},
				"required": []string{"id", "x", "y", "version"},
			},
		},
		{
			Name:        "resizeObject",
			Description: "Resize an existing object.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringSchema(), "w": numberSchema(), "h": numberSchema(), "version": numberSchema(),
				},
				"required": []string{"id", "w", "h", "version"},
			},
		},
		{
			Name:        "updateText",
			Description: "Update the text content of a sticky note or label.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringSchema(), "text": stringSchema(), "version": numberSchema(),
				},
				"required": []string{"id", "text", "version"},
			},
		},
		{
			Name:        "changeColor",
			Description: "Change the fill color of an existing object.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringSchema(), "color": stringSchema(), "version": numberSchema(),
				},
				"required": []string{"id", "color", "version"},
			},
		},
	}
}

func objectSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"x": numberSchema(), "y": numberSchema(), "w": numberSchema(), "h": numberSchema(),
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// translateToolCall converts a tool call's validated arguments into the
// object:* frame the same dispatch surface a human client uses would
// receive. getBoardState is not a mutation and is handled separately by the
// caller.
func translateToolCall(call llm.ToolCall) (frame.Frame, error) {
	args := call.Arguments

	switch call.Name {
	case "createShape":
		kind := str(args, "kind")
		if kind == "" {
			kind = "rect"
		}
		return buildCreate(args, kind, map[string]any{"color": str(args, "color")}), nil
	case "createStickyNote":
		return buildCreate(args, "sticky_note", map[string]any{"text": str(args, "text"), "color": str(args, "color")}), nil
	case "createFrame":
		return buildCreate(args, "frame", map[string]any{"title": str(args, "title")}), nil
	case "createConnector":
		fromID, _ := args["from_id"].(string)
		toID, _ := args["to_id"].(string)
		return frame.Frame{
			Syscall: "object:create",
			Payload: frame.Map(map[string]frame.Value{
				"kind": frame.String("connector"),
				"x":    frame.Number(0),
				"y":    frame.Number(0),
				"props": frame.Map(map[string]frame.Value{
					"from_id": frame.String(fromID),
					"to_id":   frame.String(toID),
				}),
			}),
		}, nil
	case "moveObject":
		return buildUpdate(args, map[string]frame.Value{"x": num(args, "x"), "y": num(args, "y")}), nil
	case "resizeObject":
		return buildUpdate(args, map[string]frame.Value{"w": num(args, "w"), "h": num(args, "h")}), nil
	case "updateText":
		text, _ := args["text"].(string)
		return buildUpdate(args, map[string]frame.Value{
			"props": frame.Map(map[string]frame.Value{"text": frame.String(text)}),
		}), nil
	case "changeColor":
		color, _ := args["color"].(string)
		return buildUpdate(args, map[string]frame.Value{
			"props": frame.Map(map[string]frame.Value{"color": frame.String(color)}),
		}), nil
	default:
		return frame.Frame{}, fmt.Errorf("agent: unknown tool %q", call.Name)
	}
}

func buildCreate(args map[string]any, kind string, props map[string]any) frame.Frame {
	propsValue := map[string]frame.Value{}
	for k, v := range props {
		if s, ok := v.(string); ok && s != "" {
			propsValue[k] = frame.String(s)
		}
	}
	payload := map[string]frame.Value{
		"kind":  frame.String(kind),
		"x":     num(args, "x"),
		"y":     num(args, "y"),
		"props": frame.Map(propsValue),
	}
	if w, ok := args["w"]; ok {
		if f, ok := w.(float64); ok {
			payload["w"] = frame.Number(f)
		}
	}
	if h, ok := args["h"]; ok {
		if f, ok := h.(float64); ok {
			payload["h"] = frame.Number(f)
		}
	}
	return frame.Frame{Syscall: "object:create", Payload: frame.Map(payload)}
}

func buildUpdate(args map[string]any, fields map[string]frame.Value) frame.Frame {
	id, _ := args["id"].(string)
	version, _ := args["version"].(float64)
	payload := map[string]frame.Value{
		"id":      frame.String(id),
		"version": frame.Number(version),
	}
	for k, v := range fields {
		payload[k] = v
	}
	return frame.Frame{Syscall: "object:update", Payload: frame.Map(payload)}
}

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func num(args map[string]any, key string) frame.Value {
	f, _ := args[key].(float64)
	return frame.Number(f)
}
