package frame

import "encoding/json"

// MarshalJSON lets a Value round-trip through the JSONB columns the
// durable store uses for object props and frame payloads — a separate
// concern from the binary wire codec, which transports frames between the
// hub and connections.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNull:
		return json.Marshal(nil)
	case kindBool:
		return json.Marshal(v.b)
	case kindNumber:
		return json.Marshal(v.n)
	case kindString:
		return json.Marshal(v.s)
	case kindArray:
		return json.Marshal(v.arr)
	case kindMap:
		m := make(map[string]Value, len(v.pairs))
		for _, p := range v.pairs {
			m[p.key] = p.val
		}
		return json.Marshal(m)
	default:
		return json.Marshal(nil)
	}
}

// UnmarshalJSON decodes a JSON value into the recursive Value sum type.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case string:
		return String(x)
	case []any:
		vs := make([]Value, len(x))
		for i, e := range x {
			vs[i] = fromAny(e)
		}
		return Value{kind: kindArray, arr: vs}
	case map[string]any:
		v := Value{kind: kindMap}
		for k, e := range x {
			v.pairs = append(v.pairs, pair{key: k, val: fromAny(e)})
		}
		return v
	default:
		return Null
	}
}
