package stm

import "encoding/json"

// decodeJSON unmarshals raw backend bytes into the engine's document representation: the
// encoding/json decode target `any` already gives us the spec's tagged union (nil, bool,
// float64, string, []any, map[string]any) for free, so the engine works in terms of plain `any`
// rather than a hand-rolled sum type.
func decodeJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// cloneJSON deep-copies a decoded JSON value so that cached reads, write-set plans, and caller
// inputs never alias the same map/slice.
func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, val := range t {
			c[k] = cloneJSON(val)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, val := range t {
			c[i] = cloneJSON(val)
		}
		return c
	default:
		// nil, bool, float64, string, json.Number, etc. are all immutable value types.
		return v
	}
}
