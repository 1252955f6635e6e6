package docstore

import (
	"encoding/json"
	"reflect"
)

// jsonEqual reports whether two JSON values are equal after decoding (key order and spacing are ignored).
func jsonEqual(a, b json.RawMessage) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// contains mirrors Postgres jsonb @> for decoded values: objects match on a key subset, arrays match when every
// pattern element is contained in some element, scalars must be equal.
func contains(doc, pattern any) bool {
	switch p := pattern.(type) {
	case map[string]any:
		d, ok := doc.(map[string]any)
		if !ok {
			return false
		}
		for k, pv := range p {
			dv, ok := d[k]
			if !ok || !contains(dv, pv) {
				return false
			}
		}
		return true
	case []any:
		d, ok := doc.([]any)
		if !ok {
			return false
		}
		for _, pe := range p {
			found := false
			for _, de := range d {
				if contains(de, pe) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(doc, pattern)
	}
}

// conditionHolds reports whether every cond field equals the stored field.
func conditionHolds(stored map[string]json.RawMessage, cond map[string]json.RawMessage) bool {
	for k, want := range cond {
		got, ok := stored[k]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

// matchFilters evaluates query filters against a stored document.
func matchFilters(stored map[string]json.RawMessage, filters []Filter) (bool, error) {
	for _, f := range filters {
		got, ok := stored[f.Field]
		if !ok {
			return false, nil
		}
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return false, err
		}
		switch f.Op {
		case OpEq:
			if !jsonEqual(got, raw) {
				return false, nil
			}
		case OpArrayContains:
			var doc, pattern any
			if err := json.Unmarshal(got, &doc); err != nil {
				return false, nil
			}
			if err := json.Unmarshal(raw, &pattern); err != nil {
				return false, err
			}
			if !contains(doc, []any{pattern}) {
				return false, nil
			}
		default:
			return false, nil
		}
	}
	return true, nil
}

// containmentPattern returns the JSON object that a Postgres @> check uses for the filter.
func containmentPattern(f Filter) ([]byte, error) {
	var v any = f.Value
	if f.Op == OpArrayContains {
		v = []any{f.Value}
	}
	return json.Marshal(map[string]any{f.Field: v})
}
