// Package vidhi mines procedures from recurring tool-call n-grams and selects
// them per query with Thompson sampling.
package vidhi

// Tool arguments are JSON values as decoded by encoding/json: nil, bool,
// float64, string, []any and map[string]any. Equality is defined explicitly
// over that shape — language defaults are not trusted for nested values.

// deepEqual compares two decoded JSON values structurally.
func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, present := bv[k]
			if !present || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		// Integers arriving from in-process callers rather than JSON decoding.
		switch av := a.(type) {
		case int:
			if bv, ok := b.(int); ok {
				return av == bv
			}
			if bv, ok := b.(float64); ok {
				return float64(av) == bv
			}
		}
		return false
	}
}

// valueType maps a JSON value to its schema type name. Mixed types across
// instances collapse to "string".
func valueType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}
