// Package compare implements structural equality for record field values
// coming from heterogeneous stores. A relational driver hands back int64,
// float64, []byte or time.Time; a document store decoded through JSON hands
// back float64, string, map[string]any and []any. Values are normalized
// before comparison so the same logical value is never reported as divergent
// just because it crossed a different driver.
package compare

import (
	"sort"
	"time"
)

// Equal reports deep structural equality of two field values. Maps compare
// order-insensitively, slices order-sensitively, and numeric types compare
// by value across int/float representations.
func Equal(a, b any) bool {
	return deepEqual(normalize(a), normalize(b))
}

// DiffFields returns the sorted list of field names whose values differ
// between the two records, over the symmetric union of their keys. A key
// present on only one side counts as a difference. A nil value and a missing
// key are the same logical absence: an SQL NULL column and a field that does
// not exist on a document must not diverge from each other.
func DiffFields(primary, secondary map[string]any) []string {
	fields := make(map[string]struct{}, len(primary)+len(secondary))
	for k := range primary {
		fields[k] = struct{}{}
	}
	for k := range secondary {
		fields[k] = struct{}{}
	}

	var diff []string
	for k := range fields {
		pv, pok := primary[k]
		sv, sok := secondary[k]
		if pv == nil {
			pok = false
		}
		if sv == nil {
			sok = false
		}
		if pok != sok || (pok && !Equal(pv, sv)) {
			diff = append(diff, k)
		}
	}

	sort.Strings(diff)
	return diff
}

// normalize collapses driver-specific representations into a small set of
// canonical types: float64 for numbers, string for text, time.Time for
// timestamps, map[string]any and []any for composites.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	case time.Time:
		return t.UTC()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return t
	}
}

func deepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !deepEqual(v, other) {
				return false
			}
		}
		return true
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
	case time.Time:
		// A document store round-trips timestamps as RFC3339 strings.
		if bs, ok := b.(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, bs); err == nil {
				return av.Equal(parsed)
			}
			return false
		}
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case string:
		if bt, ok := b.(time.Time); ok {
			return deepEqual(bt, av)
		}
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return a == b
	}
}
