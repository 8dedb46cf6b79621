package compare

import (
	"testing"
	"time"
)

func TestEqual_Scalars(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"same strings", "Park", "Park", true},
		{"different strings", "Park", "Central Park", false},
		{"int64 vs float64", int64(42), float64(42), true},
		{"int vs int64", 7, int64(7), true},
		{"bytes vs string", []byte("abc"), "abc", true},
		{"bool", true, true, true},
		{"bool mismatch", true, false, false},
		{"nil both", nil, nil, true},
		{"nil one side", nil, "x", false},
		{"number vs string", float64(1), "1", false},
	}

	for _, tc := range cases {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Equal(%v, %v) = %v, want %v", tc.name, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEqual_Maps_OrderInsensitive(t *testing.T) {
	a := map[string]any{"lat": 40.78, "lng": -73.96, "tags": []any{"park", "nyc"}}
	b := map[string]any{"tags": []any{"park", "nyc"}, "lng": -73.96, "lat": 40.78}

	if !Equal(a, b) {
		t.Error("expected maps with same entries to be equal regardless of order")
	}

	b["lat"] = 40.79
	if Equal(a, b) {
		t.Error("expected maps with different values to be unequal")
	}
}

func TestEqual_Slices_OrderSensitive(t *testing.T) {
	if Equal([]any{"a", "b"}, []any{"b", "a"}) {
		t.Error("expected slices with different order to be unequal")
	}
	if !Equal([]any{"a", int64(1)}, []any{"a", float64(1)}) {
		t.Error("expected slices with equivalent values to be equal")
	}
}

func TestEqual_NestedComposite(t *testing.T) {
	a := map[string]any{"meta": map[string]any{"count": int64(3), "labels": []any{"x"}}}
	b := map[string]any{"meta": map[string]any{"labels": []any{"x"}, "count": float64(3)}}

	if !Equal(a, b) {
		t.Error("expected nested composites to compare structurally")
	}
}

func TestEqual_TimeVsRFC3339String(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	if !Equal(ts, ts.Format(time.RFC3339Nano)) {
		t.Error("expected time.Time to equal its RFC3339 form")
	}
	if Equal(ts, ts.Add(time.Second).Format(time.RFC3339Nano)) {
		t.Error("expected different instants to be unequal")
	}
}

func TestDiffFields(t *testing.T) {
	primary := map[string]any{"id": "42", "name": "Park", "area": int64(341)}
	secondary := map[string]any{"id": "42", "name": "Central Park", "area": float64(341), "borough": "Manhattan"}

	diff := DiffFields(primary, secondary)

	want := []string{"borough", "name"}
	if len(diff) != len(want) {
		t.Fatalf("expected diff %v, got %v", want, diff)
	}
	for i := range want {
		if diff[i] != want[i] {
			t.Fatalf("expected diff %v, got %v", want, diff)
		}
	}
}

func TestDiffFields_NullEqualsAbsent(t *testing.T) {
	primary := map[string]any{"id": "1", "name": "same", "extra": nil}
	secondary := map[string]any{"id": "1", "name": "same"}

	if diff := DiffFields(primary, secondary); len(diff) != 0 {
		t.Errorf("a NULL column and a missing field must not diverge, got %v", diff)
	}

	secondary["extra"] = "ghost"
	diff := DiffFields(primary, secondary)
	if len(diff) != 1 || diff[0] != "extra" {
		t.Errorf("a nil value against a real one is a difference, got %v", diff)
	}
}

func TestDiffFields_Converged(t *testing.T) {
	r := map[string]any{"id": "1", "name": "same"}
	if diff := DiffFields(r, map[string]any{"id": "1", "name": "same"}); len(diff) != 0 {
		t.Errorf("expected no diff for converged records, got %v", diff)
	}
}
