package vidhi

import (
	"math"
	"math/rand"
	"testing"
)

func TestMatch_PicksOverlappingVidhi(t *testing.T) {
	m := NewMatcher(42)
	vidhis := []Vidhi{
		{ID: "1", Name: "read|edit", Triggers: []string{"fix config loader", "update config"}, SuccessCount: 8, FailureCount: 2},
		{ID: "2", Name: "bash|bash", Triggers: []string{"run test suite", "debug failing tests"}, SuccessCount: 5, FailureCount: 5},
	}

	got := m.Match(vidhis, "fix the config parsing")
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.ID != "1" {
		t.Errorf("expected the config vidhi, got %s", got.ID)
	}
}

func TestMatch_RejectsEmptyAndWeakQueries(t *testing.T) {
	m := NewMatcher(1)
	vidhis := []Vidhi{
		{ID: "1", Triggers: []string{"fix config loader"}, SuccessCount: 1, FailureCount: 1},
	}
	if m.Match(vidhis, "") != nil {
		t.Error("empty query must return nil")
	}
	if m.Match(vidhis, "the a of") != nil {
		t.Error("stopword-only query must return nil")
	}
	if m.Match(vidhis, "photograph wild elephants") != nil {
		t.Error("query below the similarity floor must return nil")
	}
}

func TestMatch_ThompsonPrefersTrackRecord(t *testing.T) {
	m := NewMatcher(7)
	// Same triggers, radically different track records.
	vidhis := []Vidhi{
		{ID: "good", Triggers: []string{"deploy staging cluster"}, SuccessCount: 50, FailureCount: 1},
		{ID: "bad", Triggers: []string{"deploy staging cluster"}, SuccessCount: 1, FailureCount: 50},
	}

	wins := 0
	for i := 0; i < 100; i++ {
		if got := m.Match(vidhis, "deploy the staging cluster"); got != nil && got.ID == "good" {
			wins++
		}
	}
	if wins < 80 {
		t.Errorf("the proven vidhi should win almost always, won %d/100", wins)
	}
}

func TestSampleBeta_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 1000; i++ {
		v := sampleBeta(rng, 3, 5)
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("beta sample out of bounds: %f", v)
		}
	}

	// Shape < 1 exercises the boost transform.
	for i := 0; i < 200; i++ {
		v := sampleBeta(rng, 0.3, 0.7)
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("small-shape beta sample out of bounds: %f", v)
		}
	}
}

func TestSampleBeta_MeanTracksShape(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	sum := 0.0
	const n = 5000
	for i := 0; i < n; i++ {
		sum += sampleBeta(rng, 9, 1)
	}
	mean := sum / n
	if mean < 0.85 || mean > 0.95 {
		t.Errorf("Beta(9,1) mean should be ~0.9, got %f", mean)
	}
}

func TestDeepEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{"x", "x", true},
		{"x", "y", false},
		{float64(3), float64(3), true},
		{float64(3), "3", false},
		{[]any{"a", float64(1)}, []any{"a", float64(1)}, true},
		{[]any{"a"}, []any{"a", "b"}, false},
		{map[string]any{"k": []any{"v"}}, map[string]any{"k": []any{"v"}}, true},
		{map[string]any{"k": "v"}, map[string]any{"k": "v", "j": "w"}, false},
		{nil, nil, true},
		{nil, "x", false},
		{true, true, true},
		{true, false, false},
	}
	for _, tt := range tests {
		if got := deepEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("deepEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
