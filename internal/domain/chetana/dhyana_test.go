package chetana

import "testing"

func TestDhyana_ErrorAdjacency(t *testing.T) {
	d := NewDhyana(DefaultDhyanaConfig())
	d.AddMessage("m1", false, false)
	d.AddMessage("m2", false, false)
	d.AddMessage("m3", true, false)
	d.AddMessage("m4", false, false)
	d.AddMessage("m5", false, false)

	for _, id := range []string{"m1", "m2", "m4", "m5"} {
		m, _ := d.Meta(id)
		if m.errorNeighborBoost == 0 {
			t.Errorf("%s should carry the error neighbor boost", id)
		}
	}
	m3, _ := d.Meta("m3")
	if m3.errorNeighborBoost != 0 {
		t.Errorf("the error message itself keeps base salience, boost=%f", m3.errorNeighborBoost)
	}

	// A message outside radius 2 gets nothing.
	d2 := NewDhyana(DefaultDhyanaConfig())
	d2.AddMessage("a", true, false)
	d2.AddMessage("b", false, false)
	d2.AddMessage("c", false, false)
	d2.AddMessage("d", false, false)
	md, _ := d2.Meta("d")
	if md.errorNeighborBoost != 0 {
		t.Errorf("message 3 positions after the error should not be boosted")
	}
}

func TestDhyana_SalienceClamped(t *testing.T) {
	d := NewDhyana(DefaultDhyanaConfig())
	for i := 0; i < 30; i++ {
		d.AddMessage(string(rune('a'+i)), i%2 == 0, i%3 == 0)
	}
	d.RefreshSalience()
	for i := 0; i < 30; i++ {
		s := d.Salience(string(rune('a' + i)))
		if s < 0 || s > 2 {
			t.Errorf("salience out of [0,2]: %f", s)
		}
	}
}

func TestDhyana_TrackConcepts(t *testing.T) {
	d := NewDhyana(DefaultDhyanaConfig())
	d.TrackConcepts("Refactor the websocket handler, then refactor the websocket tests")

	if w := d.ConceptWeight("refactor"); w != 0.1 {
		t.Errorf("deduplicated token should gain exactly 0.1, got %f", w)
	}
	if w := d.ConceptWeight("the"); w != 0 {
		t.Errorf("short token must be filtered, got %f", w)
	}

	for i := 0; i < 20; i++ {
		d.TrackConcepts("websocket")
	}
	if w := d.ConceptWeight("websocket"); w > 1 {
		t.Errorf("concept weight must clamp to 1, got %f", w)
	}
}

func TestDhyana_ConceptCapacity(t *testing.T) {
	d := NewDhyana(DhyanaConfig{SalienceLambda: 0.1, ErrorBoost: 0.3, CorrectionBoost: 0.5, FocusWindow: 20, MaxConcepts: 150})
	// Config above the system cap is clamped to 100.
	text := ""
	for i := 0; i < 120; i++ {
		text += " concept" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + "word"
	}
	d.TrackConcepts(text)
	if count := len(d.TopConcepts(200)); count > 100 {
		t.Errorf("concept map exceeded the system cap: %d", count)
	}
}

func TestDhyana_ToolWeights(t *testing.T) {
	d := NewDhyana(DefaultDhyanaConfig())
	d.OnToolUsed("bash", true, 0.8)
	if w := d.ToolWeight("bash"); w < 0.079 || w > 0.081 {
		t.Errorf("success weight: got %f, want ~0.08", w)
	}
	d.OnToolUsed("bash", false, 0)
	if w := d.ToolWeight("bash"); w < 0.029 || w > 0.031 {
		t.Errorf("failure should subtract 0.05: got %f", w)
	}
	for i := 0; i < 10; i++ {
		d.OnToolUsed("bash", false, 0)
	}
	if w := d.ToolWeight("bash"); w != 0 {
		t.Errorf("tool weight must clamp at 0, got %f", w)
	}
}

func TestDhyana_FocusWindow(t *testing.T) {
	cfg := DefaultDhyanaConfig()
	cfg.FocusWindow = 3
	d := NewDhyana(cfg)
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		d.AddMessage(id, false, false)
	}
	d.RefreshSalience()
	window := d.FocusWindow()
	if len(window) != 3 {
		t.Fatalf("expected 3 messages in focus window, got %d", len(window))
	}
	// Recency decay means the newest messages dominate.
	if window[0] != "m5" {
		t.Errorf("most recent message should rank first, got %s", window[0])
	}
}
