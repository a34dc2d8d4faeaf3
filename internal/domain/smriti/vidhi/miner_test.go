package vidhi

import (
	"testing"

	"go.uber.org/zap"
)

func testMiner(cfg MinerConfig) *Miner {
	logger, _ := zap.NewDevelopment()
	return NewMiner(cfg, logger)
}

func sessionReadEdit(id, path, find, replace string) SessionCalls {
	return SessionCalls{
		SessionID:       id,
		LastUserMessage: "fix the config loader",
		Calls: []Call{
			{ToolName: "read", Args: map[string]any{"path": path}},
			{ToolName: "edit", Args: map[string]any{"path": path, "find": find, "replace": replace}},
		},
	}
}

func TestMine_AntiUnification(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.5})

	sessions := []SessionCalls{
		sessionReadEdit("s1", "config/a.yaml", "old_key", "new_key"),
		sessionReadEdit("s2", "config/b.yaml", "stale", "fresh"),
	}
	vidhis := m.Mine("myproj", sessions)

	if len(vidhis) != 1 {
		t.Fatalf("expected 1 vidhi, got %d", len(vidhis))
	}
	v := vidhis[0]
	if v.Name != "read|edit" {
		t.Errorf("name = %q", v.Name)
	}
	if len(v.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(v.Steps))
	}

	// path varies across sessions: parameter in both steps.
	if v.Steps[0].ArgTemplate["path"] != "${read_0_path}" {
		t.Errorf("step 0 path template = %v", v.Steps[0].ArgTemplate["path"])
	}
	if v.Steps[1].ArgTemplate["path"] != "${edit_1_path}" {
		t.Errorf("step 1 path template = %v", v.Steps[1].ArgTemplate["path"])
	}
	if v.Steps[1].ArgTemplate["find"] != "${edit_1_find}" {
		t.Errorf("find should be a parameter, got %v", v.Steps[1].ArgTemplate["find"])
	}
	if v.Steps[1].ArgTemplate["replace"] != "${edit_1_replace}" {
		t.Errorf("replace should be a parameter, got %v", v.Steps[1].ArgTemplate["replace"])
	}

	for _, param := range []string{"read_0_path", "edit_1_path", "edit_1_find", "edit_1_replace"} {
		spec, ok := v.ParameterSchema[param]
		if !ok {
			t.Errorf("schema missing %s", param)
			continue
		}
		if spec.Type != "string" || !spec.Required {
			t.Errorf("%s spec = %+v", param, spec)
		}
	}

	// Step indices are contiguous from 0.
	for i, s := range v.Steps {
		if s.Index != i {
			t.Errorf("step %d has index %d", i, s.Index)
		}
	}
}

func TestMine_FixedValuesStayLiteral(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.5})
	sessions := []SessionCalls{
		sessionReadEdit("s1", "Makefile", "a", "b"),
		sessionReadEdit("s2", "Makefile", "c", "d"),
	}
	vidhis := m.Mine("p", sessions)
	if len(vidhis) != 1 {
		t.Fatalf("expected 1 vidhi, got %d", len(vidhis))
	}
	if got := vidhis[0].Steps[0].ArgTemplate["path"]; got != "Makefile" {
		t.Errorf("identical path should stay literal, got %v", got)
	}
	if _, ok := vidhis[0].ParameterSchema["read_0_path"]; ok {
		t.Error("literal keys must not enter the parameter schema")
	}
}

func TestMine_Idempotent(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.5})
	sessions := []SessionCalls{
		sessionReadEdit("s1", "x.go", "a", "b"),
		sessionReadEdit("s2", "y.go", "c", "d"),
	}
	first := m.Mine("proj", sessions)
	second := m.Mine("proj", sessions)

	if len(first) != len(second) {
		t.Fatal("re-mining changed the result count")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("id drifted: %s vs %s", first[i].ID, second[i].ID)
		}
		for j := range first[i].Steps {
			for k, v := range first[i].Steps[j].ArgTemplate {
				if !deepEqual(v, second[i].Steps[j].ArgTemplate[k]) {
					t.Errorf("step template drifted at step %d key %s", j, k)
				}
			}
		}
	}
}

func TestMine_ErrorWindowsSkipped(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.9})
	bad := SessionCalls{
		SessionID: "s1",
		Calls: []Call{
			{ToolName: "read", Args: map[string]any{"path": "a"}},
			{ToolName: "edit", Args: map[string]any{"path": "a"}, IsError: true},
		},
	}
	good := sessionReadEdit("s2", "b", "x", "y")
	vidhis := m.Mine("p", []SessionCalls{bad, good})
	// One clean of two total windows = 0.5 success rate, below the 0.9 floor.
	if len(vidhis) != 0 {
		t.Errorf("low success rate pattern must be filtered, got %d vidhis", len(vidhis))
	}
}

func TestMine_MinSessionsFilter(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 3, MinSuccessRate: 0.5})
	sessions := []SessionCalls{
		sessionReadEdit("s1", "a", "x", "y"),
		sessionReadEdit("s2", "b", "x", "y"),
	}
	if got := m.Mine("p", sessions); len(got) != 0 {
		t.Errorf("2 sessions under a 3-session floor must yield nothing, got %d", len(got))
	}
}

func TestMine_TriggersFromUserMessages(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.5})
	sessions := []SessionCalls{
		sessionReadEdit("s1", "a.go", "x", "y"),
		sessionReadEdit("s2", "b.go", "x", "y"),
	}
	vidhis := m.Mine("p", sessions)
	if len(vidhis) != 1 {
		t.Fatal("setup failed")
	}
	found := false
	for _, trig := range vidhis[0].Triggers {
		if trig == "fix config" || trig == "fix config loader" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 'fix …' trigger, got %v", vidhis[0].Triggers)
	}
	if len(vidhis[0].Triggers) > 10 {
		t.Errorf("triggers cap at 10, got %d", len(vidhis[0].Triggers))
	}
}

func TestMine_Confidence(t *testing.T) {
	m := testMiner(MinerConfig{MinN: 2, MaxN: 2, MinSessions: 2, MinSuccessRate: 0.5})
	sessions := []SessionCalls{
		sessionReadEdit("s1", "a", "x", "y"),
		sessionReadEdit("s2", "b", "x", "y"),
	}
	v := m.Mine("p", sessions)[0]
	if v.Confidence < 0.69 || v.Confidence > 0.71 {
		t.Errorf("confidence for 2 sessions should be ~0.7, got %f", v.Confidence)
	}
}
