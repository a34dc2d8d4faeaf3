package compactor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testManager(t *testing.T, budget int) *Manager {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	m, err := NewManager(t.TempDir(), "dev-1", budget, logger)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTrim_PreservesPinned(t *testing.T) {
	doc := &StreamDoc{Name: "tasks"}
	doc.Entries = append(doc.Entries,
		StreamEntry{Text: strings.Repeat("old entry text ", 20)},
		StreamEntry{Text: strings.Repeat("pinned entry text ", 20), Pinned: true},
		StreamEntry{Text: strings.Repeat("new entry text ", 20)},
	)

	doc.Trim(doc.Entries[1].Tokens() + 2)
	for _, e := range doc.Entries {
		if e.Pinned {
			return // pinned survived
		}
	}
	t.Error("pinned entry must survive trimming")
}

func TestTrim_DropsOldestFirst(t *testing.T) {
	doc := &StreamDoc{Name: "flow"}
	doc.Entries = []StreamEntry{
		{Text: strings.Repeat("a", 100)},
		{Text: strings.Repeat("b", 100)},
		{Text: strings.Repeat("c", 100)},
	}
	doc.Trim(55)
	if len(doc.Entries) != 2 {
		t.Fatalf("expected 2 entries after trim, got %d", len(doc.Entries))
	}
	if doc.Entries[0].Text[0] != 'b' {
		t.Error("oldest entry should drop first")
	}
}

func TestExtractSignals_Routing(t *testing.T) {
	text := "I prefer tabs over spaces\n" +
		"the project uses a hexagonal architecture\n" +
		"TODO: wire the retry budget\n" +
		"we talked about the weather for a while\n"
	signals := ExtractSignals(text)
	if len(signals) != 4 {
		t.Fatalf("expected 4 signals, got %d", len(signals))
	}
	want := []int{StreamIdentity, StreamProjects, StreamTasks, StreamFlow}
	for i, s := range signals {
		if s.Stream != want[i] {
			t.Errorf("signal %d routed to %d, want %d", i, s.Stream, want[i])
		}
	}
}

func TestCompact_WritesFilesAndSidecar(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	home := t.TempDir()
	m, err := NewManager(home, "dev-1", 8000, logger)
	if err != nil {
		t.Fatal(err)
	}

	signals := []Signal{
		{Stream: StreamIdentity, Text: "user prefers concise answers"},
		{Stream: StreamTasks, Text: "finish the retry budget wiring"},
		{Stream: StreamFlow, Text: "session touched the router tables"},
	}
	sidecar, err := m.Compact("sess-42", signals)
	if err != nil {
		t.Fatal(err)
	}

	if !sidecar.Converged {
		t.Error("sinkhorn should converge for small counts")
	}
	totalBudget := 0
	for _, s := range sidecar.Streams {
		totalBudget += s.Budget
	}
	if totalBudget != 8000 {
		t.Errorf("budgets must sum to the total, got %d", totalBudget)
	}

	// Stream files exist; flow is per-device.
	for _, name := range []string{"identity.md", "projects.md", "tasks.md", "flow-dev-1.md"} {
		if _, err := os.Stat(filepath.Join(home, "streams", name)); err != nil {
			t.Errorf("missing stream file %s: %v", name, err)
		}
	}

	// Sidecar round-trips as JSON.
	data, err := os.ReadFile(filepath.Join(home, "compaction", "sess-42.json"))
	if err != nil {
		t.Fatal(err)
	}
	var parsed Sidecar
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.SessionID != "sess-42" || len(parsed.Signals) != 3 {
		t.Errorf("sidecar content wrong: %+v", parsed)
	}
}

func TestManager_ReloadRoundTrip(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	home := t.TempDir()

	m, err := NewManager(home, "dev-1", 8000, logger)
	if err != nil {
		t.Fatal(err)
	}
	m.Append(StreamIdentity, "user writes Go for a living", true)
	m.Append(StreamIdentity, "user dislikes mocks", false)
	if _, err := m.Compact("sess-1", nil); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewManager(home, "dev-1", 8000, logger)
	if err != nil {
		t.Fatal(err)
	}
	doc := reloaded.Doc(StreamIdentity)
	if len(doc.Entries) != 2 {
		t.Fatalf("expected 2 reloaded entries, got %d", len(doc.Entries))
	}
	if !doc.Entries[0].Pinned || doc.Entries[1].Pinned {
		t.Error("pin markers must survive the file round trip")
	}
}
