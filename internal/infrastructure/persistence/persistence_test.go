package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence/models"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewManager(config.DatabaseConfig{Type: "sqlite"}, t.TempDir(), logger)
}

func TestManager_SchemaInitIdempotent(t *testing.T) {
	m := testManager(t)
	defer m.Close()

	if _, err := m.Agent(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Agent(); err != nil {
		t.Fatal("second acquisition must be idempotent:", err)
	}
	if _, err := m.Vector(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRepository_TurnRoundTrip(t *testing.T) {
	m := testManager(t)
	defer m.Close()
	db, err := m.Agent()
	if err != nil {
		t.Fatal(err)
	}
	repo := NewSessionRepository(db)

	if err := repo.EnsureSession("s1", "myproj", "fix the loader"); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendTurn("s1", 0, "user", "fix the config loader", nil); err != nil {
		t.Fatal(err)
	}
	calls := []entity.ToolCallRecord{
		{Name: "read", Input: map[string]any{"path": "a.yaml"}, Result: "ok"},
		{Name: "edit", Input: map[string]any{"path": "a.yaml", "find": "x"}, Result: "ok"},
	}
	if err := repo.AppendTurn("s1", 1, "assistant", "on it", calls); err != nil {
		t.Fatal(err)
	}

	next, err := repo.NextTurnNumber("s1")
	if err != nil {
		t.Fatal(err)
	}
	if next != 2 {
		t.Errorf("next turn = %d, want 2", next)
	}

	seqs, err := repo.LoadToolCallSequences("myproj")
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(seqs))
	}
	seq := seqs[0]
	if seq.LastUserMessage != "fix the config loader" {
		t.Errorf("last user message = %q", seq.LastUserMessage)
	}
	if len(seq.Calls) != 2 || seq.Calls[0].ToolName != "read" {
		t.Errorf("calls wrong: %+v", seq.Calls)
	}
	if seq.Calls[1].Args["find"] != "x" {
		t.Errorf("args lost in round trip: %+v", seq.Calls[1].Args)
	}
}

func TestMigrateLegacyJSON(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	home := t.TempDir()

	legacy := []map[string]any{
		{"id": "e1", "vector": []float32{0.1, 0.2}, "text": "first", "source": "session", "sourceId": "s1"},
		{"id": "e2", "vector": []float32{0.3, 0.4}, "text": "second", "source": "stream", "sourceId": "identity"},
	}
	data, _ := json.Marshal(legacy)
	legacyPath := filepath.Join(home, "embeddings.json")
	if err := os.WriteFile(legacyPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(config.DatabaseConfig{Type: "sqlite"}, home, logger)
	defer m.Close()
	db, err := m.Vector()
	if err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.EmbeddingModel{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 migrated rows, got %d", count)
	}
	if _, err := os.Stat(legacyPath + ".bak"); err != nil {
		t.Error("legacy file must be renamed to .bak")
	}
	if _, err := os.Stat(legacyPath); !os.IsNotExist(err) {
		t.Error("original legacy file must be gone")
	}

	// Re-running the whole open path must be harmless.
	m.Close()
	m2 := NewManager(config.DatabaseConfig{Type: "sqlite"}, home, logger)
	defer m2.Close()
	db2, err := m2.Vector()
	if err != nil {
		t.Fatal(err)
	}
	db2.Model(&models.EmbeddingModel{}).Count(&count)
	if count != 2 {
		t.Errorf("repeat migration changed row count to %d", count)
	}
}

func TestEmbeddingRepository_BatchInsertAndDelete(t *testing.T) {
	m := testManager(t)
	defer m.Close()

	db, err := m.Vector()
	if err != nil {
		t.Fatal(err)
	}
	writer, err := m.VectorWriter()
	if err != nil {
		t.Fatal(err)
	}
	repo := NewEmbeddingRepository(db, writer)

	rows := []models.EmbeddingModel{
		{ID: "a-c0", Vector: []byte{0, 0, 128, 63}, Text: "one", SourceType: "session", SourceID: "a", Dimensions: 1},
		{ID: "a-c1", Vector: []byte{0, 0, 0, 64}, Text: "two", SourceType: "session", SourceID: "a", Dimensions: 1},
		{ID: "b-c0", Vector: []byte{0, 0, 64, 64}, Text: "three", SourceType: "session", SourceID: "b", Dimensions: 1},
	}
	if err := repo.BatchInsert(rows); err != nil {
		t.Fatal(err)
	}

	n, err := repo.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	// Batch re-insert replaces, not duplicates.
	if err := repo.BatchInsert(rows[:1]); err != nil {
		t.Fatal(err)
	}
	if n, _ = repo.Count(); n != 3 {
		t.Errorf("re-insert should replace, count = %d", n)
	}

	if err := repo.DeleteBySource("a"); err != nil {
		t.Fatal(err)
	}
	if n, _ = repo.Count(); n != 1 {
		t.Errorf("delete by source left %d rows, want 1", n)
	}
}
