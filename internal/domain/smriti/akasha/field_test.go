package akasha

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testField(cfg Config) *Field {
	logger, _ := zap.NewDevelopment()
	return NewField(cfg, logger)
}

func TestLeave_TruncatesAndDedupes(t *testing.T) {
	f := testField(DefaultConfig())

	long := make([]byte, 12000)
	for i := range long {
		long[i] = 'x'
	}
	tr := f.Leave("agent-1", TraceSolution, "sqlite locking", string(long), nil)
	if len(tr.Content) != 10000 {
		t.Errorf("content must truncate to 10000 chars, got %d", len(tr.Content))
	}
	if tr.Strength != 0.5 {
		t.Errorf("initial strength = %f", tr.Strength)
	}

	again := f.Leave("agent-1", TraceSolution, "sqlite locking", string(long), nil)
	if again.ID != tr.ID || f.Size() != 1 {
		t.Error("identical deposit must dedupe to the same trace")
	}
}

func TestReinforce_DiminishingReturns(t *testing.T) {
	f := testField(DefaultConfig())
	tr := f.Leave("agent-1", TraceShortcut, "build cache", "use the warm cache dir", nil)

	s0 := tr.Strength
	if !f.Reinforce(tr.ID, "agent-2") {
		t.Fatal("first reinforcement should apply")
	}
	first := tr.Strength - s0

	if !f.Reinforce(tr.ID, "agent-3") {
		t.Fatal("second reinforcement should apply")
	}
	second := tr.Strength - s0 - first

	if second >= first {
		t.Errorf("second increment (%f) must be strictly smaller than first (%f)", second, first)
	}
	if tr.Strength > 1 {
		t.Errorf("strength must clamp to 1, got %f", tr.Strength)
	}
}

func TestReinforce_SameAgentTwiceIsNoOp(t *testing.T) {
	f := testField(DefaultConfig())
	tr := f.Leave("agent-1", TraceWarning, "flaky test", "TestFoo is flaky on CI", nil)

	if !f.Reinforce(tr.ID, "agent-2") {
		t.Fatal("first reinforcement should apply")
	}
	before := tr.Strength
	if f.Reinforce(tr.ID, "agent-2") {
		t.Error("same agent must not reinforce twice")
	}
	if tr.Strength != before {
		t.Error("no-op reinforcement changed strength")
	}

	// The depositor already counts as a reinforcer.
	if f.Reinforce(tr.ID, "agent-1") {
		t.Error("depositing agent must not reinforce its own trace")
	}
}

func TestQuery_JaccardTimesStrength(t *testing.T) {
	f := testField(DefaultConfig())
	f.Leave("a1", TraceSolution, "docker networking", "use host network mode for local registries", nil)
	f.Leave("a1", TraceSolution, "python imports", "fix sys path before importing sibling modules", nil)

	matches := f.Query("docker network registry", QueryOptions{})
	if len(matches) == 0 {
		t.Fatal("expected a match for docker query")
	}
	if matches[0].Trace.Topic != "docker networking" {
		t.Errorf("best match should be the docker trace, got %q", matches[0].Trace.Topic)
	}
	for _, m := range matches {
		if m.Score <= 0 {
			t.Error("zero-score traces must be dropped")
		}
	}

	typed := f.Query("docker network", QueryOptions{Type: TraceWarning})
	if len(typed) != 0 {
		t.Error("type filter should exclude solutions")
	}
}

func TestDecay_PrunesAndRespectsReinforcement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfLife = time.Hour
	f := testField(cfg)

	plain := f.Leave("a1", TracePattern, "topic one", "content one alpha", nil)
	popular := f.Leave("a1", TracePattern, "topic two", "content two beta", nil)
	f.Reinforce(popular.ID, "a2")
	f.Reinforce(popular.ID, "a3")
	f.Reinforce(popular.ID, "a4")

	// Jump the clock forward three half-lives.
	base := time.Now()
	f.now = func() time.Time { return base.Add(3 * time.Hour) }
	plainBefore := plain.Strength
	popularBefore := popular.Strength
	f.Decay()

	plainLoss := plainBefore - plain.Strength
	popularLoss := popularBefore - popular.Strength
	if popularLoss/popularBefore >= plainLoss/plainBefore {
		t.Errorf("reinforced trace must decay slower: plain -%.3f, popular -%.3f", plainLoss, popularLoss)
	}

	// Far enough out everything prunes.
	f.now = func() time.Time { return base.Add(1000 * time.Hour) }
	f.Decay()
	if f.Size() != 0 {
		t.Errorf("all traces should prune below min strength, %d left", f.Size())
	}
}

func TestCapacity_EvictsWeakest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTraces = 5
	f := testField(cfg)

	strong := f.Leave("a1", TraceSolution, "keeper topic", "keeper content", nil)
	f.Reinforce(strong.ID, "a2")

	for i := 0; i < 8; i++ {
		f.Leave("a1", TracePattern, fmt.Sprintf("topic %d", i), fmt.Sprintf("content %d", i), nil)
	}
	if f.Size() > 5 {
		t.Fatalf("capacity is 5, have %d", f.Size())
	}
	if _, ok := f.Get(strong.ID); !ok {
		t.Error("strongest trace must survive eviction")
	}
}

func TestBoostResults(t *testing.T) {
	f := testField(DefaultConfig())
	f.Leave("a1", TraceSolution, "webpack bundling", "split vendor chunks to shrink the webpack bundle size", nil)

	results := []BoostableResult{
		{ID: "r1", Text: "notes about webpack bundle size and vendor chunks", Score: 0.5},
		{ID: "r2", Text: "unrelated grocery list", Score: 0.5},
	}
	boosted := f.BoostResults(results, "webpack bundle")

	if boosted[0].Boosted <= 0 {
		t.Error("matching result should receive a trace boost")
	}
	if boosted[0].Score <= results[0].Score {
		t.Error("boost must raise the score")
	}
	if boosted[1].Boosted != 0 {
		t.Error("unrelated result must not be boosted")
	}
	if boosted[0].Boosted > DefaultConfig().ResultBoostCap {
		t.Errorf("boost must respect the cap, got %f", boosted[0].Boosted)
	}
}
