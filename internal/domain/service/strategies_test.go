package service

import (
	"strings"
	"testing"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
)

func strategySlots() []entity.AgentSlot {
	return []entity.AgentSlot{
		{ID: "s1", Capabilities: []string{"go", "refactoring"}, MaxConcurrent: 2},
		{ID: "s2", Capabilities: []string{"python", "data"}, MaxConcurrent: 2},
		{ID: "s3", Capabilities: []string{"docs", "writing"}, MaxConcurrent: 2},
	}
}

func TestRoundRobin_Cycles(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{ID: "t", Description: "anything"}

	var picks []string
	for i := 0; i < 6; i++ {
		a := d.Assign(StrategyRoundRobin, task, strategySlots())
		picks = append(picks, a.SlotIDs[0])
	}
	want := []string{"s1", "s2", "s3", "s1", "s2", "s3"}
	for i := range want {
		if picks[i] != want[i] {
			t.Fatalf("round robin order %v, want %v", picks, want)
		}
	}
}

func TestLeastLoaded(t *testing.T) {
	pool := NewSlotPool(strategySlots())
	d := NewDispatcher(pool)
	task := &entity.Task{ID: "t", Description: "x"}

	pool.Acquire("s1")
	pool.Acquire("s1")
	pool.Acquire("s2")

	a := d.Assign(StrategyLeastLoaded, task, strategySlots())
	if a.SlotIDs[0] != "s3" {
		t.Errorf("least loaded should pick the idle slot, got %s", a.SlotIDs[0])
	}

	// Tiebreak on queued count.
	pool.Release("s1")
	pool.Release("s1")
	pool.Release("s2")
	pool.Acquire("s2")
	pool.Acquire("s2")
	pool.Acquire("s2") // third acquire queues
	pool.Acquire("s3")
	pool.Acquire("s3") // s3 now runs as many as s2, with nothing queued
	a = d.Assign(StrategyLeastLoaded, task, []entity.AgentSlot{
		{ID: "s2", MaxConcurrent: 2}, {ID: "s3", MaxConcurrent: 2},
	})
	if a.SlotIDs[0] != "s3" {
		t.Errorf("queued tasks should break ties, got %s", a.SlotIDs[0])
	}
}

func TestSpecialized(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{ID: "t", Description: "refactoring go code"}
	a := d.Assign(StrategySpecialized, task, strategySlots())
	if a.SlotIDs[0] != "s1" {
		t.Errorf("go/refactoring task should route to s1, got %s", a.SlotIDs[0])
	}

	// No overlap anywhere: ties resolve to the first slot.
	task = &entity.Task{ID: "t", Description: "zzz qqq"}
	a = d.Assign(StrategySpecialized, task, strategySlots())
	if a.SlotIDs[0] != "s1" {
		t.Errorf("tie should resolve to the first slot, got %s", a.SlotIDs[0])
	}
}

func TestHierarchical_Decomposition(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{
		ID:          "t1",
		Type:        "code",
		Description: "analyze the failing suite then fix the flaky test and document the root cause",
	}
	a := d.Assign(StrategyHierarchical, task, strategySlots())

	if len(a.Subtasks) != 3 {
		t.Fatalf("expected 3 subtasks, got %d: %+v", len(a.Subtasks), a.Subtasks)
	}
	if a.Subtasks[0].Stage != 0 || a.Subtasks[1].Stage != 1 || a.Subtasks[2].Stage != 1 {
		t.Errorf("stage split wrong: %+v", a.Subtasks)
	}
	if a.Subtasks[0].Parallel {
		t.Error("a lone subtask in its stage is not parallel")
	}
	if !a.Subtasks[1].Parallel || !a.Subtasks[2].Parallel {
		t.Error("'and' siblings must be parallel")
	}
	if a.Subtasks[0].Type != "analysis" {
		t.Errorf("leading verb should infer type analysis, got %q", a.Subtasks[0].Type)
	}
	if a.Subtasks[1].Type != "code-gen" {
		t.Errorf("fix → code-gen, got %q", a.Subtasks[1].Type)
	}
	if a.Subtasks[2].Type != "docs" {
		t.Errorf("document → docs, got %q", a.Subtasks[2].Type)
	}
}

func TestHierarchical_NoMarkers(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{ID: "t1", Type: "code", Description: "tidy the imports"}
	a := d.Assign(StrategyHierarchical, task, strategySlots())
	if len(a.Subtasks) != 1 {
		t.Fatalf("markerless task should yield one subtask, got %d", len(a.Subtasks))
	}
	if a.Subtasks[0].Description != "tidy the imports" || a.Subtasks[0].Type != "code" {
		t.Errorf("subtask should mirror the task: %+v", a.Subtasks[0])
	}
}

func TestCompetitive(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{ID: "t", Description: "x"}
	a := d.Assign(StrategyCompetitive, task, strategySlots())
	if len(a.SlotIDs) != 2 {
		t.Errorf("competitive races the first two slots, got %v", a.SlotIDs)
	}
	if a.Aggregation != "first-wins" {
		t.Errorf("aggregation = %q", a.Aggregation)
	}
}

func TestSwarm(t *testing.T) {
	d := NewDispatcher(NewSlotPool(strategySlots()))
	task := &entity.Task{ID: "t42", Description: "x"}
	a := d.Assign(StrategySwarm, task, strategySlots())
	if len(a.SlotIDs) != 3 {
		t.Errorf("swarm uses every slot, got %v", a.SlotIDs)
	}
	if a.Swarm == nil || a.Swarm.TaskID != "t42" || a.Swarm.Contributions == nil {
		t.Errorf("swarm context not initialized: %+v", a.Swarm)
	}
}

func TestMergeSwarmResults(t *testing.T) {
	results := []entity.TaskResult{
		{SlotID: "s1", Success: true, Output: "part one", Artifacts: []string{"a.txt", "b.txt"},
			Metrics: entity.TaskMetrics{StartTime: 100, EndTime: 200, Tokens: 10, CostUSD: 0.1, ToolCalls: 2}},
		{SlotID: "s2", Success: false, Error: "crashed"},
		{SlotID: "s3", Success: true, Output: "part two", Artifacts: []string{"b.txt", "c.txt"},
			Metrics: entity.TaskMetrics{StartTime: 50, EndTime: 300, Tokens: 20, CostUSD: 0.2, ToolCalls: 3, Retries: 1}},
	}
	merged := MergeSwarmResults("t", results)

	if !merged.Success {
		t.Fatal("any success makes the merge a success")
	}
	if !strings.Contains(merged.Output, "part one") || !strings.Contains(merged.Output, "part two") {
		t.Errorf("outputs must concatenate: %q", merged.Output)
	}
	if len(merged.Artifacts) != 3 {
		t.Errorf("artifacts must union and dedupe, got %v", merged.Artifacts)
	}
	m := merged.Metrics
	if m.StartTime != 50 || m.EndTime != 300 || m.Tokens != 30 || m.ToolCalls != 5 || m.Retries != 1 {
		t.Errorf("metrics aggregation wrong: %+v", m)
	}

	failed := MergeSwarmResults("t", []entity.TaskResult{
		{SlotID: "s1", Error: "one"},
		{SlotID: "s2", Error: "two"},
	})
	if failed.Success {
		t.Fatal("all-failed merge is a failure")
	}
	if failed.Output != "All swarm agents failed" {
		t.Errorf("output = %q", failed.Output)
	}
	if !strings.Contains(failed.Error, "one") || !strings.Contains(failed.Error, "two") {
		t.Errorf("errors must join: %q", failed.Error)
	}
}
