package service

import (
	"testing"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
)

func routerSlots() []entity.AgentSlot {
	return []entity.AgentSlot{
		{ID: "coder", Role: "coder", Capabilities: []string{"go", "refactoring", "testing"}, MaxConcurrent: 2},
		{ID: "researcher", Role: "researcher", Capabilities: []string{"search", "summarize"}, MaxConcurrent: 1},
	}
}

func baseRules() []config.RuleSpec {
	return []config.RuleSpec{
		{Name: "deploys", Type: "keyword", Priority: 50, Keywords: []string{"deploy", "rollout"}, TargetSlot: "coder", BumpPriority: "critical"},
		{Name: "go-files", Type: "file_type", Priority: 40, Extensions: []string{".go"}, TargetSlot: "coder"},
		{Name: "issue-refs", Type: "pattern", Priority: 30, Pattern: `#\d+`, TargetSlot: "researcher"},
		{Name: "capable", Type: "capability", Priority: 20, TargetSlot: "coder"},
		{Name: "typed", Type: "expression", Priority: 10, Expression: `task.type == "research" and task.description contains "benchmark"`, TargetSlot: "researcher"},
		{Name: "fallback", Type: "always", Priority: 0, TargetSlot: "coder"},
	}
}

func newRouter(t *testing.T) *TaskRouter {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	r, err := NewTaskRouter(routerSlots(), baseRules(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRouter_RequiresFallback(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	_, err := NewTaskRouter(routerSlots(), []config.RuleSpec{
		{Name: "only", Type: "keyword", Priority: 5, Keywords: []string{"x"}, TargetSlot: "coder"},
	}, logger)
	if err == nil {
		t.Fatal("a table without an always/priority-0 rule must be rejected")
	}
}

func TestRouter_MatcherKinds(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		desc string
		task entity.Task
		rule string
	}{
		{"keyword", entity.Task{Type: "ops", Description: "deploy the gateway to staging"}, "deploys"},
		{"file_type desc", entity.Task{Type: "code", Description: "tidy up internal/service/retry.go"}, "go-files"},
		{"file_type ctx", entity.Task{Type: "code", Description: "tidy this file", Context: map[string]any{"file": "main.go"}}, "go-files"},
		{"pattern", entity.Task{Type: "triage", Description: "look into #1234 flakiness"}, "issue-refs"},
		{"expression", entity.Task{Type: "research", Description: "collect benchmark data"}, "typed"},
		{"fallback", entity.Task{Type: "misc", Description: "water the plants"}, "fallback"},
	}
	for _, tt := range tests {
		route := r.Route(&tt.task)
		if route.RuleName != tt.rule {
			t.Errorf("%s: matched %q, want %q", tt.desc, route.RuleName, tt.rule)
		}
	}
}

func TestRouter_CapabilityJaccard(t *testing.T) {
	r := newRouter(t)
	// The task requires {go, testing}; the coder slot shares both of its
	// three capabilities, jaccard 2/3 over the 0.3 threshold.
	task := entity.Task{Type: "misc", Description: "unremarkable request",
		Context: map[string]any{"capabilities": []string{"go", "testing"}}}
	route := r.Route(&task)
	if route.RuleName != "capable" {
		t.Errorf("capability rule should match before fallback, got %q", route.RuleName)
	}

	// Without required capabilities the rule passes and fallback serves.
	plain := entity.Task{Type: "misc", Description: "water the plants"}
	if route := r.Route(&plain); route.RuleName != "fallback" {
		t.Errorf("capability rule must not fire without required caps, got %q", route.RuleName)
	}
}

func TestRouter_CacheAndClear(t *testing.T) {
	r := newRouter(t)
	task := entity.Task{Type: "ops", Description: "deploy the gateway"}

	first := r.Route(&task)
	second := r.Route(&task)
	if first != second {
		t.Error("repeated routes must come from the cache unchanged")
	}

	r.ClearCache()
	third := r.Route(&task)
	if third.RuleName != first.RuleName {
		t.Error("clearing the cache must not change the verdict")
	}
}

func TestRouter_RouteAndTransform(t *testing.T) {
	r := newRouter(t)
	task := entity.Task{Type: "ops", Description: "deploy the gateway", Priority: entity.PriorityNormal}
	route := r.RouteAndTransform(&task)
	if route.RuleName != "deploys" {
		t.Fatalf("matched %q", route.RuleName)
	}
	if task.Priority != entity.PriorityCritical {
		t.Errorf("deploy rule must bump priority to critical, got %s", task.Priority)
	}
}
