package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
)

// fakeProvider is a registry stub.
type fakeProvider struct {
	id        string
	available bool
	generate  func(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

func (p *fakeProvider) ID() string       { return p.id }
func (p *fakeProvider) Available() bool  { return p.available }
func (p *fakeProvider) Models() []string { return []string{"m-default"} }
func (p *fakeProvider) Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	if p.generate != nil {
		return p.generate(ctx, req)
	}
	return &ProviderResponse{Content: "ok", Model: "m-default"}, nil
}

type fakeRegistry struct{ providers map[string]*fakeProvider }

func (r *fakeRegistry) Get(id string) (ProviderClient, bool) {
	p, ok := r.providers[id]
	return p, ok
}
func (r *fakeRegistry) List() []ProviderClient {
	out := make([]ProviderClient, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

func testMarga(bindings []config.BindingSpec, reg ProviderRegistry) *Marga {
	logger, _ := zap.NewDevelopment()
	return NewMarga(bindings, reg, logger)
}

func userCtx(text string) MargaContext {
	return MargaContext{Messages: []entity.Message{entity.NewTextMessage(entity.RoleUser, text)}}
}

func TestClassify_TaskTypes(t *testing.T) {
	m := testMarga(nil, &fakeRegistry{})
	tests := []struct {
		msg      string
		taskType TaskType
		skipLLM  bool
	}{
		{"hello there", TaskChat, false},
		{"search for the config loader in the repo", TaskSearch, true},
		{"what did we decide about retries last time?", TaskMemory, true},
		{"rename the file util.go to helpers.go", TaskFileOp, true},
		{"implement a rate limiter middleware", TaskCodeGen, false},
		{"analyze the trade-offs between polling and push", TaskReasoning, false},
	}
	for _, tt := range tests {
		d := m.Classify(userCtx(tt.msg))
		if d.TaskType != tt.taskType {
			t.Errorf("%q: type = %s, want %s", tt.msg, d.TaskType, tt.taskType)
		}
		if d.SkipLLM != tt.skipLLM {
			t.Errorf("%q: skipLLM = %v, want %v", tt.msg, d.SkipLLM, tt.skipLLM)
		}
	}
}

func TestClassify_ComplexityTiers(t *testing.T) {
	m := testMarga(nil, &fakeRegistry{})

	if d := m.Classify(userCtx("hello")); d.Complexity != ComplexityTrivial {
		t.Errorf("greeting complexity = %s, want trivial", d.Complexity)
	}

	d := m.Classify(userCtx("First refactor the session store to use interfaces, " +
		"then implement a migration that backfills the bitemporal columns, " +
		"and add tests for the compaction edge cases in the api module."))
	if complexityOrder[d.Complexity] < complexityOrder[ComplexityComplex] {
		t.Errorf("multi-step code request complexity = %s, want >= complex", d.Complexity)
	}

	if d := m.Classify(userCtx("design a distributed consensus layer with fault tolerance")); d.Complexity != ComplexityExpert {
		t.Errorf("expert markers should floor to expert, got %s", d.Complexity)
	}
}

func TestClassify_ReasoningFloorsComplex(t *testing.T) {
	m := testMarga(nil, &fakeRegistry{})
	d := m.Classify(userCtx("analyze this"))
	if d.TaskType != TaskReasoning {
		t.Fatalf("setup failed: type = %s", d.TaskType)
	}
	if complexityOrder[d.Complexity] < complexityOrder[ComplexityComplex] {
		t.Errorf("reasoning must bump to at least complex, got %s", d.Complexity)
	}
}

func TestClassify_BindingResolution(t *testing.T) {
	reg := &fakeRegistry{providers: map[string]*fakeProvider{
		"down":  {id: "down", available: false},
		"local": {id: "local", available: true},
	}}
	bindings := []config.BindingSpec{
		{TaskType: "code-gen", Providers: []string{"down", "local"}, Models: []string{"big-model", "small-model"}},
		{Providers: []string{"local"}, Models: []string{"fallback-model"}},
	}
	m := testMarga(bindings, reg)

	d := m.Classify(userCtx("implement the retry middleware"))
	if d.ProviderID != "local" {
		t.Errorf("unavailable provider must be skipped, got %q", d.ProviderID)
	}
	if d.ModelID != "small-model" {
		t.Errorf("model should pair with the chosen provider, got %q", d.ModelID)
	}

	d = m.Classify(userCtx("hello"))
	if d.ProviderID != "local" || d.ModelID != "fallback-model" {
		t.Errorf("catch-all binding should serve chat, got %q/%q", d.ProviderID, d.ModelID)
	}
}

func TestClassify_ConfidenceGeometricMean(t *testing.T) {
	m := testMarga(nil, &fakeRegistry{})
	d := m.Classify(userCtx("implement a parser"))
	if d.Confidence <= 0 || d.Confidence > 1 {
		t.Errorf("confidence out of range: %f", d.Confidence)
	}
}

func TestClassify_TemperatureHook(t *testing.T) {
	m := testMarga(nil, &fakeRegistry{})
	m.SetTemperatureHook(func(base float64, taskType TaskType, c Complexity) float64 {
		if taskType == TaskCodeGen {
			return 0.2
		}
		return base
	})
	d := m.Classify(userCtx("implement a queue"))
	if d.Temperature == nil || *d.Temperature != 0.2 {
		t.Errorf("temperature hook not applied: %v", d.Temperature)
	}
}
