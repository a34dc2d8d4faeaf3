package service

import (
	"context"
)

// TurnHook defines lifecycle hooks around the orchestrator loop. Hooks run
// synchronously; keep them fast. Embed NoOpHook to implement a subset.
type TurnHook interface {
	// BeforeProviderCall runs before each provider request.
	BeforeProviderCall(ctx context.Context, req *ProviderRequest, step int)

	// AfterProviderCall runs after each successful provider response.
	AfterProviderCall(ctx context.Context, resp *ProviderResponse, step int)

	// BeforeToolCall runs before each tool execution. Returning false vetoes
	// the call (the Rta gate lives here).
	BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool

	// AfterToolCall runs after each tool execution completes.
	AfterToolCall(ctx context.Context, toolName string, output string, success bool)

	// OnError runs when the loop fails at a step.
	OnError(ctx context.Context, err error, step int)

	// OnStateChange runs on each state machine transition.
	OnStateChange(from, to TurnState, snap StateSnapshot)
}

// NoOpHook is the embeddable default.
type NoOpHook struct{}

func (NoOpHook) BeforeProviderCall(_ context.Context, _ *ProviderRequest, _ int) {}
func (NoOpHook) AfterProviderCall(_ context.Context, _ *ProviderResponse, _ int) {}
func (NoOpHook) BeforeToolCall(_ context.Context, _ string, _ map[string]interface{}) bool {
	return true
}
func (NoOpHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) {}
func (NoOpHook) OnError(_ context.Context, _ error, _ int)                   {}
func (NoOpHook) OnStateChange(_, _ TurnState, _ StateSnapshot)               {}

// HookChain fans out to multiple hooks in order. Any hook can veto a tool
// call.
type HookChain struct {
	hooks []TurnHook
}

func NewHookChain(hooks ...TurnHook) *HookChain {
	return &HookChain{hooks: hooks}
}

func (c *HookChain) Add(h TurnHook) { c.hooks = append(c.hooks, h) }

func (c *HookChain) BeforeProviderCall(ctx context.Context, req *ProviderRequest, step int) {
	for _, h := range c.hooks {
		h.BeforeProviderCall(ctx, req, step)
	}
}

func (c *HookChain) AfterProviderCall(ctx context.Context, resp *ProviderResponse, step int) {
	for _, h := range c.hooks {
		h.AfterProviderCall(ctx, resp, step)
	}
}

func (c *HookChain) BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool {
	for _, h := range c.hooks {
		if !h.BeforeToolCall(ctx, toolName, args) {
			return false
		}
	}
	return true
}

func (c *HookChain) AfterToolCall(ctx context.Context, toolName string, output string, success bool) {
	for _, h := range c.hooks {
		h.AfterToolCall(ctx, toolName, output, success)
	}
}

func (c *HookChain) OnError(ctx context.Context, err error, step int) {
	for _, h := range c.hooks {
		h.OnError(ctx, err, step)
	}
}

func (c *HookChain) OnStateChange(from, to TurnState, snap StateSnapshot) {
	for _, h := range c.hooks {
		h.OnStateChange(from, to, snap)
	}
}

var _ TurnHook = (*HookChain)(nil)

// MetricsHook counts calls and errors.
type MetricsHook struct {
	NoOpHook
	ProviderCalls int
	ToolCalls     int
	Errors        int
}

func (h *MetricsHook) AfterProviderCall(_ context.Context, _ *ProviderResponse, _ int) {
	h.ProviderCalls++
}
func (h *MetricsHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) { h.ToolCalls++ }
func (h *MetricsHook) OnError(_ context.Context, _ error, _ int)                   { h.Errors++ }
