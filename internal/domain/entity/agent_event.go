package entity

import "time"

// AgentEventType defines the type of event emitted during an orchestrator turn.
type AgentEventType string

const (
	EventTextDelta  AgentEventType = "text_delta"
	EventToolCall   AgentEventType = "tool_call"
	EventToolResult AgentEventType = "tool_result"
	EventThinking   AgentEventType = "thinking"
	EventStepDone   AgentEventType = "step_done"
	EventSteering   AgentEventType = "steering"
	EventDone       AgentEventType = "done"
	EventError      AgentEventType = "error"
)

// AgentEvent is one event on the per-turn channel the orchestrator emits.
// External surfaces (CLI, dashboard) consume these; the core only produces.
type AgentEvent struct {
	Type      AgentEventType `json:"type"`
	Content   string         `json:"content,omitempty"`
	ToolCall  *ToolCallEvent `json:"tool_call,omitempty"`
	StepInfo  *StepInfo      `json:"step_info,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ToolCallEvent describes a tool invocation within a turn.
type ToolCallEvent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Output    string         `json:"output,omitempty"`
	Success   bool           `json:"success"`
	Denied    bool           `json:"denied,omitempty"`
	DenyRule  string         `json:"deny_rule,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// StepInfo carries step metadata for progress consumers.
type StepInfo struct {
	Step       int    `json:"step"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
	State      string `json:"state,omitempty"`
}
