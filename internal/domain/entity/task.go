package entity

import "time"

// Priority orders tasks and intentions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to its ordinal (low=0 ... critical=3).
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// TaskStatus tracks a task through its handling span.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is a unit of routed work. Owned by the orchestrator for its handling
// span; intentions may outlive it.
type Task struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	Status      TaskStatus     `json:"status"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AgentSlot declares one executor slot in the fleet.
type AgentSlot struct {
	ID            string   `json:"id"`
	Role          string   `json:"role"`
	Capabilities  []string `json:"capabilities"`
	MaxConcurrent int      `json:"max_concurrent"`
	AutoScale     bool     `json:"auto_scale,omitempty"`
	MinInstances  int      `json:"min_instances,omitempty"`
	MaxInstances  int      `json:"max_instances,omitempty"`
}

// TaskResult is the outcome of one slot executing a task.
type TaskResult struct {
	TaskID    string         `json:"task_id"`
	SlotID    string         `json:"slot_id"`
	Success   bool           `json:"success"`
	Output    string         `json:"output"`
	Error     string         `json:"error,omitempty"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Metrics   TaskMetrics    `json:"metrics"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskMetrics aggregates across swarm merges.
type TaskMetrics struct {
	StartTime int64   `json:"start_time"` // epoch ms
	EndTime   int64   `json:"end_time"`   // epoch ms
	Tokens    int     `json:"tokens"`
	CostUSD   float64 `json:"cost_usd"`
	ToolCalls int     `json:"tool_calls"`
	Retries   int     `json:"retries"`
}
