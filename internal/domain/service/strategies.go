package service

import (
	"strings"
	"sync"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
)

// Strategy names, shared with the bandit.
const (
	StrategyRoundRobin   = "round_robin"
	StrategyLeastLoaded  = "least_loaded"
	StrategySpecialized  = "specialized"
	StrategyHierarchical = "hierarchical"
	StrategyCompetitive  = "competitive"
	StrategySwarm        = "swarm"
)

// AllStrategies lists the six dispatch strategies.
var AllStrategies = []string{
	StrategyRoundRobin, StrategyLeastLoaded, StrategySpecialized,
	StrategyHierarchical, StrategyCompetitive, StrategySwarm,
}

// Subtask is one unit of a hierarchical decomposition.
type Subtask struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Stage       int    `json:"stage"`    // stages run sequentially
	Parallel    bool   `json:"parallel"` // true when sharing a stage with siblings
}

// SwarmContext is the shared scratchpad of a swarm dispatch.
type SwarmContext struct {
	TaskID        string            `json:"taskId"`
	Contributions map[string]string `json:"contributions"` // slotID → output
	SharedNotes   []string          `json:"sharedNotes"`
}

// Assignment is a strategy's dispatch plan.
type Assignment struct {
	Strategy    string        `json:"strategy"`
	SlotIDs     []string      `json:"slotIds"`
	Subtasks    []Subtask     `json:"subtasks,omitempty"`
	Aggregation string        `json:"aggregation,omitempty"` // first-wins, merge
	Swarm       *SwarmContext `json:"swarm,omitempty"`
}

// Dispatcher applies one of the six strategies to pick slots for a task.
type Dispatcher struct {
	pool *SlotPool

	mu        sync.Mutex
	rrCounter int
}

// NewDispatcher wires the slot pool.
func NewDispatcher(pool *SlotPool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Assign runs the named strategy. Slots above their concurrency cap are
// skipped wherever the strategy allows a choice.
func (d *Dispatcher) Assign(strategy string, task *entity.Task, slots []entity.AgentSlot) Assignment {
	switch strategy {
	case StrategyLeastLoaded:
		return d.leastLoaded(slots)
	case StrategySpecialized:
		return d.specialized(task, slots)
	case StrategyHierarchical:
		return d.hierarchical(task, slots)
	case StrategyCompetitive:
		return d.competitive(slots)
	case StrategySwarm:
		return d.swarm(task, slots)
	default:
		return d.roundRobin(slots)
	}
}

func slotIDs(slots []entity.AgentSlot) []string {
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}

// roundRobin assigns via a single counter modulo the slot count.
func (d *Dispatcher) roundRobin(slots []entity.AgentSlot) Assignment {
	if len(slots) == 0 {
		return Assignment{Strategy: StrategyRoundRobin}
	}
	d.mu.Lock()
	idx := d.rrCounter % len(slots)
	d.rrCounter++
	d.mu.Unlock()

	// Skip saturated slots, at most one full cycle.
	for i := 0; i < len(slots); i++ {
		candidate := slots[(idx+i)%len(slots)]
		if d.pool == nil || d.pool.Available(candidate.ID) {
			return Assignment{Strategy: StrategyRoundRobin, SlotIDs: []string{candidate.ID}}
		}
	}
	return Assignment{Strategy: StrategyRoundRobin, SlotIDs: []string{slots[idx].ID}}
}

// leastLoaded picks minimum runningTasks, tiebreak minimum queuedTasks.
// Slots without stats count as idle.
func (d *Dispatcher) leastLoaded(slots []entity.AgentSlot) Assignment {
	if len(slots) == 0 {
		return Assignment{Strategy: StrategyLeastLoaded}
	}
	best := slots[0]
	bestStats := d.stats(best.ID)
	for _, s := range slots[1:] {
		st := d.stats(s.ID)
		if st.RunningTasks < bestStats.RunningTasks ||
			(st.RunningTasks == bestStats.RunningTasks && st.QueuedTasks < bestStats.QueuedTasks) {
			best, bestStats = s, st
		}
	}
	return Assignment{Strategy: StrategyLeastLoaded, SlotIDs: []string{best.ID}}
}

func (d *Dispatcher) stats(slotID string) SlotStats {
	if d.pool == nil {
		return SlotStats{}
	}
	return d.pool.Stats(slotID)
}

// specialized ranks slots by Jaccard of task keywords to capabilities;
// ties resolve to the first slot.
func (d *Dispatcher) specialized(task *entity.Task, slots []entity.AgentSlot) Assignment {
	if len(slots) == 0 {
		return Assignment{Strategy: StrategySpecialized}
	}
	taskTokens := toSet(strings.Fields(strings.ToLower(task.Description)))

	best := slots[0]
	bestScore := setJaccard(taskTokens, toSet(best.Capabilities))
	for _, s := range slots[1:] {
		if score := setJaccard(taskTokens, toSet(s.Capabilities)); score > bestScore {
			best, bestScore = s, score
		}
	}
	return Assignment{Strategy: StrategySpecialized, SlotIDs: []string{best.ID}}
}

// verbTypeMap infers a subtask type from its leading verb.
var verbTypeMap = map[string]string{
	"test": "testing", "verify": "testing", "check": "testing",
	"write": "code-gen", "implement": "code-gen", "add": "code-gen",
	"create": "code-gen", "build": "code-gen", "fix": "code-gen",
	"refactor": "code-gen",
	"analyze":  "analysis", "review": "analysis", "investigate": "analysis",
	"document": "docs", "describe": "docs",
	"deploy": "ops", "install": "ops", "configure": "ops",
}

func inferSubtaskType(description, parentType string) string {
	fields := strings.Fields(strings.ToLower(description))
	if len(fields) > 0 {
		if t, ok := verbTypeMap[fields[0]]; ok {
			return t
		}
	}
	return parentType
}

// hierarchical splits the description on "then" into sequential stages and
// each stage on "and" into parallel subtasks. Without markers the task
// becomes a single subtask.
func (d *Dispatcher) hierarchical(task *entity.Task, slots []entity.AgentSlot) Assignment {
	a := Assignment{Strategy: StrategyHierarchical, SlotIDs: slotIDs(slots)}

	stages := splitMarker(task.Description, " then ")
	subIdx := 0
	for stageNum, stage := range stages {
		parts := splitMarker(stage, " and ")
		for _, part := range parts {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), ","))
			if part == "" {
				continue
			}
			a.Subtasks = append(a.Subtasks, Subtask{
				ID:          task.ID + "-" + string(rune('a'+subIdx)),
				Type:        inferSubtaskType(part, task.Type),
				Description: part,
				Stage:       stageNum,
				Parallel:    len(parts) > 1,
			})
			subIdx++
		}
	}
	if len(a.Subtasks) == 0 {
		a.Subtasks = []Subtask{{
			ID: task.ID + "-a", Type: task.Type, Description: task.Description,
		}}
	}
	return a
}

func splitMarker(s, marker string) []string {
	lower := strings.ToLower(s)
	var parts []string
	start := 0
	for {
		idx := strings.Index(lower[start:], marker)
		if idx < 0 {
			parts = append(parts, s[start:])
			return parts
		}
		parts = append(parts, s[start:start+idx])
		start += idx + len(marker)
	}
}

// competitive races the first N >= 2 slots; the first success wins.
func (d *Dispatcher) competitive(slots []entity.AgentSlot) Assignment {
	n := 2
	if len(slots) < n {
		return Assignment{Strategy: StrategyCompetitive, SlotIDs: slotIDs(slots), Aggregation: "first-wins"}
	}
	return Assignment{
		Strategy:    StrategyCompetitive,
		SlotIDs:     slotIDs(slots[:n]),
		Aggregation: "first-wins",
	}
}

// swarm dispatches to every slot with a shared context.
func (d *Dispatcher) swarm(task *entity.Task, slots []entity.AgentSlot) Assignment {
	return Assignment{
		Strategy:    StrategySwarm,
		SlotIDs:     slotIDs(slots),
		Aggregation: "merge",
		Swarm: &SwarmContext{
			TaskID:        task.ID,
			Contributions: make(map[string]string),
		},
	}
}

// MergeSwarmResults folds per-slot results into one. Any success makes the
// merge a success: outputs concatenate, artifacts union, metrics aggregate.
// All-failed merges report the joined errors.
func MergeSwarmResults(taskID string, results []entity.TaskResult) entity.TaskResult {
	merged := entity.TaskResult{TaskID: taskID}

	var outputs, errs []string
	artifacts := make(map[string]bool)
	var artifactOrder []string

	for _, r := range results {
		if r.Success {
			merged.Success = true
			if r.Output != "" {
				outputs = append(outputs, r.Output)
			}
		} else if r.Error != "" {
			errs = append(errs, r.Error)
		}

		for _, a := range r.Artifacts {
			if !artifacts[a] {
				artifacts[a] = true
				artifactOrder = append(artifactOrder, a)
			}
		}

		if merged.Metrics.StartTime == 0 || (r.Metrics.StartTime != 0 && r.Metrics.StartTime < merged.Metrics.StartTime) {
			merged.Metrics.StartTime = r.Metrics.StartTime
		}
		if r.Metrics.EndTime > merged.Metrics.EndTime {
			merged.Metrics.EndTime = r.Metrics.EndTime
		}
		merged.Metrics.Tokens += r.Metrics.Tokens
		merged.Metrics.CostUSD += r.Metrics.CostUSD
		merged.Metrics.ToolCalls += r.Metrics.ToolCalls
		merged.Metrics.Retries += r.Metrics.Retries
	}

	merged.Artifacts = artifactOrder
	if merged.Success {
		merged.Output = strings.Join(outputs, "\n\n")
	} else {
		merged.Output = "All swarm agents failed"
		merged.Error = strings.Join(errs, "; ")
	}
	return merged
}
