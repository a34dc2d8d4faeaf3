package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TurnState is one state of the per-turn lifecycle.
type TurnState string

const (
	StateIdle        TurnState = "idle"
	StateClassifying TurnState = "classifying"
	StateStreaming   TurnState = "streaming"
	StateToolExec    TurnState = "tool_exec"
	StateRetrying    TurnState = "retrying"
	StateComplete    TurnState = "complete"
	StateError       TurnState = "error"
	StateAborted     TurnState = "aborted"
)

// validTransitions is the allowed transition table.
var validTransitions = map[TurnState]map[TurnState]bool{
	StateIdle: {
		StateClassifying: true,
	},
	StateClassifying: {
		StateStreaming: true,
		StateComplete:  true, // skipLLM paths finish without a provider call
		StateError:     true,
		StateAborted:   true,
	},
	StateStreaming: {
		StateToolExec: true,
		StateRetrying: true,
		StateComplete: true,
		StateError:    true,
		StateAborted:  true,
	},
	StateToolExec: {
		StateStreaming: true,
		StateError:     true,
		StateAborted:   true,
	},
	StateRetrying: {
		StateStreaming: true,
		StateError:     true,
		StateAborted:   true,
	},
	// Terminal states.
	StateComplete: {},
	StateError:    {},
	StateAborted:  {},
}

// StateSnapshot captures the turn at one point in time.
type StateSnapshot struct {
	State         TurnState     `json:"state"`
	Step          int           `json:"step"`
	TokensUsed    int           `json:"tokens_used"`
	ToolsExecuted int           `json:"tools_executed"`
	RetryCount    int           `json:"retry_count"`
	ErrorCount    int           `json:"error_count"`
	Elapsed       time.Duration `json:"elapsed"`
	ModelUsed     string        `json:"model_used,omitempty"`
	LastTool      string        `json:"last_tool,omitempty"`
}

// TransitionFunc observes transitions.
type TransitionFunc func(from, to TurnState, snap StateSnapshot)

// StateMachine validates turn state transitions and tracks counters.
type StateMachine struct {
	mu sync.Mutex

	state        TurnState
	step         int
	tokensUsed   int
	toolsExec    int
	retryCount   int
	errorCount   int
	startTime    time.Time
	modelUsed    string
	lastTool     string
	onTransition TransitionFunc
	logger       *zap.Logger
}

// NewStateMachine starts at idle.
func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{
		state:     StateIdle,
		startTime: time.Now(),
		logger:    logger,
	}
}

// OnTransition registers the observer.
func (sm *StateMachine) OnTransition(fn TransitionFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onTransition = fn
}

// Transition moves to the target state or errors on an invalid move.
func (sm *StateMachine) Transition(to TurnState) error {
	sm.mu.Lock()

	from := sm.state
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	sm.state = to
	snap := sm.snapshotLocked()
	fn := sm.onTransition
	sm.mu.Unlock()

	if fn != nil {
		fn(from, to, snap)
	}
	return nil
}

// State returns the current state.
func (sm *StateMachine) State() TurnState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// IsTerminal reports whether the turn has ended.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(validTransitions[sm.state]) == 0
}

func (sm *StateMachine) SetStep(step int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.step = step
}

func (sm *StateMachine) AddTokens(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokensUsed += n
}

func (sm *StateMachine) SetModel(model string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.modelUsed = model
}

func (sm *StateMachine) RecordToolExec(tool string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.toolsExec++
	sm.lastTool = tool
}

func (sm *StateMachine) RecordRetry() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.retryCount++
}

func (sm *StateMachine) RecordError() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.errorCount++
}

// Snapshot returns the current state snapshot.
func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:         sm.state,
		Step:          sm.step,
		TokensUsed:    sm.tokensUsed,
		ToolsExecuted: sm.toolsExec,
		RetryCount:    sm.retryCount,
		ErrorCount:    sm.errorCount,
		Elapsed:       time.Since(sm.startTime),
		ModelUsed:     sm.modelUsed,
		LastTool:      sm.lastTool,
	}
}
