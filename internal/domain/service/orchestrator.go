package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/chetana"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/rta"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/eventbus"
)

// LocalHandler serves a skipLLM task type (search/memory/file-op) without a
// provider round trip. Handlers never propagate data-layer errors; they
// return a best-effort result with an explanation instead.
type LocalHandler func(ctx context.Context, query string) (string, error)

// TurnRecorder persists session turns. Implemented by the session
// repository; nil disables persistence (the system continues in-memory).
type TurnRecorder interface {
	EnsureSession(id, project, title string) error
	NextTurnNumber(sessionID string) (int, error)
	AppendTurn(sessionID string, turnNumber int, role, content string, calls []entity.ToolCallRecord) error
}

// OrchestratorConfig carries the per-session contract from the CLI.
type OrchestratorConfig struct {
	SessionID        string
	Project          string
	WorkingDirectory string
	CostBudgetUSD    float64
	AllowedDomains   []string
	Temperature      float64
	MaxToolSteps     int           // safety net, default 50
	ToolTimeout      time.Duration // default 30s
	Retry            RetryConfig
}

// Orchestrator drives one session's turns: Chetana before, Marga decide,
// Rta check, execute, record, Chetana after. All mutations within one turn
// run on the calling goroutine — the cooperative single-threaded contract
// that keeps intention progress monotone and message order stable.
type Orchestrator struct {
	cfg        OrchestratorConfig
	marga      *Marga
	rtaEngine  *rta.Engine
	router     *TaskRouter
	dispatcher *Dispatcher
	pool       *SlotPool
	bandit     *StrategyBandit
	providers  ProviderRegistry
	tools      ToolExecutor
	mind       *chetana.Controller
	recorder   TurnRecorder
	bus        eventbus.Bus
	locals     map[TaskType]LocalHandler
	middleware *MiddlewarePipeline
	hooks      *HookChain
	toolCache  *ToolResultCache
	logger     *zap.Logger

	totalCostUSD  float64
	spawnPurposes []string
}

// OrchestratorDeps wires an orchestrator.
type OrchestratorDeps struct {
	Config     OrchestratorConfig
	Marga      *Marga
	Rta        *rta.Engine
	Router     *TaskRouter
	Dispatcher *Dispatcher
	Pool       *SlotPool
	Bandit     *StrategyBandit
	Providers  ProviderRegistry
	Tools      ToolExecutor
	Chetana    *chetana.Controller
	Recorder   TurnRecorder
	Bus        eventbus.Bus
	Locals     map[TaskType]LocalHandler
	Logger     *zap.Logger
}

// NewOrchestrator builds the per-session loop driver.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	cfg := deps.Config
	if cfg.MaxToolSteps <= 0 {
		cfg.MaxToolSteps = 50
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	o := &Orchestrator{
		cfg:        cfg,
		marga:      deps.Marga,
		rtaEngine:  deps.Rta,
		router:     deps.Router,
		dispatcher: deps.Dispatcher,
		pool:       deps.Pool,
		bandit:     deps.Bandit,
		providers:  deps.Providers,
		tools:      deps.Tools,
		mind:       deps.Chetana,
		recorder:   deps.Recorder,
		bus:        deps.Bus,
		locals:     deps.Locals,
		middleware: NewMiddlewarePipeline(deps.Logger),
		hooks:      NewHookChain(),
		toolCache:  NewToolResultCache(30*time.Second, 100),
		logger:     deps.Logger.With(zap.String("component", "orchestrator"), zap.String("session", cfg.SessionID)),
	}
	return o
}

// Hooks exposes the hook chain for additional observers.
func (o *Orchestrator) Hooks() *HookChain { return o.hooks }

// Middleware exposes the pipeline for additional transformers.
func (o *Orchestrator) Middleware() *MiddlewarePipeline { return o.middleware }

// AddCost accumulates provider spend for the cost rule.
func (o *Orchestrator) AddCost(usd float64) { o.totalCostUSD += usd }

// TurnResult is the outcome of one handled turn.
type TurnResult struct {
	FinalContent string
	Steps        int
	TokensUsed   int
	ModelUsed    string
	ToolsUsed    []string
	Decision     Decision
	Steering     []string
	Err          error
}

// rtaContext assembles the invariant check input for one tool call.
func (o *Orchestrator) rtaContext(toolName string, args map[string]interface{}) rta.CheckContext {
	purpose := ""
	if p, ok := args["purpose"].(string); ok {
		purpose = p
	}
	return rta.CheckContext{
		ToolName:            toolName,
		Args:                args,
		WorkingDirectory:    o.cfg.WorkingDirectory,
		SessionID:           o.cfg.SessionID,
		AgentPurpose:        purpose,
		RecentSpawnPurposes: o.spawnPurposes,
		TotalCostSoFar:      o.totalCostUSD,
		CostBudget:          o.cfg.CostBudgetUSD,
		AllowedDomains:      o.cfg.AllowedDomains,
	}
}

// HandleTurn runs one full turn. Events stream on the returned channel; the
// result is valid once the channel closes.
func (o *Orchestrator) HandleTurn(ctx context.Context, userMessage string, history []entity.Message) (*TurnResult, <-chan entity.AgentEvent) {
	result := &TurnResult{}
	eventCh := make(chan entity.AgentEvent, 64)

	go func() {
		defer close(eventCh)
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Turn panicked", zap.Any("panic", r), zap.Stack("stack"))
				result.Err = fmt.Errorf("internal error: %v", r)
				o.emit(eventCh, entity.AgentEvent{Type: entity.EventError, Error: result.Err.Error()})
			}
		}()
		o.runTurn(ctx, userMessage, history, result, eventCh)
	}()

	return result, eventCh
}

func (o *Orchestrator) runTurn(
	ctx context.Context,
	userMessage string,
	history []entity.Message,
	result *TurnResult,
	eventCh chan<- entity.AgentEvent,
) {
	sm := NewStateMachine(o.logger)
	sm.OnTransition(func(from, to TurnState, snap StateSnapshot) {
		o.hooks.OnStateChange(from, to, snap)
	})
	o.toolCache.Clear()

	_ = sm.Transition(StateClassifying)

	// 1. Chetana before the turn.
	mindCtx := o.mind.BeforeTurn(userMessage)
	result.Steering = mindCtx.Steering
	for _, s := range mindCtx.Steering {
		o.emit(eventCh, entity.AgentEvent{Type: entity.EventSteering, Content: s})
	}

	messages := make([]entity.Message, 0, len(history)+1)
	messages = append(messages, history...)
	userMsg := entity.NewTextMessage(entity.RoleUser, userMessage)
	messages = append(messages, userMsg)

	// 2. Marga decides the route.
	decision := o.marga.Classify(MargaContext{Messages: messages, Tools: o.tools.GetDefinitions()})
	result.Decision = decision

	var turnRecords []entity.ToolCallRecord

	if decision.SkipLLM {
		o.runLocal(ctx, decision, userMessage, result, eventCh)
		_ = sm.Transition(StateComplete)
	} else {
		o.runProviderLoop(ctx, sm, decision, messages, result, &turnRecords, mindCtx.Steering, eventCh)
	}

	// Chetana after the turn, then persistence.
	o.mind.AfterTurn()
	o.persistTurn(userMessage, result, turnRecords)

	if result.Err == nil {
		o.emit(eventCh, entity.AgentEvent{Type: entity.EventDone})
	}
}

// runLocal serves skipLLM task types from the local handlers. Data-layer
// failures degrade to an explanatory result, never an error.
func (o *Orchestrator) runLocal(ctx context.Context, decision Decision, query string, result *TurnResult, eventCh chan<- entity.AgentEvent) {
	handler, ok := o.locals[decision.TaskType]
	if !ok {
		result.FinalContent = fmt.Sprintf("no local handler for %s requests on this device", decision.TaskType)
		return
	}
	out, err := handler(ctx, query)
	if err != nil {
		o.logger.Warn("Local handler degraded",
			zap.String("task_type", string(decision.TaskType)),
			zap.Error(err),
		)
		result.FinalContent = "nothing found (the local data layer reported: " + err.Error() + ")"
		return
	}
	result.FinalContent = out
}

func (o *Orchestrator) runProviderLoop(
	ctx context.Context,
	sm *StateMachine,
	decision Decision,
	messages []entity.Message,
	result *TurnResult,
	turnRecords *[]entity.ToolCallRecord,
	steering []string,
	eventCh chan<- entity.AgentEvent,
) {
	provider, ok := o.providers.Get(decision.ProviderID)
	if !ok {
		result.Err = &ProviderError{ProviderID: decision.ProviderID, Message: "provider not registered"}
		_ = sm.Transition(StateError)
		o.emit(eventCh, entity.AgentEvent{Type: entity.EventError, Error: result.Err.Error()})
		return
	}

	temperature := o.cfg.Temperature
	if decision.Temperature != nil {
		temperature = *decision.Temperature
	}

	// Steering suggestions ride in as a system part for this turn only.
	if len(steering) > 0 {
		note := "Session steering:"
		for _, s := range steering {
			note += "\n- " + s
		}
		messages = append([]entity.Message{entity.NewTextMessage(entity.RoleSystem, note)}, messages...)
	}

	toolsUsed := make(map[string]bool)

	for step := 1; step <= o.cfg.MaxToolSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.Err = &CancellationError{Op: "turn"}
			_ = sm.Transition(StateAborted)
			return
		}
		sm.SetStep(step)
		_ = sm.Transition(StateStreaming)

		req := &ProviderRequest{
			Messages:    messages,
			Tools:       o.tools.GetDefinitions(),
			Model:       decision.ModelID,
			Temperature: temperature,
		}
		req = o.middleware.RunBeforeModel(ctx, req, step)
		o.hooks.BeforeProviderCall(ctx, req, step)

		resp, err := o.callWithRetry(ctx, sm, provider, req)
		if err != nil {
			result.Err = err
			sm.RecordError()
			_ = sm.Transition(StateError)
			o.hooks.OnError(ctx, err, step)
			o.emit(eventCh, entity.AgentEvent{Type: entity.EventError, Error: err.Error()})
			return
		}

		resp = o.middleware.RunAfterModel(ctx, resp, step)
		o.hooks.AfterProviderCall(ctx, resp, step)

		result.Steps = step
		result.TokensUsed += resp.Usage.Total()
		result.ModelUsed = resp.Model
		sm.AddTokens(resp.Usage.Total())
		sm.SetModel(resp.Model)

		o.emit(eventCh, entity.AgentEvent{
			Type: entity.EventStepDone,
			StepInfo: &entity.StepInfo{
				Step: step, TokensUsed: resp.Usage.Total(),
				ModelUsed: resp.Model, State: string(sm.State()),
			},
		})

		if len(resp.ToolCalls) == 0 {
			result.FinalContent = resp.Content
			for name := range toolsUsed {
				result.ToolsUsed = append(result.ToolsUsed, name)
			}
			_ = sm.Transition(StateComplete)
			return
		}

		// Assistant message with its tool_use parts joins the history.
		assistant := entity.Message{Role: entity.RoleAssistant, Timestamp: time.Now()}
		if resp.Content != "" {
			assistant.Parts = append(assistant.Parts, entity.ContentPart{Type: entity.PartText, Text: resp.Content})
		}
		for _, tc := range resp.ToolCalls {
			assistant.Parts = append(assistant.Parts, entity.ContentPart{
				Type: entity.PartToolUse, ID: tc.ID, Name: tc.Name, Input: tc.Arguments,
			})
		}
		messages = append(messages, assistant)

		// Tool calls execute in order on this goroutine; the per-task-id
		// record order is the execution order.
		_ = sm.Transition(StateToolExec)
		toolResults := entity.Message{Role: entity.RoleTool, Timestamp: time.Now()}
		for _, tc := range resp.ToolCalls {
			output, success := o.executeToolCall(ctx, tc, eventCh)
			toolsUsed[tc.Name] = true
			sm.RecordToolExec(tc.Name)

			*turnRecords = append(*turnRecords, entity.ToolCallRecord{
				Name: tc.Name, Input: tc.Arguments, Result: output, IsError: !success,
			})
			toolResults.Parts = append(toolResults.Parts, entity.ContentPart{
				Type: entity.PartToolResult, ToolUseID: tc.ID, Content: output, IsError: !success,
			})
		}
		messages = append(messages, toolResults)
	}

	result.Err = fmt.Errorf("turn exceeded %d tool steps", o.cfg.MaxToolSteps)
	_ = sm.Transition(StateError)

	for name := range toolsUsed {
		result.ToolsUsed = append(result.ToolsUsed, name)
	}
}

// executeToolCall gates one call through Rta, the hook chain and the result
// cache, then runs it with the per-tool timeout and reports to Chetana.
func (o *Orchestrator) executeToolCall(ctx context.Context, tc entity.ToolCallInfo, eventCh chan<- entity.AgentEvent) (string, bool) {
	o.emit(eventCh, entity.AgentEvent{
		Type:     entity.EventToolCall,
		ToolCall: &entity.ToolCallEvent{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments},
	})

	// Deny-before-decide: the invariant engine runs before any policy hook.
	verdict := o.rtaEngine.Check(o.rtaContext(tc.Name, tc.Arguments))
	if !verdict.Allowed {
		output := fmt.Sprintf("Denied by %s: %s\nAlternative: %s", verdict.RuleID, verdict.Reason, verdict.Alternative)
		o.publishToolEvent(tc, 0, false, verdict.RuleID)
		o.emit(eventCh, entity.AgentEvent{
			Type: entity.EventToolResult,
			ToolCall: &entity.ToolCallEvent{
				ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments,
				Output: output, Denied: true, DenyRule: verdict.RuleID,
			},
		})
		o.mind.AfterToolExecution(tc.Name, false, 0, output, false)
		return output, false
	}

	if !o.hooks.BeforeToolCall(ctx, tc.Name, tc.Arguments) {
		output := fmt.Sprintf("Tool %q was blocked by policy", tc.Name)
		o.mind.AfterToolExecution(tc.Name, false, 0, output, false)
		return output, false
	}

	if cached, cachedOK, hit := o.toolCache.Get(tc.Name, tc.Arguments); hit {
		o.hooks.AfterToolCall(ctx, tc.Name, cached, cachedOK)
		return cached, cachedOK
	}

	if spawnRe.MatchString(tc.Name) {
		if p, ok := tc.Arguments["purpose"].(string); ok {
			o.spawnPurposes = append(o.spawnPurposes, p)
			if len(o.spawnPurposes) > 10 {
				o.spawnPurposes = o.spawnPurposes[1:]
			}
		}
		o.mind.OnSubAgentSpawn()
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.tools.Execute(toolCtx, tc.Name, tc.Arguments)
	elapsed := time.Since(start)

	var output string
	var success bool
	switch {
	case err != nil:
		output = fmt.Sprintf("tool %s failed: %v", tc.Name, err)
	case res == nil:
		output = fmt.Sprintf("tool %s returned nothing", tc.Name)
	default:
		success = res.Success
		output = res.Output
		if !success && res.Error != "" {
			output = res.Error
		}
	}

	o.toolCache.Put(tc.Name, tc.Arguments, output, success)
	o.hooks.AfterToolCall(ctx, tc.Name, output, success)
	o.publishToolEvent(tc, elapsed, success, "")
	o.emit(eventCh, entity.AgentEvent{
		Type: entity.EventToolResult,
		ToolCall: &entity.ToolCallEvent{
			ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments,
			Output: output, Success: success, Duration: elapsed,
		},
	})

	// Every side effect reports back into the cognitive layer.
	o.mind.AfterToolExecution(tc.Name, success, float64(elapsed.Milliseconds()), output, false)
	return output, success
}

// callWithRetry wraps one provider call in the backoff policy. Streaming
// aborts (cancellation) are not retried.
func (o *Orchestrator) callWithRetry(ctx context.Context, sm *StateMachine, provider ProviderClient, req *ProviderRequest) (*ProviderResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			sm.RecordRetry()
			_ = sm.Transition(StateRetrying)

			var retryAfter *time.Duration
			var provErr *ProviderError
			if asProviderError(lastErr, &provErr) {
				retryAfter = provErr.RetryAfter
			}
			delay := ComputeDelay(attempt-1, o.cfg.Retry, retryAfter)
			o.logger.Info("Retrying provider call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &CancellationError{Op: "provider retry wait"}
			}
			_ = sm.Transition(StateStreaming)
		}

		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider failed after %d retries: %w", o.cfg.Retry.MaxRetries, lastErr)
}

var spawnRe = regexp.MustCompile(`(?i)spawn|sub_?agent`)

func asProviderError(err error, target **ProviderError) bool {
	return errors.As(err, target)
}

func (o *Orchestrator) persistTurn(userMessage string, result *TurnResult, records []entity.ToolCallRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.EnsureSession(o.cfg.SessionID, o.cfg.Project, firstLine(userMessage)); err != nil {
		o.logger.Warn("Session upsert failed", zap.Error(err))
		return
	}
	n, err := o.recorder.NextTurnNumber(o.cfg.SessionID)
	if err != nil {
		o.logger.Warn("Turn numbering failed", zap.Error(err))
		return
	}
	if err := o.recorder.AppendTurn(o.cfg.SessionID, n, "user", userMessage, nil); err != nil {
		o.logger.Warn("User turn write failed", zap.Error(err))
		return
	}
	if err := o.recorder.AppendTurn(o.cfg.SessionID, n+1, "assistant", result.FinalContent, records); err != nil {
		o.logger.Warn("Assistant turn write failed", zap.Error(err))
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

func (o *Orchestrator) publishToolEvent(tc entity.ToolCallInfo, d time.Duration, success bool, denyRule string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeToolExecution, eventbus.ToolExecutionPayload{
		SessionID:  o.cfg.SessionID,
		ToolName:   tc.Name,
		ToolCallID: tc.ID,
		Duration:   d,
		Success:    success,
		Denied:     denyRule != "",
		DenyRule:   denyRule,
	}))
}

func (o *Orchestrator) emit(ch chan<- entity.AgentEvent, ev entity.AgentEvent) {
	ev.Timestamp = time.Now()
	select {
	case ch <- ev:
	default: // a slow consumer must not stall the turn
	}
}

// ── multi-slot dispatch ──

// SlotRunner executes one (sub)task on one slot and returns its result.
// Supplied by the caller; typically it spins a nested agent run.
type SlotRunner func(ctx context.Context, slotID string, task *entity.Task) entity.TaskResult

// DispatchTask routes the task, lets the bandit pick a strategy when the
// rule table does not force one, fans out per the strategy and aggregates.
// The bandit reward is success scaled by (1 - normalized latency).
func (o *Orchestrator) DispatchTask(ctx context.Context, task *entity.Task, run SlotRunner) entity.TaskResult {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	route := o.router.RouteAndTransform(task)

	strategy := route.Strategy
	if strategy == "" {
		strategy = o.bandit.Select(o.banditContext(task))
	}

	slots := o.router.Slots()
	if route.SlotID != "" && strategy == "" {
		slots = filterSlots(slots, route.SlotID)
	}
	assignment := o.dispatcher.Assign(strategy, task, slots)

	start := time.Now()
	result := o.executeAssignment(ctx, task, assignment, run)
	elapsed := time.Since(start)

	reward := 0.0
	if result.Success {
		reward = 1.0
	}
	reward *= 1 - normalizeLatency(elapsed)
	if ctx.Err() != nil {
		reward = 0.5 // cancellation is neutral for learning
	}
	o.bandit.Update(strategy, reward, o.banditContext(task))

	return result
}

func filterSlots(slots []entity.AgentSlot, id string) []entity.AgentSlot {
	for _, s := range slots {
		if s.ID == id {
			return []entity.AgentSlot{s}
		}
	}
	return slots
}

// normalizeLatency maps elapsed time into [0, 0.5] against a 5-minute scale,
// so even slow successes keep a positive reward.
func normalizeLatency(d time.Duration) float64 {
	const scale = 5 * time.Minute
	n := float64(d) / float64(scale)
	if n > 1 {
		n = 1
	}
	return n / 2
}

func (o *Orchestrator) banditContext(task *entity.Task) [contextDim]float64 {
	running := 0.0
	for _, s := range o.router.Slots() {
		st := o.pool.Stats(s.ID)
		running += float64(st.RunningTasks)
	}
	if running > 10 {
		running = 10
	}
	return [contextDim]float64{
		float64(task.Priority.Rank()) / 3,
		running / 10,
		0, // memory pressure is wired by the application layer
		0, // average latency likewise
		0, // error rate likewise
	}
}

func (o *Orchestrator) executeAssignment(ctx context.Context, task *entity.Task, a Assignment, run SlotRunner) entity.TaskResult {
	switch {
	case a.Strategy == StrategyHierarchical && len(a.Subtasks) > 1:
		return o.runHierarchical(ctx, task, a, run)
	case a.Aggregation == "first-wins" && len(a.SlotIDs) >= 2:
		return o.runCompetitive(ctx, task, a, run)
	case a.Strategy == StrategySwarm && len(a.SlotIDs) > 1:
		return o.runSwarm(ctx, task, a, run)
	default:
		if len(a.SlotIDs) == 0 {
			return entity.TaskResult{TaskID: task.ID, Error: entity.ErrNoSlotsAvailable.Error()}
		}
		return o.runOnSlot(ctx, a.SlotIDs[0], task, run)
	}
}

func (o *Orchestrator) runOnSlot(ctx context.Context, slotID string, task *entity.Task, run SlotRunner) entity.TaskResult {
	if o.pool != nil && !o.pool.Acquire(slotID) {
		return entity.TaskResult{TaskID: task.ID, SlotID: slotID, Error: "slot saturated"}
	}
	defer func() {
		if o.pool != nil {
			o.pool.Release(slotID)
		}
	}()
	return run(ctx, slotID, task)
}

// runHierarchical executes stages sequentially, subtasks within a stage
// concurrently across the assignment's slots.
func (o *Orchestrator) runHierarchical(ctx context.Context, task *entity.Task, a Assignment, run SlotRunner) entity.TaskResult {
	var outputs []string

	maxStage := 0
	for _, st := range a.Subtasks {
		if st.Stage > maxStage {
			maxStage = st.Stage
		}
	}

	for stage := 0; stage <= maxStage; stage++ {
		var stageTasks []Subtask
		for _, st := range a.Subtasks {
			if st.Stage == stage {
				stageTasks = append(stageTasks, st)
			}
		}

		results := make([]entity.TaskResult, len(stageTasks))
		var wg sync.WaitGroup
		for i, st := range stageTasks {
			wg.Add(1)
			go func(idx int, sub Subtask) {
				defer wg.Done()
				slotID := a.SlotIDs[idx%len(a.SlotIDs)]
				subTask := &entity.Task{
					ID: sub.ID, Type: sub.Type, Description: sub.Description,
					Priority: task.Priority, Status: entity.TaskRunning,
				}
				results[idx] = o.runOnSlot(ctx, slotID, subTask, run)
			}(i, st)
		}
		wg.Wait()

		for _, r := range results {
			if !r.Success {
				return entity.TaskResult{
					TaskID: task.ID, Success: false,
					Output: fmt.Sprintf("stage %d failed", stage),
					Error:  r.Error,
				}
			}
			outputs = append(outputs, r.Output)
		}
	}

	out := ""
	for i, s := range outputs {
		if i > 0 {
			out += "\n\n"
		}
		out += s
	}
	return entity.TaskResult{TaskID: task.ID, Success: true, Output: out}
}

// runCompetitive races the slots; the first success wins and the laggards
// are cancelled.
func (o *Orchestrator) runCompetitive(ctx context.Context, task *entity.Task, a Assignment, run SlotRunner) entity.TaskResult {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res entity.TaskResult
	}
	ch := make(chan outcome, len(a.SlotIDs))

	for _, slotID := range a.SlotIDs {
		go func(id string) {
			ch <- outcome{res: o.runOnSlot(raceCtx, id, task, run)}
		}(slotID)
	}

	var lastFail entity.TaskResult
	for range a.SlotIDs {
		oc := <-ch
		if oc.res.Success {
			cancel()
			return oc.res
		}
		lastFail = oc.res
	}
	return lastFail
}

// runSwarm fans out to every slot and merges. Each goroutine writes only its
// own results index; the shared swarm context fills in one pass after the
// barrier so the Contributions map never sees concurrent writes.
func (o *Orchestrator) runSwarm(ctx context.Context, task *entity.Task, a Assignment, run SlotRunner) entity.TaskResult {
	results := make([]entity.TaskResult, len(a.SlotIDs))
	var wg sync.WaitGroup
	for i, slotID := range a.SlotIDs {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			results[idx] = o.runOnSlot(ctx, id, task, run)
		}(i, slotID)
	}
	wg.Wait()

	if a.Swarm != nil {
		for i, id := range a.SlotIDs {
			if results[i].Success {
				a.Swarm.Contributions[id] = results[i].Output
			}
		}
	}
	return MergeSwarmResults(task.ID, results)
}
