package service

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	domaintool "github.com/chitragupta/chitragupta/gateway/internal/domain/tool"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
)

// TaskType is the Marga request category.
type TaskType string

const (
	TaskChat      TaskType = "chat"
	TaskSearch    TaskType = "search"
	TaskMemory    TaskType = "memory"
	TaskFileOp    TaskType = "file-op"
	TaskCodeGen   TaskType = "code-gen"
	TaskReasoning TaskType = "reasoning"
	TaskOther     TaskType = "other"
)

// Complexity tiers, ordered.
type Complexity string

const (
	ComplexityTrivial Complexity = "trivial"
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
	ComplexityExpert  Complexity = "expert"
)

var complexityOrder = map[Complexity]int{
	ComplexityTrivial: 0, ComplexitySimple: 1, ComplexityMedium: 2,
	ComplexityComplex: 3, ComplexityExpert: 4,
}

// MargaContext is the classification input.
type MargaContext struct {
	Messages []entity.Message
	Tools    []domaintool.Definition
}

// Decision is the routing verdict for one request.
type Decision struct {
	TaskType    TaskType   `json:"taskType"`
	Complexity  Complexity `json:"complexity"`
	ProviderID  string     `json:"providerId"`
	ModelID     string     `json:"modelId"`
	Rationale   string     `json:"rationale"`
	Confidence  float64    `json:"confidence"`
	SkipLLM     bool       `json:"skipLLM"`
	Temperature *float64   `json:"temperature,omitempty"`
}

// TemperatureHook adjusts the sampling temperature per classification.
type TemperatureHook func(base float64, taskType TaskType, complexity Complexity) float64

// Marga is the two-classifier routing pipeline.
type Marga struct {
	bindings  []config.BindingSpec
	providers ProviderRegistry
	tempHook  TemperatureHook
	baseTemp  float64
	logger    *zap.Logger
}

// NewMarga builds the router from the declarative binding table.
func NewMarga(bindings []config.BindingSpec, providers ProviderRegistry, logger *zap.Logger) *Marga {
	return &Marga{
		bindings:  bindings,
		providers: providers,
		baseTemp:  0.7,
		logger:    logger.With(zap.String("component", "marga")),
	}
}

// SetTemperatureHook installs the optional temperature adjustment.
func (m *Marga) SetTemperatureHook(hook TemperatureHook) { m.tempHook = hook }

// ReplaceBindings swaps the binding table (hot reload path).
func (m *Marga) ReplaceBindings(bindings []config.BindingSpec) { m.bindings = bindings }

// Classify runs both classifiers and resolves the provider/model binding.
func (m *Marga) Classify(ctx MargaContext) Decision {
	lastUser := lastUserMessage(ctx.Messages)

	taskType, taskConf := classifyTaskType(lastUser)
	complexity, compConf := classifyComplexity(lastUser, len(ctx.Tools) > 0)

	// Deep reasoning never routes below the complex tier.
	if taskType == TaskReasoning && complexityOrder[complexity] < complexityOrder[ComplexityComplex] {
		complexity = ComplexityComplex
	}

	d := Decision{
		TaskType:   taskType,
		Complexity: complexity,
		Confidence: math.Sqrt(taskConf * compConf),
		SkipLLM:    taskType == TaskSearch || taskType == TaskMemory || taskType == TaskFileOp,
	}

	providerID, modelID, rationale := m.resolveBinding(taskType, complexity)
	d.ProviderID = providerID
	d.ModelID = modelID
	d.Rationale = rationale

	if m.tempHook != nil {
		t := m.tempHook(m.baseTemp, taskType, complexity)
		d.Temperature = &t
	}

	m.logger.Debug("Request classified",
		zap.String("task_type", string(taskType)),
		zap.String("complexity", string(complexity)),
		zap.String("provider", providerID),
		zap.Float64("confidence", d.Confidence),
	)
	return d
}

func lastUserMessage(messages []entity.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == entity.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}

// resolveBinding walks the table in order; the first binding whose range
// matches and whose provider is available wins.
func (m *Marga) resolveBinding(taskType TaskType, complexity Complexity) (string, string, string) {
	tier := complexityOrder[complexity]

	for _, b := range m.bindings {
		if b.TaskType != "" && b.TaskType != string(taskType) {
			continue
		}
		if b.MinComplexity != "" && tier < complexityOrder[Complexity(b.MinComplexity)] {
			continue
		}
		if b.MaxComplexity != "" && tier > complexityOrder[Complexity(b.MaxComplexity)] {
			continue
		}

		for i, providerID := range b.Providers {
			provider, ok := m.providers.Get(providerID)
			if !ok || !provider.Available() {
				continue
			}
			modelID := ""
			if i < len(b.Models) {
				modelID = b.Models[i]
			} else if len(b.Models) > 0 {
				modelID = b.Models[0]
			}
			return providerID, modelID,
				fmt.Sprintf("%s/%s binding matched %s", taskType, complexity, providerID)
		}
	}
	return "", "", fmt.Sprintf("no available binding for %s/%s", taskType, complexity)
}

// ── Task-type classifier ──

var taskTypeSignals = []struct {
	taskType TaskType
	conf     float64
	keywords []string
}{
	{TaskSearch, 0.85, []string{"search for", "find in the", "look up", "grep", "where is", "locate"}},
	{TaskMemory, 0.85, []string{"remember", "recall", "what did we", "last time", "previously", "memory"}},
	{TaskFileOp, 0.8, []string{"rename the file", "move the file", "copy the file", "delete the file", "list files", "create a directory"}},
	{TaskReasoning, 0.75, []string{"analyze", "why does", "explain why", "trade-off", "tradeoffs", "compare", "reason about", "design"}},
	{TaskCodeGen, 0.8, []string{"implement", "write a function", "refactor", "fix the bug", "add a test", "code", "compile"}},
	{TaskChat, 0.9, []string{"hello", "hi ", "thanks", "thank you", "how are you", "good morning"}},
}

func classifyTaskType(message string) (TaskType, float64) {
	if strings.TrimSpace(message) == "" {
		return TaskOther, 0.3
	}
	lower := strings.ToLower(message)

	for _, sig := range taskTypeSignals {
		for _, kw := range sig.keywords {
			if strings.Contains(lower, kw) {
				return sig.taskType, sig.conf
			}
		}
	}
	if len(strings.Fields(lower)) <= 6 {
		return TaskChat, 0.5
	}
	return TaskOther, 0.4
}

// ── Complexity classifier ──

var (
	greetingRe   = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|ok|okay|got it|good (morning|evening|night))\b`)
	codeKeywords = []string{
		"function", "class", "struct", "compile", "refactor", "bug", "test",
		"implement", "api", "endpoint", "database", "regex", "goroutine",
		"import", "module", "deploy",
	}
	multiStepRe      = regexp.MustCompile(`(?i)\bfirst\b[\s\S]*\bthen\b`)
	reasoningMarkers = []string{"analyze", "trade-off", "tradeoffs", "pros and cons", "evaluate", "compare"}
	expertMarkers    = []string{"distributed", "fault tolerance", "consensus", "linearizab", "sharding", "byzantine", "raft", "paxos"}
)

func classifyComplexity(message string, hasTools bool) (Complexity, float64) {
	lower := strings.ToLower(message)
	words := len(strings.Fields(message))

	score := 0.0
	signals := 0

	if greetingRe.MatchString(message) {
		signals++ // weight 0
	}
	if strings.HasSuffix(strings.TrimSpace(message), "?") && words < 10 {
		score += 0.5
		signals++
	}

	hasCode := false
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			hasCode = true
			break
		}
	}
	if words < 50 && !hasCode && !greetingRe.MatchString(message) {
		score += 1.0
		signals++
	}
	if hasCode {
		score += 2.0
		signals++
	}
	if hasTools {
		score += 2.0
		signals++
	}
	if multiStepRe.MatchString(message) {
		score += 3.0
		signals++
	}
	if words > 200 {
		score += 3.0
		signals++
	}
	for _, marker := range reasoningMarkers {
		if strings.Contains(lower, marker) {
			score += 1.5
			signals++
			break
		}
	}

	expertFloor := false
	for _, marker := range expertMarkers {
		if strings.Contains(lower, marker) {
			expertFloor = true
			signals++
			break
		}
	}

	var tier Complexity
	switch {
	case expertFloor:
		tier = ComplexityExpert
	case score < 1.0:
		tier = ComplexityTrivial
	case score < 2.5:
		tier = ComplexitySimple
	case score < 4.0:
		tier = ComplexityMedium
	case score < 5.5:
		tier = ComplexityComplex
	default:
		tier = ComplexityExpert
	}

	conf := 0.5 + 0.1*float64(signals)
	if conf > 0.95 {
		conf = 0.95
	}
	return tier, conf
}
