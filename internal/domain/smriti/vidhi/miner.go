package vidhi

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// MinerConfig bounds the mining pass.
type MinerConfig struct {
	MinN           int     // shortest window (default 2)
	MaxN           int     // longest window (default 5)
	MinSessions    int     // a pattern must recur in this many sessions (default 3)
	MinSuccessRate float64 // clean windows / all windows (default 0.75)
}

// DefaultMinerConfig matches production tuning.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{MinN: 2, MaxN: 5, MinSessions: 3, MinSuccessRate: 0.75}
}

// Miner extracts procedures from per-session tool-call sequences.
type Miner struct {
	cfg    MinerConfig
	logger *zap.Logger
}

// NewMiner creates a miner.
func NewMiner(cfg MinerConfig, logger *zap.Logger) *Miner {
	if cfg.MinN <= 0 {
		cfg.MinN = 2
	}
	if cfg.MaxN < cfg.MinN {
		cfg.MaxN = cfg.MinN + 3
	}
	if cfg.MinSessions <= 0 {
		cfg.MinSessions = 3
	}
	if cfg.MinSuccessRate <= 0 {
		cfg.MinSuccessRate = 0.75
	}
	return &Miner{cfg: cfg, logger: logger.With(zap.String("component", "vidhi-miner"))}
}

// instance is one clean occurrence of an n-gram.
type instance struct {
	sessionID   string
	userMessage string
	argsByStep  []map[string]any
}

// aggregate collects every occurrence of one n-gram key.
type aggregate struct {
	toolNames    []string
	instances    []instance // first clean window per session
	seenSessions map[string]bool
	cleanCount   int
	totalCount   int
}

// Mine runs the full offline pass for one project. Re-running with unchanged
// session data produces vidhis with the same ids and step templates.
func (m *Miner) Mine(project string, sessions []SessionCalls) []Vidhi {
	aggregates := make(map[string]*aggregate)

	for _, session := range sessions {
		for n := m.cfg.MinN; n <= m.cfg.MaxN; n++ {
			for start := 0; start+n <= len(session.Calls); start++ {
				window := session.Calls[start : start+n]

				names := make([]string, n)
				hasError := false
				for i, c := range window {
					names[i] = c.ToolName
					if c.IsError {
						hasError = true
					}
				}
				key := strings.Join(names, "|")

				agg, ok := aggregates[key]
				if !ok {
					agg = &aggregate{toolNames: names, seenSessions: make(map[string]bool)}
					aggregates[key] = agg
				}
				agg.totalCount++
				if hasError {
					continue
				}
				agg.cleanCount++

				// Only the first clean window per session contributes args.
				if agg.seenSessions[session.SessionID] {
					continue
				}
				agg.seenSessions[session.SessionID] = true

				argsByStep := make([]map[string]any, n)
				for i, c := range window {
					argsByStep[i] = c.Args
				}
				agg.instances = append(agg.instances, instance{
					sessionID:   session.SessionID,
					userMessage: session.LastUserMessage,
					argsByStep:  argsByStep,
				})
			}
		}
	}

	nowMs := time.Now().UnixMilli()
	var out []Vidhi
	for key, agg := range aggregates {
		if len(agg.seenSessions) < m.cfg.MinSessions {
			continue
		}
		successRate := float64(agg.cleanCount) / float64(agg.totalCount)
		if successRate < m.cfg.MinSuccessRate {
			continue
		}

		steps, schema := antiUnify(agg.toolNames, agg.instances)

		learnedFrom := make([]string, 0, len(agg.seenSessions))
		for id := range agg.seenSessions {
			learnedFrom = append(learnedFrom, id)
		}
		sort.Strings(learnedFrom)

		sessionCount := len(agg.seenSessions)
		confidence := 0.5 + 0.1*float64(sessionCount)
		if confidence > 1.0 {
			confidence = 1.0
		}

		out = append(out, Vidhi{
			ID:              fnv.SumParts(key, project),
			Project:         project,
			Name:            key,
			LearnedFrom:     learnedFrom,
			Confidence:      confidence,
			Steps:           steps,
			Triggers:        extractTriggers(agg.instances),
			SuccessRate:     successRate,
			SuccessCount:    agg.cleanCount,
			FailureCount:    agg.totalCount - agg.cleanCount,
			ParameterSchema: schema,
			CreatedAt:       nowMs,
			UpdatedAt:       nowMs,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	m.logger.Info("Mining pass complete",
		zap.String("project", project),
		zap.Int("sessions", len(sessions)),
		zap.Int("vidhis", len(out)),
	)
	return out
}

const maxExamples = 5

// antiUnify folds every instance's arguments into per-step templates. A key
// whose value is deeply equal across all instances stays literal; anything
// else becomes a ${tool_{stepIdx}_{key}} placeholder with an inferred type.
func antiUnify(toolNames []string, instances []instance) ([]Step, map[string]ParamSpec) {
	steps := make([]Step, len(toolNames))
	schema := make(map[string]ParamSpec)

	for stepIdx, toolName := range toolNames {
		template := make(map[string]any)

		// Union of keys across instances, stable order.
		keySet := make(map[string]bool)
		for _, inst := range instances {
			for k := range inst.argsByStep[stepIdx] {
				keySet[k] = true
			}
		}
		keys := make([]string, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			var values []any
			presentInAll := true
			for _, inst := range instances {
				v, present := inst.argsByStep[stepIdx][key]
				if !present {
					presentInAll = false
					continue
				}
				values = append(values, v)
			}

			fixed := presentInAll
			for i := 1; i < len(values) && fixed; i++ {
				if !deepEqual(values[0], values[i]) {
					fixed = false
				}
			}

			if fixed && len(values) > 0 {
				template[key] = values[0]
				continue
			}

			paramName := fmt.Sprintf("%s_%d_%s", toolName, stepIdx, key)
			template[key] = "${" + paramName + "}"

			paramType := ""
			for _, v := range values {
				vt := valueType(v)
				if paramType == "" {
					paramType = vt
				} else if paramType != vt {
					paramType = "string" // mixed types collapse
					break
				}
			}
			if paramType == "" {
				paramType = "string"
			}

			var examples []any
			for _, v := range values {
				dup := false
				for _, e := range examples {
					if deepEqual(e, v) {
						dup = true
						break
					}
				}
				if !dup {
					examples = append(examples, v)
					if len(examples) == maxExamples {
						break
					}
				}
			}

			schema[paramName] = ParamSpec{Type: paramType, Required: presentInAll, Examples: examples}
		}

		steps[stepIdx] = Step{
			Index:       stepIdx,
			ToolName:    toolName,
			ArgTemplate: template,
			Critical:    stepIdx == len(toolNames)-1,
		}
	}

	return steps, schema
}

// actionVerbs anchor trigger phrases.
var actionVerbs = map[string]bool{
	"add": true, "create": true, "make": true, "build": true, "write": true,
	"fix": true, "run": true, "debug": true, "test": true, "update": true,
	"remove": true, "delete": true, "refactor": true, "deploy": true,
	"install": true, "check": true, "generate": true, "implement": true,
	"setup": true, "configure": true, "migrate": true, "rename": true,
}

var triggerStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "is": true, "it": true,
	"this": true, "that": true, "my": true, "our": true, "with": true,
	"please": true, "can": true, "you": true, "we": true, "i": true,
}

// extractTriggers pulls verb-anchored bigrams and trigrams from the user
// messages that preceded each instance, keeping the 10 most frequent.
func extractTriggers(instances []instance) []string {
	counts := make(map[string]int)

	for _, inst := range instances {
		var tokens []string
		for _, raw := range strings.Fields(strings.ToLower(inst.userMessage)) {
			token := strings.TrimFunc(raw, func(r rune) bool {
				return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
			})
			if len(token) <= 1 || triggerStopwords[token] {
				continue
			}
			tokens = append(tokens, token)
		}

		seen := make(map[string]bool)
		for i, token := range tokens {
			if !actionVerbs[token] {
				continue
			}
			if i+1 < len(tokens) {
				bigram := token + " " + tokens[i+1]
				if !seen[bigram] {
					seen[bigram] = true
					counts[bigram]++
				}
			}
			if i+2 < len(tokens) {
				trigram := token + " " + tokens[i+1] + " " + tokens[i+2]
				if !seen[trigram] {
					seen[trigram] = true
					counts[trigram]++
				}
			}
		}
	}

	phrases := make([]string, 0, len(counts))
	for p := range counts {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if counts[phrases[i]] != counts[phrases[j]] {
			return counts[phrases[i]] > counts[phrases[j]]
		}
		return phrases[i] < phrases[j]
	})
	if len(phrases) > 10 {
		phrases = phrases[:10]
	}
	return phrases
}
