// Package akasha is the stigmergic knowledge field: agents coordinate through
// decaying traces in a shared medium instead of direct messaging.
package akasha

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// TraceType enumerates the trace kinds.
type TraceType string

const (
	TraceSolution   TraceType = "solution"
	TraceWarning    TraceType = "warning"
	TraceShortcut   TraceType = "shortcut"
	TracePattern    TraceType = "pattern"
	TraceCorrection TraceType = "correction"
	TracePreference TraceType = "preference"
)

// Trace is one deposit in the field.
type Trace struct {
	ID               string         `json:"id"`
	AgentID          string         `json:"agentId"`
	Type             TraceType      `json:"traceType"`
	Topic            string         `json:"topic"`
	Content          string         `json:"content"`
	Strength         float64        `json:"strength"` // [0,1]
	Reinforcements   int            `json:"reinforcements"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        int64          `json:"createdAt"`        // epoch ms
	LastReinforcedAt int64          `json:"lastReinforcedAt"` // epoch ms

	reinforcedBy map[string]bool
}

const (
	maxContentChars = 10000
	systemMaxTraces = 50000
)

// Config tunes the field dynamics.
type Config struct {
	InitialStrength float64
	MinStrength     float64 // traces below this are pruned
	BaseBoost       float64
	DiminishAlpha   float64 // diminishing-returns factor for reinforcement
	HalfLife        time.Duration
	ReinforceBeta   float64 // reinforcements stretch the effective half-life
	MaxTraces       int     // capped at the system limit
	ResultBoost     float64 // boostResults multiplier
	ResultBoostCap  float64
}

// DefaultConfig matches production tuning.
func DefaultConfig() Config {
	return Config{
		InitialStrength: 0.5,
		MinStrength:     0.05,
		BaseBoost:       0.2,
		DiminishAlpha:   0.3,
		HalfLife:        7 * 24 * time.Hour,
		ReinforceBeta:   0.5,
		MaxTraces:       10000,
		ResultBoost:     0.15,
		ResultBoostCap:  0.3,
	}
}

// Field is the trace store. One writer, many readers.
type Field struct {
	mu     sync.RWMutex
	cfg    Config
	traces map[string]*Trace
	logger *zap.Logger
	now    func() time.Time
}

// NewField creates an empty field.
func NewField(cfg Config, logger *zap.Logger) *Field {
	if cfg.MaxTraces <= 0 || cfg.MaxTraces > systemMaxTraces {
		cfg.MaxTraces = systemMaxTraces
	}
	return &Field{
		cfg:    cfg,
		traces: make(map[string]*Trace),
		logger: logger.With(zap.String("component", "akasha")),
		now:    time.Now,
	}
}

// Leave deposits a trace. Content is truncated to the 10k cap and the
// depositing agent counts as the first reinforcer. Identical deposits (same
// agent, type, topic, content) map to the same id.
func (f *Field) Leave(agentID string, traceType TraceType, topic, content string, metadata map[string]any) *Trace {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	id := "aks-" + fnv.Sum(fmt.Sprintf("%s:%s:%s:%s", agentID, traceType, topic, content))
	nowMs := f.now().UnixMilli()

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.traces[id]; ok {
		return existing
	}

	tr := &Trace{
		ID:               id,
		AgentID:          agentID,
		Type:             traceType,
		Topic:            topic,
		Content:          content,
		Strength:         clamp01(f.cfg.InitialStrength),
		Metadata:         metadata,
		CreatedAt:        nowMs,
		LastReinforcedAt: nowMs,
		reinforcedBy:     map[string]bool{agentID: true},
	}
	f.traces[id] = tr
	f.evictOverflow()
	return tr
}

// Reinforce strengthens a trace with diminishing returns. The same agent may
// not reinforce the same trace twice; repeat calls are no-ops.
func (f *Field) Reinforce(traceID, agentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	tr, ok := f.traces[traceID]
	if !ok || tr.reinforcedBy[agentID] {
		return false
	}

	boost := f.cfg.BaseBoost / (1 + f.cfg.DiminishAlpha*float64(tr.Reinforcements))
	tr.Strength = clamp01(tr.Strength + boost)
	tr.Reinforcements++
	tr.LastReinforcedAt = f.now().UnixMilli()
	tr.reinforcedBy[agentID] = true
	return true
}

// QueryOptions filters a field query.
type QueryOptions struct {
	Type        TraceType
	MinStrength float64
	Limit       int
}

// Match is a scored query hit.
type Match struct {
	Trace *Trace
	Score float64 // jaccard * strength
}

// Query ranks traces by token Jaccard against the topic times strength.
// Zero-score traces are dropped.
func (f *Field) Query(topic string, opts QueryOptions) []Match {
	queryTokens := traceTokens(topic)
	if len(queryTokens) == 0 {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var matches []Match
	for _, tr := range f.traces {
		if opts.Type != "" && tr.Type != opts.Type {
			continue
		}
		if tr.Strength < opts.MinStrength {
			continue
		}
		sim := jaccard(queryTokens, traceTokens(tr.Topic+" "+tr.Content))
		score := sim * tr.Strength
		if score == 0 {
			continue
		}
		matches = append(matches, Match{Trace: tr, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Trace.ID < matches[j].Trace.ID
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches
}

// Decay applies exponential decay to every trace. Reinforced traces decay
// slower: effective half-life = base * (1 + beta * ln(1 + reinforcements)).
// Traces falling below the strength floor are pruned.
func (f *Field) Decay() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	nowMs := f.now().UnixMilli()
	pruned := 0
	for id, tr := range f.traces {
		elapsed := float64(nowMs - tr.LastReinforcedAt)
		if elapsed <= 0 {
			continue
		}
		effectiveHalfLife := float64(f.cfg.HalfLife.Milliseconds()) *
			(1 + f.cfg.ReinforceBeta*math.Log(1+float64(tr.Reinforcements)))
		tr.Strength *= math.Exp(-math.Ln2 * elapsed / effectiveHalfLife)
		if tr.Strength < f.cfg.MinStrength {
			delete(f.traces, id)
			pruned++
		}
	}
	if pruned > 0 {
		f.logger.Debug("Pruned weak traces", zap.Int("count", pruned))
	}
	return pruned
}

// BoostableResult is the minimal view of a search result the field can boost.
type BoostableResult struct {
	ID      string
	Text    string
	Score   float64
	Boosted float64 // trace contribution, 0 when none
}

// BoostResults raises the scores of results that match deposited traces.
// The boost per result is min(resultBoost * traceScore, cap).
func (f *Field) BoostResults(results []BoostableResult, query string) []BoostableResult {
	matches := f.Query(query, QueryOptions{Limit: 20})
	if len(matches) == 0 {
		return results
	}

	out := make([]BoostableResult, len(results))
	copy(out, results)
	for i := range out {
		resTokens := traceTokens(out[i].Text)
		best := 0.0
		for _, m := range matches {
			overlap := jaccard(resTokens, traceTokens(m.Trace.Topic+" "+m.Trace.Content))
			if overlap == 0 {
				continue
			}
			boost := f.cfg.ResultBoost * m.Score
			if boost > f.cfg.ResultBoostCap {
				boost = f.cfg.ResultBoostCap
			}
			if boost > best {
				best = boost
			}
		}
		if best > 0 {
			out[i].Score += best
			out[i].Boosted = best
		}
	}
	return out
}

// Size returns the number of live traces.
func (f *Field) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.traces)
}

// Get returns a trace by id.
func (f *Field) Get(id string) (*Trace, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tr, ok := f.traces[id]
	return tr, ok
}

// evictOverflow drops the weakest traces (oldest first on ties). Caller holds
// the write lock.
func (f *Field) evictOverflow() {
	for len(f.traces) > f.cfg.MaxTraces {
		weakestID := ""
		var weakest *Trace
		for id, tr := range f.traces {
			if weakest == nil ||
				tr.Strength < weakest.Strength ||
				(tr.Strength == weakest.Strength && tr.CreatedAt < weakest.CreatedAt) {
				weakestID, weakest = id, tr
			}
		}
		delete(f.traces, weakestID)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var traceStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "are": true, "was": true, "not": true, "you": true,
	"can": true, "use": true, "how": true, "what": true, "when": true,
	"from": true, "into": true, "your": true, "its": true, "has": true,
}

// traceTokens lowercases, strips punctuation and filters stopwords; tokens of
// length >= 2 survive.
func traceTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		var b strings.Builder
		for _, r := range raw {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		token := b.String()
		if len(token) < 2 || traceStopwords[token] {
			continue
		}
		tokens[token] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
