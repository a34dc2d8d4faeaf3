package chetana

import (
	"sort"
	"strings"
	"time"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// IntentionStatus tracks an intention through its lifecycle. Achieved is
// terminal.
type IntentionStatus string

const (
	IntentionActive    IntentionStatus = "active"
	IntentionPaused    IntentionStatus = "paused"
	IntentionAchieved  IntentionStatus = "achieved"
	IntentionAbandoned IntentionStatus = "abandoned"
)

func statusRank(s IntentionStatus) int {
	switch s {
	case IntentionAbandoned:
		return 0
	case IntentionPaused:
		return 1
	case IntentionAchieved:
		return 2
	case IntentionActive:
		return 3
	default:
		return 1
	}
}

// Intention is one tracked goal. Progress is monotone non-decreasing until
// the intention is achieved, at which point it equals 1.0.
type Intention struct {
	ID             string          `json:"id"`
	Goal           string          `json:"goal"`
	Priority       entity.Priority `json:"priority"`
	Status         IntentionStatus `json:"status"`
	Progress       float64         `json:"progress"`
	CreatedAt      int64           `json:"createdAt"`      // epoch ms
	LastAdvancedAt int64           `json:"lastAdvancedAt"` // epoch ms
	Evidence       []string        `json:"evidence"`       // tool names, cap 10
	Subgoals       []string        `json:"subgoals,omitempty"`
	StaleTurns     int             `json:"staleTurns"`
	MentionCount   int             `json:"mentionCount"`
}

const (
	maxEvidence         = 10
	systemMaxIntentions = 100
)

// SankalpaConfig tunes intention tracking.
type SankalpaConfig struct {
	MaxIntentions        int // capped at the system limit of 100
	AbandonmentThreshold int // stale turns before an active intention pauses
}

// DefaultSankalpaConfig matches production tuning.
func DefaultSankalpaConfig() SankalpaConfig {
	return SankalpaConfig{MaxIntentions: 20, AbandonmentThreshold: 5}
}

// GoalEvent describes an intention lifecycle change for event consumers.
type GoalEvent struct {
	IntentionID string
	Goal        string
	Priority    entity.Priority
	FromStatus  IntentionStatus
	ToStatus    IntentionStatus
	Progress    float64
}

// Sankalpa is the intention subsystem.
type Sankalpa struct {
	cfg        SankalpaConfig
	intentions map[string]*Intention

	// Event sinks, wired by the controller. Nil sinks are skipped.
	OnGoalCreated func(GoalEvent)
	OnGoalChanged func(GoalEvent)

	now func() time.Time // injectable clock for tests
}

// NewSankalpa creates an empty intention tracker.
func NewSankalpa(cfg SankalpaConfig) *Sankalpa {
	if cfg.MaxIntentions <= 0 || cfg.MaxIntentions > systemMaxIntentions {
		cfg.MaxIntentions = systemMaxIntentions
	}
	if cfg.AbandonmentThreshold <= 0 {
		cfg.AbandonmentThreshold = 5
	}
	return &Sankalpa{
		cfg:        cfg,
		intentions: make(map[string]*Intention),
		now:        time.Now,
	}
}

// intentPrefixes are scanned case-insensitively against user messages.
var intentPrefixes = []string{
	"i want to ", "let's ", "let us ", "goal is ", "we need to ",
	"fix the ", "add a ", "add an ", "implement ", "create a ", "build a ",
	"write a ", "remove ", "delete ", "update ", "change ", "make ", "refactor ",
}

// verbPrefixes keep the leading verb in the extracted goal; for these the
// match position is the goal start rather than a discardable preamble.
var verbPrefixes = map[string]bool{
	"fix the ": true, "add a ": true, "add an ": true, "implement ": true,
	"create a ": true, "build a ": true, "write a ": true, "remove ": true,
	"delete ": true, "update ": true, "change ": true, "make ": true,
	"refactor ": true,
}

// ExtractFromMessage scans a user message for intention statements, merging
// into existing intentions on word overlap >= 0.5 and creating new ones
// otherwise.
func (s *Sankalpa) ExtractFromMessage(msg string) {
	lower := strings.ToLower(msg)

	for _, prefix := range intentPrefixes {
		searchFrom := 0
		for {
			pos := strings.Index(lower[searchFrom:], prefix)
			if pos < 0 {
				break
			}
			pos += searchFrom

			goalStart := pos + len(prefix)
			if verbPrefixes[prefix] {
				goalStart = pos
			}

			raw := msg[goalStart:]
			if end := strings.IndexAny(raw, ".!?,"); end >= 0 {
				raw = raw[:end]
			}
			raw = strings.TrimSpace(raw)

			for _, candidate := range strings.Split(raw, " and ") {
				candidate = strings.TrimSpace(candidate)
				if candidate == "" {
					continue
				}
				s.absorb(candidate)
			}

			searchFrom = pos + len(prefix)
		}
	}
}

// absorb merges a goal candidate into an overlapping intention or creates a
// new one.
func (s *Sankalpa) absorb(goal string) {
	candidateTokens := goalTokens(goal)
	if len(candidateTokens) == 0 {
		return
	}

	for _, in := range s.intentions {
		if in.Status != IntentionActive && in.Status != IntentionPaused {
			continue
		}
		if tokenJaccard(candidateTokens, goalTokens(in.Goal)) >= 0.5 {
			in.MentionCount++
			if in.Status == IntentionPaused {
				from := in.Status
				in.Status = IntentionActive
				in.StaleTurns = 0
				s.emitChanged(in, from)
			}
			s.escalate(in)
			return
		}
	}

	nowMs := s.now().UnixMilli()
	in := &Intention{
		ID:             fnv.Sum(goal),
		Goal:           goal,
		Priority:       entity.PriorityNormal,
		Status:         IntentionActive,
		CreatedAt:      nowMs,
		LastAdvancedAt: nowMs,
		MentionCount:   1,
	}
	s.intentions[in.ID] = in
	s.evictOverflow()

	if s.OnGoalCreated != nil {
		s.OnGoalCreated(GoalEvent{
			IntentionID: in.ID,
			Goal:        in.Goal,
			Priority:    in.Priority,
			ToStatus:    in.Status,
		})
	}
}

// escalate raises priority on repeated mentions.
func (s *Sankalpa) escalate(in *Intention) {
	switch {
	case in.MentionCount >= 5 && in.Priority == entity.PriorityHigh:
		in.Priority = entity.PriorityCritical
	case in.MentionCount >= 3 && in.Priority == entity.PriorityNormal:
		in.Priority = entity.PriorityHigh
	}
}

// OnToolResult advances intentions whose goal keywords appear in the tool
// output (two or more matches required).
func (s *Sankalpa) OnToolResult(tool, content string) {
	lowered := strings.ToLower(content)
	for _, in := range s.intentions {
		if in.Status != IntentionActive {
			continue
		}
		matches := 0
		for token := range goalTokens(in.Goal) {
			if strings.Contains(lowered, token) {
				matches++
			}
		}
		if matches < 2 {
			continue
		}

		in.Progress += 0.1
		if in.Progress >= 1.0 {
			in.Progress = 1.0
			from := in.Status
			in.Status = IntentionAchieved
			s.emitChanged(in, from)
		}
		in.LastAdvancedAt = s.now().UnixMilli()
		in.StaleTurns = 0
		if len(in.Evidence) < maxEvidence {
			in.Evidence = append(in.Evidence, tool)
		}
	}
}

// EndTurn ages intentions: active ones that stayed stale long enough pause,
// paused ones abandon at twice the threshold.
func (s *Sankalpa) EndTurn() {
	th := s.cfg.AbandonmentThreshold
	for _, in := range s.intentions {
		switch in.Status {
		case IntentionActive:
			in.StaleTurns++
			if in.StaleTurns >= th {
				from := in.Status
				in.Status = IntentionPaused
				s.emitChanged(in, from)
			}
		case IntentionPaused:
			in.StaleTurns++
			if in.StaleTurns >= 2*th {
				from := in.Status
				in.Status = IntentionAbandoned
				s.emitChanged(in, from)
			}
		}
	}
}

func (s *Sankalpa) emitChanged(in *Intention, from IntentionStatus) {
	if s.OnGoalChanged != nil {
		s.OnGoalChanged(GoalEvent{
			IntentionID: in.ID,
			Goal:        in.Goal,
			Priority:    in.Priority,
			FromStatus:  from,
			ToStatus:    in.Status,
			Progress:    in.Progress,
		})
	}
}

// evictOverflow trims to capacity. Eviction score is
// statusRank*100 + priorityRank*10 + ageTerm, lowest first; ageTerm is age
// normalized against the oldest tracked intention (0 = oldest, 1 = newest) so
// older intentions evict first within equal status and priority.
func (s *Sankalpa) evictOverflow() {
	if len(s.intentions) <= s.cfg.MaxIntentions {
		return
	}

	var oldest, newest int64
	first := true
	for _, in := range s.intentions {
		if first || in.CreatedAt < oldest {
			oldest = in.CreatedAt
		}
		if first || in.CreatedAt > newest {
			newest = in.CreatedAt
		}
		first = false
	}
	span := float64(newest - oldest)
	if span <= 0 {
		span = 1
	}

	type scored struct {
		id    string
		score float64
	}
	all := make([]scored, 0, len(s.intentions))
	for id, in := range s.intentions {
		ageTerm := float64(in.CreatedAt-oldest) / span
		score := float64(statusRank(in.Status)*100) + float64(in.Priority.Rank()*10) + ageTerm
		all = append(all, scored{id: id, score: score})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	for i := 0; len(s.intentions) > s.cfg.MaxIntentions && i < len(all); i++ {
		delete(s.intentions, all[i].id)
	}
}

// Active returns the active intentions, highest priority first.
func (s *Sankalpa) Active() []Intention {
	var out []Intention
	for _, in := range s.intentions {
		if in.Status == IntentionActive {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// Get returns an intention by id.
func (s *Sankalpa) Get(id string) (Intention, bool) {
	if in, ok := s.intentions[id]; ok {
		return *in, true
	}
	return Intention{}, false
}

// All returns every tracked intention.
func (s *Sankalpa) All() []Intention {
	out := make([]Intention, 0, len(s.intentions))
	for _, in := range s.intentions {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Count returns the number of tracked intentions.
func (s *Sankalpa) Count() int { return len(s.intentions) }

// Restore rebuilds the tracker from snapshots.
func (s *Sankalpa) Restore(intentions []Intention) {
	s.intentions = make(map[string]*Intention, len(intentions))
	for _, in := range intentions {
		copied := in
		s.intentions[in.ID] = &copied
	}
}

// goalTokens produces the stopword-filtered >=3-char token set of a goal.
func goalTokens(goal string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(goal)) {
		token := normalizeToken(raw)
		if len(token) < 3 || goalStopwords[token] {
			continue
		}
		tokens[token] = true
	}
	return tokens
}

var goalStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "our": true, "your": true, "its": true, "all": true,
	"now": true, "new": true, "can": true, "will": true, "should": true,
}

func tokenJaccard(a, b map[string]bool) float64 {
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
