package chetana

import (
	"math"
	"sort"
	"strings"
)

// DhyanaConfig tunes attention dynamics.
type DhyanaConfig struct {
	SalienceLambda  float64 // recency decay rate
	ErrorBoost      float64 // sticky boost for error-adjacent messages
	CorrectionBoost float64 // sticky boost for corrections
	FocusWindow     int     // top-N messages returned (system cap 200)
	MaxConcepts     int     // concept map capacity (system cap 100)
}

// DefaultDhyanaConfig matches production tuning.
func DefaultDhyanaConfig() DhyanaConfig {
	return DhyanaConfig{
		SalienceLambda:  0.1,
		ErrorBoost:      0.3,
		CorrectionBoost: 0.5,
		FocusWindow:     20,
		MaxConcepts:     100,
	}
}

const (
	systemMaxConcepts    = 100
	systemMaxFocusWindow = 200
	errorAdjacencyRadius = 2
)

// MessageMeta is the per-message attention record.
type MessageMeta struct {
	HasError     bool    `json:"hasError"`
	IsCorrection bool    `json:"isCorrection"`
	BaseSalience float64 `json:"baseSalience"`

	errorNeighborBoost float64
	salience           float64
	age                int // turns since insertion, advanced by RefreshSalience
}

// Dhyana is the attention subsystem: message salience in [0,2], concept and
// tool weights in [0,1].
type Dhyana struct {
	cfg DhyanaConfig

	order    []string // message ids in insertion order
	messages map[string]*MessageMeta

	concepts map[string]float64
	tools    map[string]float64
}

// NewDhyana creates an empty attention state.
func NewDhyana(cfg DhyanaConfig) *Dhyana {
	if cfg.MaxConcepts <= 0 || cfg.MaxConcepts > systemMaxConcepts {
		cfg.MaxConcepts = systemMaxConcepts
	}
	if cfg.FocusWindow <= 0 || cfg.FocusWindow > systemMaxFocusWindow {
		if cfg.FocusWindow <= 0 {
			cfg.FocusWindow = 20
		} else {
			cfg.FocusWindow = systemMaxFocusWindow
		}
	}
	return &Dhyana{
		cfg:      cfg,
		messages: make(map[string]*MessageMeta),
		concepts: make(map[string]float64),
		tools:    make(map[string]float64),
	}
}

func clamp02(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

// AddMessage inserts a message with base salience 1.0. Error messages boost
// their neighbors within radius 2 on both sides; the forward half applies as
// later messages arrive.
func (d *Dhyana) AddMessage(id string, hasError, isCorrection bool) {
	if _, exists := d.messages[id]; exists {
		return
	}

	meta := &MessageMeta{
		HasError:     hasError,
		IsCorrection: isCorrection,
		BaseSalience: 1.0,
	}
	if isCorrection {
		meta.BaseSalience = clamp02(meta.BaseSalience + d.cfg.CorrectionBoost)
	}

	idx := len(d.order)
	d.order = append(d.order, id)
	d.messages[id] = meta

	if hasError {
		// Backward half of the adjacency window.
		for back := 1; back <= errorAdjacencyRadius && idx-back >= 0; back++ {
			n := d.messages[d.order[idx-back]]
			n.errorNeighborBoost = clamp02(n.errorNeighborBoost + d.cfg.ErrorBoost)
		}
	}
	// Forward half: this message neighbors any recent error message.
	for back := 1; back <= errorAdjacencyRadius && idx-back >= 0; back++ {
		if prev := d.messages[d.order[idx-back]]; prev.HasError {
			meta.errorNeighborBoost = clamp02(meta.errorNeighborBoost + d.cfg.ErrorBoost)
		}
	}

	meta.salience = clamp02(meta.BaseSalience + meta.errorNeighborBoost)
}

// attentionStopwords are high-frequency tokens with no concept value.
var attentionStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "your": true, "what": true, "when": true, "then": true,
	"them": true, "they": true, "there": true, "here": true, "were": true,
	"been": true, "does": true, "just": true, "like": true, "into": true,
	"some": true, "than": true, "only": true, "over": true, "also": true,
	"please": true, "should": true, "would": true, "could": true, "about": true,
	"need": true, "want": true, "make": true, "file": true, "code": true,
}

// TrackConcepts extracts word tokens from the text and bumps their weights.
// Tokens are lowercased, stripped of non-alphanumerics, deduplicated per
// message, filtered for length >= 4 and stopwords.
func (d *Dhyana) TrackConcepts(text string) {
	seen := make(map[string]bool)
	for _, raw := range strings.Fields(text) {
		token := normalizeToken(raw)
		if len(token) < 4 || attentionStopwords[token] || seen[token] {
			continue
		}
		seen[token] = true
		d.concepts[token] = clamp01(d.concepts[token] + 0.1)
	}
	d.evictConcepts()
}

func normalizeToken(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *Dhyana) evictConcepts() {
	for len(d.concepts) > d.cfg.MaxConcepts {
		lowest := ""
		lowestW := math.Inf(1)
		for c, w := range d.concepts {
			if w < lowestW {
				lowest, lowestW = c, w
			}
		}
		delete(d.concepts, lowest)
	}
}

// OnToolUsed adjusts a tool's attention weight.
func (d *Dhyana) OnToolUsed(name string, success bool, score float64) {
	delta := -0.05
	if success {
		delta = score * 0.1
	}
	d.tools[name] = clamp01(d.tools[name] + delta)
}

// RefreshSalience recomputes message salience with recency decay and sticky
// boosts, and decays concept weights. Called once per turn.
func (d *Dhyana) RefreshSalience() {
	n := len(d.order)
	for i, id := range d.order {
		m := d.messages[id]
		m.age++
		s := m.BaseSalience * math.Exp(-d.cfg.SalienceLambda*float64(n-1-i))
		s += m.errorNeighborBoost
		if m.IsCorrection {
			s += d.cfg.CorrectionBoost * math.Exp(-d.cfg.SalienceLambda*0.5*float64(m.age))
		}
		m.salience = clamp02(s)
	}

	for c, w := range d.concepts {
		w -= 0.05
		if w <= 0 {
			delete(d.concepts, c)
		} else {
			d.concepts[c] = w
		}
	}
}

// FocusWindow returns the ids of the top-N messages by salience.
func (d *Dhyana) FocusWindow() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return d.messages[ids[i]].salience > d.messages[ids[j]].salience
	})
	if len(ids) > d.cfg.FocusWindow {
		ids = ids[:d.cfg.FocusWindow]
	}
	return ids
}

// Salience returns the current salience of a message (0 if unknown).
func (d *Dhyana) Salience(id string) float64 {
	if m, ok := d.messages[id]; ok {
		return m.salience
	}
	return 0
}

// Meta returns a copy of the message metadata.
func (d *Dhyana) Meta(id string) (MessageMeta, bool) {
	if m, ok := d.messages[id]; ok {
		return *m, true
	}
	return MessageMeta{}, false
}

// ConceptWeight returns a concept's current weight.
func (d *Dhyana) ConceptWeight(concept string) float64 { return d.concepts[concept] }

// ToolWeight returns a tool's current attention weight.
func (d *Dhyana) ToolWeight(name string) float64 { return d.tools[name] }

// TopConcepts returns up to n concepts by descending weight.
func (d *Dhyana) TopConcepts(n int) []string {
	concepts := make([]string, 0, len(d.concepts))
	for c := range d.concepts {
		concepts = append(concepts, c)
	}
	sort.Slice(concepts, func(i, j int) bool {
		if d.concepts[concepts[i]] != d.concepts[concepts[j]] {
			return d.concepts[concepts[i]] > d.concepts[concepts[j]]
		}
		return concepts[i] < concepts[j]
	})
	if len(concepts) > n {
		concepts = concepts[:n]
	}
	return concepts
}
