package chetana

import (
	"sort"
)

// ToolMastery tracks observed competence with one tool.
type ToolMastery struct {
	SuccessRate float64 `json:"successRate"`
	LatencyMs   float64 `json:"latencyMs"` // median
	Samples     int     `json:"samples"`

	successes int
	latencies []float64 // bounded window for the median
}

const masteryLatencyWindow = 50

// SelfModel is the serializable view of Atma-Darshana.
type SelfModel struct {
	Calibration      float64                `json:"calibration"` // predicted/actual, typical [0.5, 1.5]
	LearningVelocity float64                `json:"learningVelocity"`
	StyleFingerprint map[string]string      `json:"styleFingerprint"`
	KnownLimitations []string               `json:"knownLimitations"`
	ToolMastery      map[string]ToolMastery `json:"toolMastery"`
}

// Atma is the self-model subsystem. Calibration compares what the model
// predicted about its own success against what actually happened.
type Atma struct {
	mastery     map[string]*ToolMastery
	limitations map[string]bool
	style       map[string]string

	predictedSum float64
	actualSum    float64

	calibrationHistory []float64 // last k calibration samples
}

const calibrationWindow = 10

// NewAtma creates an empty self-model.
func NewAtma() *Atma {
	return &Atma{
		mastery:     make(map[string]*ToolMastery),
		limitations: make(map[string]bool),
		style:       make(map[string]string),
	}
}

// RecordToolResult folds one observation into the per-tool mastery and the
// calibration accumulators. The prediction for a call is the tool's success
// rate before the call (0.5 when unseen).
func (a *Atma) RecordToolResult(tool string, success bool, latencyMs float64) {
	m, ok := a.mastery[tool]
	if !ok {
		m = &ToolMastery{}
		a.mastery[tool] = m
	}

	predicted := 0.5
	if m.Samples > 0 {
		predicted = m.SuccessRate
	}

	m.Samples++
	if success {
		m.successes++
	}
	m.SuccessRate = float64(m.successes) / float64(m.Samples)

	m.latencies = append(m.latencies, latencyMs)
	if len(m.latencies) > masteryLatencyWindow {
		m.latencies = m.latencies[1:]
	}
	m.LatencyMs = median(m.latencies)

	a.predictedSum += predicted
	if success {
		a.actualSum += 1
	}

	cal := a.Calibration()
	a.calibrationHistory = append(a.calibrationHistory, cal)
	if len(a.calibrationHistory) > calibrationWindow {
		a.calibrationHistory = a.calibrationHistory[1:]
	}
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Calibration returns predicted/actual success ratio. >1 means overconfident.
// Neutral (1.0) until there is at least one actual success.
func (a *Atma) Calibration() float64 {
	if a.actualSum == 0 {
		return 1.0
	}
	return a.predictedSum / a.actualSum
}

// LearningVelocity is the calibration drift over the recent window; negative
// means calibration is improving toward 1 from above.
func (a *Atma) LearningVelocity() float64 {
	n := len(a.calibrationHistory)
	if n < 2 {
		return 0
	}
	return (a.calibrationHistory[n-1] - a.calibrationHistory[0]) / float64(n-1)
}

// MarkToolDisabled records a known limitation.
func (a *Atma) MarkToolDisabled(tool, reason string) {
	a.limitations[tool+": "+reason] = true
}

// RecordStyle stores a style fingerprint entry (e.g. indent="tabs").
func (a *Atma) RecordStyle(key, value string) { a.style[key] = value }

// Mastery returns a copy of one tool's mastery record.
func (a *Atma) Mastery(tool string) (ToolMastery, bool) {
	if m, ok := a.mastery[tool]; ok {
		return *m, true
	}
	return ToolMastery{}, false
}

// Snapshot produces the serializable self-model.
func (a *Atma) Snapshot() SelfModel {
	tools := make(map[string]ToolMastery, len(a.mastery))
	for name, m := range a.mastery {
		tools[name] = *m
	}
	limits := make([]string, 0, len(a.limitations))
	for l := range a.limitations {
		limits = append(limits, l)
	}
	sort.Strings(limits)
	style := make(map[string]string, len(a.style))
	for k, v := range a.style {
		style[k] = v
	}
	return SelfModel{
		Calibration:      a.Calibration(),
		LearningVelocity: a.LearningVelocity(),
		StyleFingerprint: style,
		KnownLimitations: limits,
		ToolMastery:      tools,
	}
}

// Restore rebuilds the self-model from a snapshot.
func (a *Atma) Restore(s SelfModel) {
	a.mastery = make(map[string]*ToolMastery, len(s.ToolMastery))
	for name, m := range s.ToolMastery {
		restored := m
		restored.successes = int(m.SuccessRate*float64(m.Samples) + 0.5)
		a.mastery[name] = &restored
	}
	a.limitations = make(map[string]bool, len(s.KnownLimitations))
	for _, l := range s.KnownLimitations {
		a.limitations[l] = true
	}
	a.style = make(map[string]string, len(s.StyleFingerprint))
	for k, v := range s.StyleFingerprint {
		a.style[k] = v
	}
	// Seed the accumulators so calibration restores to the recorded ratio.
	a.actualSum = 1
	a.predictedSum = s.Calibration
	a.calibrationHistory = []float64{s.Calibration}
}
