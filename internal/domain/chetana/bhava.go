// Package chetana implements the per-turn cognitive layer: affect (Bhava),
// attention (Dhyana), self-model (Atma-Darshana) and intentions (Sankalpa),
// orchestrated by the Controller. All state is owned by one session and is
// mutated single-threaded within a turn.
package chetana

import (
	"time"
)

// AffectiveState holds the four affect scalars. Every mutation clamps to [0,1].
type AffectiveState struct {
	Frustration float64 `json:"frustration"`
	Confidence  float64 `json:"confidence"`
	Arousal     float64 `json:"arousal"`
	Valence     float64 `json:"valence"`

	ConfidenceUpdatedAt int64 `json:"confidenceUpdatedAt"` // epoch ms
}

// BhavaConfig tunes affect dynamics.
type BhavaConfig struct {
	FrustrationDelta    float64 // added per tool error
	CorrectionDelta     float64 // added per user correction (larger)
	FrustrationRecovery float64 // multiplier per success
	ConfidenceDecay     float64 // multiplier per error
	ConfidenceSuccess   float64 // added per success
	ArousalSpawnDelta   float64 // added per sub-agent spawn
	AlertThreshold      float64 // crossing this fires an affect event
}

// DefaultBhavaConfig matches production tuning.
func DefaultBhavaConfig() BhavaConfig {
	return BhavaConfig{
		FrustrationDelta:    0.15,
		CorrectionDelta:     0.25,
		FrustrationRecovery: 0.9,
		ConfidenceDecay:     0.95,
		ConfidenceSuccess:   0.05,
		ArousalSpawnDelta:   0.1,
		AlertThreshold:      0.7,
	}
}

// AffectAlert reports a scalar crossing the alert threshold.
type AffectAlert struct {
	Scalar    string
	Value     float64
	Threshold float64
}

// Bhava is the affect subsystem.
type Bhava struct {
	state AffectiveState
	cfg   BhavaConfig

	// neutral drift targets for decayTurn
	neutralFrustration float64
	neutralArousal     float64
	neutralValence     float64
}

// NewBhava starts from a calm, mildly confident baseline.
func NewBhava(cfg BhavaConfig) *Bhava {
	return &Bhava{
		state: AffectiveState{
			Frustration:         0.1,
			Confidence:          0.6,
			Arousal:             0.3,
			Valence:             0.6,
			ConfidenceUpdatedAt: time.Now().UnixMilli(),
		},
		cfg:                cfg,
		neutralFrustration: 0.1,
		neutralArousal:     0.3,
		neutralValence:     0.6,
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

// OnToolResult applies one tool outcome. Returned alerts name scalars that
// crossed the threshold with this mutation.
func (b *Bhava) OnToolResult(isError, isUserCorrection bool) []AffectAlert {
	before := b.state

	switch {
	case isUserCorrection:
		b.state.Frustration = clamp01(b.state.Frustration + b.cfg.CorrectionDelta)
		b.state.Confidence = clamp01(b.state.Confidence * b.cfg.ConfidenceDecay)
	case isError:
		b.state.Frustration = clamp01(b.state.Frustration + b.cfg.FrustrationDelta)
		b.state.Confidence = clamp01(b.state.Confidence * b.cfg.ConfidenceDecay)
	default:
		b.state.Frustration = clamp01(b.state.Frustration * b.cfg.FrustrationRecovery)
		b.state.Confidence = clamp01(b.state.Confidence + b.cfg.ConfidenceSuccess)
		b.state.Valence = clamp01(b.state.Valence + 0.02)
	}
	b.state.ConfidenceUpdatedAt = time.Now().UnixMilli()

	return b.alerts(before)
}

// OnSubAgentSpawn bumps arousal, saturating at 1.
func (b *Bhava) OnSubAgentSpawn() []AffectAlert {
	before := b.state
	b.state.Arousal = clamp01(b.state.Arousal + b.cfg.ArousalSpawnDelta)
	return b.alerts(before)
}

// UpdateConfidence moves confidence toward the observed success rate (EMA).
func (b *Bhava) UpdateConfidence(successRate float64) {
	const alpha = 0.3
	b.state.Confidence = clamp01(b.state.Confidence*(1-alpha) + clamp01(successRate)*alpha)
	b.state.ConfidenceUpdatedAt = time.Now().UnixMilli()
}

// DecayTurn drifts all scalars toward their neutral values at end of turn.
func (b *Bhava) DecayTurn() {
	const drift = 0.1
	b.state.Frustration = clamp01(b.state.Frustration + (b.neutralFrustration-b.state.Frustration)*drift)
	b.state.Arousal = clamp01(b.state.Arousal + (b.neutralArousal-b.state.Arousal)*drift)
	b.state.Valence = clamp01(b.state.Valence + (b.neutralValence-b.state.Valence)*drift)
}

func (b *Bhava) alerts(before AffectiveState) []AffectAlert {
	var alerts []AffectAlert
	th := b.cfg.AlertThreshold
	if before.Frustration < th && b.state.Frustration >= th {
		alerts = append(alerts, AffectAlert{Scalar: "frustration", Value: b.state.Frustration, Threshold: th})
	}
	if before.Arousal < th && b.state.Arousal >= th {
		alerts = append(alerts, AffectAlert{Scalar: "arousal", Value: b.state.Arousal, Threshold: th})
	}
	if before.Confidence >= 1-th && b.state.Confidence < 1-th {
		alerts = append(alerts, AffectAlert{Scalar: "confidence", Value: b.state.Confidence, Threshold: 1 - th})
	}
	return alerts
}

// State returns a copy of the current affect state.
func (b *Bhava) State() AffectiveState { return b.state }

// Restore replaces the state wholesale (deserialization path).
func (b *Bhava) Restore(s AffectiveState) {
	s.Frustration = clamp01(s.Frustration)
	s.Confidence = clamp01(s.Confidence)
	s.Arousal = clamp01(s.Arousal)
	s.Valence = clamp01(s.Valence)
	b.state = s
}
