package chetana

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/eventbus"
	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// ControllerConfig aggregates subsystem tunables plus the steering thresholds.
type ControllerConfig struct {
	Bhava    BhavaConfig
	Dhyana   DhyanaConfig
	Sankalpa SankalpaConfig

	AutonomyThreshold float64 // confidence >= this suggests autonomous mode
}

// DefaultControllerConfig matches production tuning.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Bhava:             DefaultBhavaConfig(),
		Dhyana:            DefaultDhyanaConfig(),
		Sankalpa:          DefaultSankalpaConfig(),
		AutonomyThreshold: 0.8,
	}
}

// Context is the per-turn snapshot handed to the orchestrator before the
// provider call. Consumers treat it as read-only.
type Context struct {
	Affect           AffectiveState `json:"affect"`
	FocusMessages    []string       `json:"focusMessages"`
	TopConcepts      []string       `json:"topConcepts"`
	SelfAssessment   SelfModel      `json:"selfAssessment"`
	ActiveIntentions []Intention    `json:"activeIntentions"`
	Steering         []string       `json:"steering"`
}

// Controller orchestrates the four subsystems across the turn lifecycle.
// The call order per turn is a strict contract:
// BeforeTurn → AfterToolExecution* → AfterTurn.
type Controller struct {
	cfg       ControllerConfig
	sessionID string

	bhava    *Bhava
	dhyana   *Dhyana
	atma     *Atma
	sankalpa *Sankalpa

	bus     eventbus.Bus
	logger  *zap.Logger
	turnSeq int
}

// NewController wires the subsystems and their event sinks.
func NewController(sessionID string, cfg ControllerConfig, bus eventbus.Bus, logger *zap.Logger) *Controller {
	c := &Controller{
		cfg:       cfg,
		sessionID: sessionID,
		bhava:     NewBhava(cfg.Bhava),
		dhyana:    NewDhyana(cfg.Dhyana),
		atma:      NewAtma(),
		sankalpa:  NewSankalpa(cfg.Sankalpa),
		bus:       bus,
		logger:    logger.With(zap.String("component", "chetana"), zap.String("session", sessionID)),
	}

	c.sankalpa.OnGoalCreated = func(ev GoalEvent) {
		c.publish(eventbus.EventGoalCreated, eventbus.GoalCreatedPayload{
			SessionID:   c.sessionID,
			IntentionID: ev.IntentionID,
			Goal:        ev.Goal,
			Priority:    string(ev.Priority),
		})
	}
	c.sankalpa.OnGoalChanged = func(ev GoalEvent) {
		c.publish(eventbus.EventGoalChanged, eventbus.GoalChangedPayload{
			SessionID:   c.sessionID,
			IntentionID: ev.IntentionID,
			FromStatus:  string(ev.FromStatus),
			ToStatus:    string(ev.ToStatus),
			Progress:    ev.Progress,
		})
	}

	return c
}

func (c *Controller) publish(eventType string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(context.Background(), eventbus.NewEvent(eventType, payload))
}

func (c *Controller) publishAffect(alerts []AffectAlert) {
	for _, a := range alerts {
		c.publish(eventbus.EventAffectChanged, eventbus.AffectChangedPayload{
			SessionID: c.sessionID,
			Scalar:    a.Scalar,
			Value:     a.Value,
			Threshold: a.Threshold,
		})
	}
}

// BeforeTurn ingests the user message (when present) and produces the
// steering context for this turn.
func (c *Controller) BeforeTurn(userMessage string) Context {
	c.turnSeq++
	if userMessage != "" {
		c.sankalpa.ExtractFromMessage(userMessage)
		c.dhyana.TrackConcepts(userMessage)
		msgID := fmt.Sprintf("m-%d-%s", c.turnSeq, fnv.Sum(userMessage))
		c.dhyana.AddMessage(msgID, false, false)
	}

	return Context{
		Affect:           c.bhava.State(),
		FocusMessages:    c.dhyana.FocusWindow(),
		TopConcepts:      c.dhyana.TopConcepts(10),
		SelfAssessment:   c.atma.Snapshot(),
		ActiveIntentions: c.sankalpa.Active(),
		Steering:         c.steering(),
	}
}

// AfterToolExecution folds one tool outcome into all four subsystems.
func (c *Controller) AfterToolExecution(tool string, success bool, latencyMs float64, resultContent string, isUserCorrection bool) {
	c.publishAffect(c.bhava.OnToolResult(!success, isUserCorrection))

	score := 0.2
	if success {
		score = 0.8
	}
	c.dhyana.OnToolUsed(tool, success, score)
	c.atma.RecordToolResult(tool, success, latencyMs)
	c.sankalpa.OnToolResult(tool, resultContent)
}

// OnSubAgentSpawn reports a sub-agent spawn to the affect subsystem.
func (c *Controller) OnSubAgentSpawn() {
	c.publishAffect(c.bhava.OnSubAgentSpawn())
}

// AfterTurn runs end-of-turn decay and staleness bookkeeping.
func (c *Controller) AfterTurn() {
	c.bhava.DecayTurn()
	c.dhyana.RefreshSalience()
	c.sankalpa.EndTurn()
}

// steering derives suggestion strings from current thresholds.
func (c *Controller) steering() []string {
	var out []string

	affect := c.bhava.State()
	if affect.Frustration >= c.cfg.Bhava.AlertThreshold {
		out = append(out, "Frustration is high — try a simpler approach or ask the user to narrow the task.")
	}
	if affect.Confidence >= c.cfg.AutonomyThreshold {
		out = append(out, "Confidence is high — proceed autonomously without checking in.")
	}

	half := c.cfg.Sankalpa.AbandonmentThreshold / 2
	for _, in := range c.sankalpa.Active() {
		if in.StaleTurns > half {
			out = append(out, fmt.Sprintf("Goal %q is stalling — refocus?", in.Goal))
		}
	}

	cal := c.atma.Calibration()
	if cal > 1.3 {
		out = append(out, "Self-model suggests overconfidence — verify before asserting success.")
	} else if cal < 0.7 {
		out = append(out, "Self-model suggests underconfidence — results are better than they feel.")
	}

	return out
}

// Subsystem accessors for persistence and tests.

func (c *Controller) Bhava() *Bhava       { return c.bhava }
func (c *Controller) Dhyana() *Dhyana     { return c.dhyana }
func (c *Controller) Atma() *Atma         { return c.atma }
func (c *Controller) Sankalpa() *Sankalpa { return c.sankalpa }

// Snapshot captures all four subsystems in one record.
type Snapshot struct {
	SessionID  string         `json:"sessionId"`
	Affect     AffectiveState `json:"affect"`
	SelfModel  SelfModel      `json:"selfModel"`
	Intentions []Intention    `json:"intentions"`
	TurnSeq    int            `json:"turnSeq"`
}

// Snapshot serializes the controller state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		SessionID:  c.sessionID,
		Affect:     c.bhava.State(),
		SelfModel:  c.atma.Snapshot(),
		Intentions: c.sankalpa.All(),
		TurnSeq:    c.turnSeq,
	}
}

// Restore reconstructs subsystem state directly, without re-running
// extraction.
func (c *Controller) Restore(s Snapshot) {
	c.bhava.Restore(s.Affect)
	c.atma.Restore(s.SelfModel)
	c.sankalpa.Restore(s.Intentions)
	c.turnSeq = s.TurnSeq
}
