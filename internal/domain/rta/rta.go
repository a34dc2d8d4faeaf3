// Package rta is the invariant layer enforced before any tool execution.
// It is deliberately independent of the higher-level tool policy: a deny here
// is final and the policy engine is never consulted afterwards.
package rta

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckContext carries everything a rule may inspect. Optional fields are
// zero-valued when the caller has nothing to report.
type CheckContext struct {
	ToolName         string
	Args             map[string]interface{}
	WorkingDirectory string
	RecentMessages   []string
	SessionID        string

	// Sub-agent spawning
	AgentDepth          int
	AgentPurpose        string
	RecentSpawnPurposes []string

	// Cost accounting (USD)
	EstimatedCost  float64
	TotalCostSoFar float64
	CostBudget     float64

	// Network egress allow-list (exact host or dot-suffix)
	AllowedDomains []string
}

// Verdict is the outcome of one rule evaluation.
type Verdict struct {
	Allowed     bool   `json:"allowed"`
	RuleID      string `json:"rule_id"`
	Reason      string `json:"reason,omitempty"`
	Alternative string `json:"alternative,omitempty"`
}

// Rule is one invariant check.
type Rule interface {
	ID() string
	Check(ctx CheckContext) Verdict
}

// AuditEntry records one engine decision.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	ToolName  string    `json:"tool_name"`
	Allowed   bool      `json:"allowed"`
	RuleID    string    `json:"rule_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

const auditCapacity = 1000

// Engine evaluates the fixed ordered rule list.
type Engine struct {
	rules  []Rule
	logger *zap.Logger

	// Ring-buffered audit log, single writer.
	auditMu  sync.Mutex
	audit    []AuditEntry
	auditPos int
	auditLen int
}

// NewEngine builds the engine with the standard five rules in order.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		rules: []Rule{
			&CredentialLeakRule{},
			&DestructiveOverwriteRule{},
			&UnboundedRecursionRule{},
			&CostExplosionRule{},
			&DataExfiltrationRule{},
		},
		logger: logger.With(zap.String("component", "rta")),
		audit:  make([]AuditEntry, auditCapacity),
	}
}

// Check evaluates rules in order and short-circuits on the first deny.
// Rta denies are non-retryable; callers surface Reason and Alternative
// verbatim.
func (e *Engine) Check(ctx CheckContext) Verdict {
	for _, rule := range e.rules {
		v := rule.Check(ctx)
		if !v.Allowed {
			e.record(ctx, v)
			e.logger.Warn("Invariant violated",
				zap.String("rule", v.RuleID),
				zap.String("tool", ctx.ToolName),
				zap.String("reason", v.Reason),
			)
			return v
		}
	}
	allowed := Verdict{Allowed: true}
	e.record(ctx, allowed)
	return allowed
}

// CheckAll evaluates every rule and returns all verdicts.
func (e *Engine) CheckAll(ctx CheckContext) []Verdict {
	verdicts := make([]Verdict, 0, len(e.rules))
	for _, rule := range e.rules {
		v := rule.Check(ctx)
		verdicts = append(verdicts, v)
		e.record(ctx, v)
	}
	return verdicts
}

func (e *Engine) record(ctx CheckContext, v Verdict) {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()

	e.audit[e.auditPos] = AuditEntry{
		Timestamp: time.Now(),
		SessionID: ctx.SessionID,
		ToolName:  ctx.ToolName,
		Allowed:   v.Allowed,
		RuleID:    v.RuleID,
		Reason:    v.Reason,
	}
	e.auditPos = (e.auditPos + 1) % auditCapacity
	if e.auditLen < auditCapacity {
		e.auditLen++
	}
}

// AuditLog returns the recorded entries, oldest first.
func (e *Engine) AuditLog() []AuditEntry {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()

	out := make([]AuditEntry, 0, e.auditLen)
	start := e.auditPos - e.auditLen
	if start < 0 {
		start += auditCapacity
	}
	for i := 0; i < e.auditLen; i++ {
		out = append(out, e.audit[(start+i)%auditCapacity])
	}
	return out
}
