// Package service is the orchestration layer: request classification (Marga),
// task routing and dispatch strategies, the strategy bandit, retry policy and
// the per-turn orchestrator loop.
package service

import (
	"context"
	"time"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	domaintool "github.com/chitragupta/chitragupta/gateway/internal/domain/tool"
)

// ProviderRequest is the canonical request shape handed to a provider client.
// Wire-format translation to specific vendors happens outside the core.
type ProviderRequest struct {
	Messages    []entity.Message        `json:"messages"`
	Tools       []domaintool.Definition `json:"tools,omitempty"`
	Model       string                  `json:"model"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature float64                 `json:"temperature"`
}

// ProviderResponse is the canonical provider reply.
type ProviderResponse struct {
	Content   string                `json:"content"`
	ToolCalls []entity.ToolCallInfo `json:"tool_calls,omitempty"`
	Usage     entity.Usage          `json:"usage"`
	Model     string                `json:"model"`
}

// ProviderClient is one LLM provider binding.
type ProviderClient interface {
	ID() string
	// Available reports whether the provider can take requests right now.
	Available() bool
	// Models lists the model ids this provider serves.
	Models() []string
	Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// ProviderRegistry resolves provider ids. Supplied by the CLI contract.
type ProviderRegistry interface {
	Get(id string) (ProviderClient, bool)
	List() []ProviderClient
}

// ToolExecutor executes tools by name. Supplied by the tool layer.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error)
	GetDefinitions() []domaintool.Definition
	GetToolKind(name string) domaintool.Kind
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	ProviderID string
	StatusCode int
	RetryAfter *time.Duration
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return "provider " + e.ProviderID + ": " + e.Message + ": " + e.Cause.Error()
	}
	return "provider " + e.ProviderID + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// TimeoutError marks an operation that exceeded its budget. Retryable.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return "timeout: " + e.Op + " after " + e.Elapsed.String()
}

// CancellationError marks caller-initiated cancellation. Never logged as a
// failure and never retried.
type CancellationError struct{ Op string }

func (e *CancellationError) Error() string { return "cancelled: " + e.Op }

// BudgetExceeded is fatal for the turn (surfaced from the cost rule).
type BudgetExceeded struct{ Reason string }

func (e *BudgetExceeded) Error() string { return "budget exceeded: " + e.Reason }
