// Package tool wires the registry, the policy-aware executor, the MCP bridge
// and the local skipLLM handlers.
package tool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domaintool "github.com/chitragupta/chitragupta/gateway/internal/domain/tool"
)

// Executor resolves and runs registered tools. It implements the service
// layer's ToolExecutor contract. The Rta gate runs in the orchestrator
// before this layer is ever reached; the policy here is the ordinary
// allow/deny configuration, a separate concern from the invariants.
type Executor struct {
	registry domaintool.Registry
	denied   map[string]bool
	logger   *zap.Logger
}

// NewExecutor wraps a registry. deniedTools is the configured deny-list.
func NewExecutor(registry domaintool.Registry, deniedTools []string, logger *zap.Logger) *Executor {
	denied := make(map[string]bool, len(deniedTools))
	for _, name := range deniedTools {
		denied[name] = true
	}
	return &Executor{
		registry: registry,
		denied:   denied,
		logger:   logger.With(zap.String("component", "tool-executor")),
	}
}

// Execute runs one tool by name.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	if e.denied[name] {
		return &domaintool.Result{
			Success: false,
			Error:   fmt.Sprintf("tool %q is disabled by configuration", name),
		}, nil
	}

	t, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %s not registered", name)
	}

	start := time.Now()
	result, err := t.Execute(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn("Tool execution failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Debug("Tool executed",
		zap.String("tool", name),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// GetDefinitions lists every registered tool.
func (e *Executor) GetDefinitions() []domaintool.Definition {
	return e.registry.List()
}

// GetToolKind returns a tool's kind, defaulting to execute for unknowns.
func (e *Executor) GetToolKind(name string) domaintool.Kind {
	if t, ok := e.registry.Get(name); ok {
		return t.Kind()
	}
	return domaintool.KindExecute
}
