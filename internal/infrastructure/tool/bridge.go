package tool

import (
	"context"
	"fmt"
	"strings"

	domaintool "github.com/chitragupta/chitragupta/gateway/internal/domain/tool"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/tantra"
)

// InternalToMCP exposes a registered tool in MCP shape: results become text
// content parts, exceptions become isError results with the message as text.
func InternalToMCP(t domaintool.Tool) func(ctx context.Context, args map[string]any) *tantra.CallToolResult {
	return func(ctx context.Context, args map[string]any) *tantra.CallToolResult {
		result, err := t.Execute(ctx, args)
		if err != nil {
			return &tantra.CallToolResult{
				IsError: true,
				Content: []tantra.ContentPart{{Type: "text", Text: err.Error()}},
			}
		}
		out := &tantra.CallToolResult{
			IsError: !result.Success,
			Content: []tantra.ContentPart{{Type: "text", Text: result.Output}},
		}
		if !result.Success && result.Error != "" {
			out.Content = []tantra.ContentPart{{Type: "text", Text: result.Error}}
		}
		return out
	}
}

// MCPTool adapts one federated MCP tool to the internal Tool contract.
type MCPTool struct {
	def    tantra.AggregatedTool
	client *tantra.Client
}

// NewMCPTool builds the adapter; the tool registers under its namespaced
// name so duplicate tool names across servers never collide.
func NewMCPTool(def tantra.AggregatedTool, client *tantra.Client) *MCPTool {
	return &MCPTool{def: def, client: client}
}

func (t *MCPTool) Name() string        { return t.def.NamespacedName }
func (t *MCPTool) Description() string { return t.def.Description }
func (t *MCPTool) Kind() domaintool.Kind {
	return domaintool.KindFetch // federated side effects happen off-host
}

func (t *MCPTool) Schema() map[string]interface{} {
	if t.def.InputSchema != nil {
		return t.def.InputSchema
	}
	return map[string]interface{}{"type": "object"}
}

// Execute calls the remote tool and collapses the multi-part result into a
// single string: text parts join with newlines, resources contribute their
// text, images collapse to a placeholder.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	result, err := t.client.CallTool(ctx, t.def.OriginalName, args)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	output := CollapseContent(result.Content)
	if result.IsError {
		return &domaintool.Result{Success: false, Output: output, Error: output}, nil
	}
	return &domaintool.Result{Success: true, Output: output}, nil
}

// CollapseContent flattens MCP content parts to one string.
func CollapseContent(parts []tantra.ContentPart) string {
	var texts []string
	for _, p := range parts {
		switch p.Type {
		case "text":
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case "resource":
			if p.Resource != nil && p.Resource.Text != "" {
				texts = append(texts, p.Resource.Text)
			}
		case "image":
			mime := p.MimeType
			if mime == "" {
				mime = "unknown"
			}
			texts = append(texts, fmt.Sprintf("[image: %s]", mime))
		}
	}
	return strings.Join(texts, "\n")
}

// RegisterFederatedTools registers every aggregated tool with the registry.
// Returns the number registered.
func RegisterFederatedTools(registry domaintool.Registry, agg *tantra.Aggregator) int {
	registered := 0
	for _, def := range agg.GetAllTools() {
		client, ok := agg.Client(def.ServerID)
		if !ok {
			continue
		}
		if err := registry.Register(NewMCPTool(def, client)); err != nil {
			continue
		}
		registered++
	}
	return registered
}
