package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Kind classifies tool operations for automatic policy decisions.
type Kind string

const (
	KindRead        Kind = "read"        // read-only (read_file, list_dir...)
	KindEdit        Kind = "edit"        // mutates files (write_file, patch...)
	KindExecute     Kind = "execute"     // runs commands (shell, run...)
	KindDelete      Kind = "delete"      // deletes
	KindSearch      Kind = "search"      // search (web_search, grep...)
	KindFetch       Kind = "fetch"       // network fetch
	KindThink       Kind = "think"       // pure bookkeeping (save_memory, plan...)
	KindCommunicate Kind = "communicate" // user interaction
)

// MutatorKinds are side-effecting operation kinds.
var MutatorKinds = map[Kind]bool{
	KindEdit:    true,
	KindDelete:  true,
	KindExecute: true,
}

// SafeKinds are automatically allowed read-only kinds.
var SafeKinds = map[Kind]bool{
	KindRead:   true,
	KindSearch: true,
	KindThink:  true,
}

// Tool is the abstraction every executable tool implements.
type Tool interface {
	Name() string
	Description() string
	Kind() Kind
	// Schema returns the JSON Schema of the tool's arguments.
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result is a tool execution outcome.
type Result struct {
	Output   string // condensed result for the model
	Success  bool
	Metadata map[string]interface{}
	Error    string
}

// Definition is the shape handed to providers and federated peers.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry stores tools by name.
type Registry interface {
	Register(tool Tool) error
	Unregister(name string) error
	Get(name string) (Tool, bool)
	List() []Definition
	Has(name string) bool
}

// InMemoryRegistry is the standard Registry implementation.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]Tool)}
}

func (r *InMemoryRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// MarshalJSON serializes a result for turn records.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"output":   r.Output,
		"success":  r.Success,
		"metadata": r.Metadata,
		"error":    r.Error,
	})
}
