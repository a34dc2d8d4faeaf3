package tantra

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeServerName maps a configured server name to its namespace form.
func SanitizeServerName(name string) string {
	return sanitizeRe.ReplaceAllString(name, "_")
}

// AggregatedTool is one tool under its federated name.
type AggregatedTool struct {
	ServerID       string         `json:"serverId"`
	NamespacedName string         `json:"namespacedName"` // "{server}.{tool}"
	OriginalName   string         `json:"originalName"`
	Description    string         `json:"description"` // "[{server}] " prefixed
	InputSchema    map[string]any `json:"inputSchema,omitempty"`
}

// ToolRoute resolves a federated call to a concrete server and tool.
type ToolRoute struct {
	ServerID string
	ToolName string // original, un-namespaced
	Args     map[string]any
}

// serverEntry tracks one federated server.
type serverEntry struct {
	id        string // sanitized
	client    *Client
	tools     []ToolDef
	resources []ResourceDef
}

// Aggregator merges the tools and resources of every connected server into
// one namespaced view with routing and fuzzy discovery.
type Aggregator struct {
	mu      sync.RWMutex
	servers map[string]*serverEntry // keyed by sanitized id
	order   []string                // registration order for stable listings
	logger  *zap.Logger
}

// NewAggregator creates an empty federation.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		servers: make(map[string]*serverEntry),
		logger:  logger.With(zap.String("component", "tantra-aggregator")),
	}
}

// AddServer registers a connected client and caches its capabilities.
// List-changed notifications refresh the cache through UpdateServerTools.
func (a *Aggregator) AddServer(name string, client *Client, tools []ToolDef, resources []ResourceDef) string {
	id := SanitizeServerName(name)

	a.mu.Lock()
	if _, exists := a.servers[id]; !exists {
		a.order = append(a.order, id)
	}
	a.servers[id] = &serverEntry{id: id, client: client, tools: tools, resources: resources}
	a.mu.Unlock()

	a.logger.Info("Server federated",
		zap.String("server", id),
		zap.Int("tools", len(tools)),
		zap.Int("resources", len(resources)),
	)
	return id
}

// RemoveServer drops a server from the federation.
func (a *Aggregator) RemoveServer(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.servers, id)
	for i, o := range a.order {
		if o == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// UpdateServerTools replaces a server's cached tool list (the list-changed
// notification path).
func (a *Aggregator) UpdateServerTools(id string, tools []ToolDef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.servers[id]; ok {
		entry.tools = tools
	}
}

// Client returns the client behind a sanitized server id.
func (a *Aggregator) Client(id string) (*Client, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.servers[id]
	if !ok {
		return nil, false
	}
	return entry.client, true
}

// GetAllTools lists every federated tool under its namespaced name.
func (a *Aggregator) GetAllTools() []AggregatedTool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []AggregatedTool
	for _, id := range a.order {
		entry, ok := a.servers[id]
		if !ok {
			continue
		}
		for _, t := range entry.tools {
			out = append(out, AggregatedTool{
				ServerID:       id,
				NamespacedName: id + "." + t.Name,
				OriginalName:   t.Name,
				Description:    "[" + id + "] " + t.Description,
				InputSchema:    t.InputSchema,
			})
		}
	}
	return out
}

// GetAllResources lists every federated resource.
func (a *Aggregator) GetAllResources() []ResourceDef {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []ResourceDef
	for _, id := range a.order {
		if entry, ok := a.servers[id]; ok {
			out = append(out, entry.resources...)
		}
	}
	return out
}

// RouteToolCall resolves a (possibly namespaced) tool name. Dotted names
// split at the first dot; bare names search every server for an exact
// match. Unknown names return nil.
func (a *Aggregator) RouteToolCall(name string, args map[string]any) *ToolRoute {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if idx := strings.Index(name, "."); idx > 0 {
		serverID, toolName := name[:idx], name[idx+1:]
		if entry, ok := a.servers[serverID]; ok {
			for _, t := range entry.tools {
				if t.Name == toolName {
					return &ToolRoute{ServerID: serverID, ToolName: toolName, Args: args}
				}
			}
		}
		return nil
	}

	for _, id := range a.order {
		entry, ok := a.servers[id]
		if !ok {
			continue
		}
		for _, t := range entry.tools {
			if t.Name == name {
				return &ToolRoute{ServerID: id, ToolName: name, Args: args}
			}
		}
	}
	return nil
}

// ScoredTool is one fuzzy-search hit.
type ScoredTool struct {
	Tool  AggregatedTool
	Score float64
}

// FindTools fuzzy-matches the query against every federated tool.
// Scoring tiers: exact name 1.0, prefix 0.9, substring 0.7, description
// substring 0.4, character-set overlap >= 0.5 scores 0.1 + overlap*0.2.
func (a *Aggregator) FindTools(query string, limit int) []ScoredTool {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var out []ScoredTool
	for _, t := range a.GetAllTools() {
		name := strings.ToLower(t.OriginalName)
		namespaced := strings.ToLower(t.NamespacedName)
		desc := strings.ToLower(t.Description)

		var score float64
		switch {
		case name == q || namespaced == q:
			score = 1.0
		case strings.HasPrefix(name, q) || strings.HasPrefix(namespaced, q):
			score = 0.9
		case strings.Contains(name, q) || strings.Contains(namespaced, q):
			score = 0.7
		case strings.Contains(desc, q):
			score = 0.4
		default:
			if overlap := charSetOverlap(q, name); overlap >= 0.5 {
				score = 0.1 + overlap*0.2
			}
		}
		if score > 0 {
			out = append(out, ScoredTool{Tool: t, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Tool.NamespacedName < out[j].Tool.NamespacedName
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// charSetOverlap is the Jaccard of the two strings' character sets.
func charSetOverlap(a, b string) float64 {
	setA := make(map[rune]bool)
	for _, r := range a {
		setA[r] = true
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		setB[r] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	return float64(inter) / float64(len(setA)+len(setB)-inter)
}
