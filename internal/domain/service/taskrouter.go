package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
	"github.com/chitragupta/chitragupta/gateway/internal/util/fnv"
)

// Route is the task router's verdict.
type Route struct {
	SlotID   string
	Strategy string // empty = direct dispatch to SlotID
	RuleName string
}

// TaskRouter matches tasks against the priority-ordered rule table. A
// fallback rule of type "always" with priority 0 is required; without one
// the router refuses to load the table.
type TaskRouter struct {
	mu     sync.RWMutex
	rules  []compiledRule
	slots  []entity.AgentSlot
	cache  map[string]Route
	logger *zap.Logger
}

type compiledRule struct {
	spec    config.RuleSpec
	pattern *regexp.Regexp // compiled for pattern rules
}

// NewTaskRouter compiles the rule table.
func NewTaskRouter(slots []entity.AgentSlot, rules []config.RuleSpec, logger *zap.Logger) (*TaskRouter, error) {
	r := &TaskRouter{
		slots:  slots,
		cache:  make(map[string]Route),
		logger: logger.With(zap.String("component", "task-router")),
	}
	if err := r.ReplaceRules(rules); err != nil {
		return nil, err
	}
	return r, nil
}

// ReplaceRules swaps the rule table (hot reload path).
func (r *TaskRouter) ReplaceRules(rules []config.RuleSpec) error {
	compiled := make([]compiledRule, 0, len(rules))
	hasFallback := false
	for _, spec := range rules {
		cr := compiledRule{spec: spec}
		if spec.Type == "pattern" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return fmt.Errorf("rule %q: bad pattern: %w", spec.Name, err)
			}
			cr.pattern = re
		}
		if spec.Type == "always" && spec.Priority == 0 {
			hasFallback = true
		}
		compiled = append(compiled, cr)
	}
	if !hasFallback {
		return fmt.Errorf("rule table needs an always/priority-0 fallback rule")
	}

	// Highest priority first; stable for equal priorities.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].spec.Priority > compiled[j].spec.Priority
	})

	r.mu.Lock()
	r.rules = compiled
	r.cache = make(map[string]Route)
	r.mu.Unlock()
	return nil
}

// ReplaceSlots swaps the slot list.
func (r *TaskRouter) ReplaceSlots(slots []entity.AgentSlot) {
	r.mu.Lock()
	r.slots = slots
	r.cache = make(map[string]Route)
	r.mu.Unlock()
}

// Slots returns the registered slots.
func (r *TaskRouter) Slots() []entity.AgentSlot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.AgentSlot, len(r.slots))
	copy(out, r.slots)
	return out
}

func cacheKey(task *entity.Task) string {
	return task.Type + "|" + fnv.Sum(task.Description)
}

// Route matches the task against the table, consulting the cache first.
func (r *TaskRouter) Route(task *entity.Task) Route {
	key := cacheKey(task)

	r.mu.RLock()
	if route, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return route
	}
	r.mu.RUnlock()

	route := r.match(task)

	r.mu.Lock()
	r.cache[key] = route
	r.mu.Unlock()
	return route
}

// RouteAndTransform routes and applies the rule's task transform (currently
// priority bumping).
func (r *TaskRouter) RouteAndTransform(task *entity.Task) Route {
	route := r.Route(task)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cr := range r.rules {
		if cr.spec.Name != route.RuleName {
			continue
		}
		if cr.spec.BumpPriority != "" {
			bumped := entity.Priority(cr.spec.BumpPriority)
			if bumped.Rank() > task.Priority.Rank() {
				task.Priority = bumped
			}
		}
		break
	}
	return route
}

// ClearCache drops all cached routes.
func (r *TaskRouter) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]Route)
	r.mu.Unlock()
}

func (r *TaskRouter) match(task *entity.Task) Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cr := range r.rules {
		if r.ruleMatches(cr, task) {
			return Route{SlotID: cr.spec.TargetSlot, Strategy: cr.spec.Strategy, RuleName: cr.spec.Name}
		}
	}
	// Unreachable with a valid table; the fallback always matches.
	return Route{}
}

func (r *TaskRouter) ruleMatches(cr compiledRule, task *entity.Task) bool {
	desc := strings.ToLower(task.Description)

	switch cr.spec.Type {
	case "always":
		return true
	case "keyword":
		for _, kw := range cr.spec.Keywords {
			if strings.Contains(desc, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	case "pattern":
		return cr.pattern != nil && cr.pattern.MatchString(task.Description)
	case "capability":
		// Required capabilities come from the task; the rule's own list is a
		// fallback for statically-typed rule tables.
		required := toSet(taskCapabilities(task))
		if len(required) == 0 {
			required = toSet(cr.spec.Capabilities)
		}
		if len(required) == 0 {
			return false
		}
		for _, slot := range r.slots {
			if cr.spec.TargetSlot != "" && slot.ID != cr.spec.TargetSlot {
				continue
			}
			if setJaccard(required, toSet(slot.Capabilities)) >= 0.3 {
				return true
			}
		}
		return false
	case "file_type":
		candidates := []string{desc}
		if task.Context != nil {
			if f, ok := task.Context["file"].(string); ok {
				candidates = append(candidates, strings.ToLower(f))
			}
		}
		for _, ext := range cr.spec.Extensions {
			for _, c := range candidates {
				if strings.HasSuffix(c, strings.ToLower(ext)) {
					return true
				}
			}
		}
		return false
	case "expression":
		return evalExpression(cr.spec.Expression, task)
	default:
		return false
	}
}

// evalExpression evaluates the tiny rule DSL: clauses of the form
// `task.type == "X"` and `task.description contains "Y"` joined by `and`.
func evalExpression(expr string, task *entity.Task) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	clauses := strings.Split(expr, " and ")
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "task.type =="):
			want := strings.Trim(strings.TrimSpace(strings.TrimPrefix(clause, "task.type ==")), `"`)
			if task.Type != want {
				return false
			}
		case strings.HasPrefix(clause, "task.description contains"):
			want := strings.Trim(strings.TrimSpace(strings.TrimPrefix(clause, "task.description contains")), `"`)
			if !strings.Contains(strings.ToLower(task.Description), strings.ToLower(want)) {
				return false
			}
		default:
			return false // unknown clause shapes fail closed
		}
	}
	return true
}

// taskCapabilities reads the required capability list from task context.
func taskCapabilities(task *entity.Task) []string {
	if task.Context == nil {
		return nil
	}
	switch v := task.Context["capabilities"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out[s] = true
		}
	}
	return out
}

func setJaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
