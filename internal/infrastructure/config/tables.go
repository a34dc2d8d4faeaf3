package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Declarative routing tables. These are YAML files separate from config.yaml
// so they can be hot-reloaded without touching process-level settings.

// SlotSpec declares one agent slot in slots.yaml.
type SlotSpec struct {
	ID            string   `yaml:"id"`
	Role          string   `yaml:"role"`
	Capabilities  []string `yaml:"capabilities"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	AutoScale     bool     `yaml:"auto_scale"`
	MinInstances  int      `yaml:"min_instances"`
	MaxInstances  int      `yaml:"max_instances"`
}

// RuleSpec declares one routing rule in slots.yaml.
type RuleSpec struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"` // keyword, pattern, capability, file_type, expression, always
	Priority     int      `yaml:"priority"`
	Keywords     []string `yaml:"keywords,omitempty"`
	Pattern      string   `yaml:"pattern,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Extensions   []string `yaml:"extensions,omitempty"`
	Expression   string   `yaml:"expression,omitempty"`
	TargetSlot   string   `yaml:"target_slot"`
	Strategy     string   `yaml:"strategy,omitempty"`      // round_robin, least_loaded, ...
	BumpPriority string   `yaml:"bump_priority,omitempty"` // transform: raise task priority
}

// SlotsFile is the top-level shape of slots.yaml.
type SlotsFile struct {
	Slots []SlotSpec `yaml:"slots"`
	Rules []RuleSpec `yaml:"rules"`
}

// BindingSpec declares one Marga binding in bindings.yaml. Bindings are
// consulted in file order; first available provider wins.
type BindingSpec struct {
	TaskType      string   `yaml:"task_type"`
	MinComplexity string   `yaml:"min_complexity"`
	MaxComplexity string   `yaml:"max_complexity"`
	Providers     []string `yaml:"providers"`
	Models        []string `yaml:"models"`
}

// BindingsFile is the top-level shape of bindings.yaml.
type BindingsFile struct {
	Bindings []BindingSpec `yaml:"bindings"`
}

// LoadSlots parses slots.yaml.
func LoadSlots(path string) (*SlotsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slots file: %w", err)
	}
	var f SlotsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse slots file: %w", err)
	}
	return &f, nil
}

// LoadBindings parses bindings.yaml.
func LoadBindings(path string) (*BindingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bindings file: %w", err)
	}
	var f BindingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bindings file: %w", err)
	}
	return &f, nil
}
