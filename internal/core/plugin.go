package core

import "fmt"

// Plugin contributes deployment specific consistency rules, for example a
// local policy on dataset naming or required info keys.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules []Rule
	names map[string]struct{}
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{names: make(map[string]struct{})}
}

// RegisterRule adds a consistency rule contributed by the plugin. Rule names
// must be unique within a plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) error {
	if rule == nil {
		return nil
	}
	if _, dup := r.names[rule.Name()]; dup {
		return fmt.Errorf("rule %s registered twice", rule.Name())
	}
	r.names[rule.Name()] = struct{}{}
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Rules   []string `json:"rules"`
}

// RegisterPlugin runs the plugin's registration and adds its rules to engine.
// Nothing is added when registration fails.
func RegisterPlugin(engine *RulesEngine, plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version()}
	for _, rule := range registry.Rules() {
		engine.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}
	return meta, nil
}
