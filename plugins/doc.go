// Package plugins indexes the built-in rule plugins. Each plugin lives in its
// own subpackage and contributes consistency rules through core.Plugin.
//
// Plugin packages only see the rule API: they may import internal/core and
// pkg/domain but never the storage, blob or catalog layers.
package plugins

import (
	"sort"

	"beaconcore/internal/core"
	"beaconcore/plugins/provenance"
)

var builtin = map[string]func() core.Plugin{
	provenance.Name: func() core.Plugin { return provenance.New() },
}

// Lookup returns a fresh instance of the named built-in plugin.
func Lookup(name string) (core.Plugin, bool) {
	ctor, ok := builtin[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Names lists the built-in plugins.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
