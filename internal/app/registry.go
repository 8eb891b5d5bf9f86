package app

import (
	"fmt"
	"sort"

	"padcast/internal/plugin"
	"padcast/plugins/ando"
)

// Factory builds a fresh plugin instance.
type Factory func() plugin.Plugin

// Registry maps config plugin names to constructors.
type Registry map[string]Factory

// DefaultRegistry lists the plugins compiled into the host.
func DefaultRegistry() Registry {
	return Registry{
		ando.Name: func() plugin.Plugin { return ando.New() },
	}
}

func (r Registry) New(name string) (plugin.Plugin, error) {
	f, ok := r[name]
	if !ok || f == nil {
		return nil, fmt.Errorf("unknown plugin %q (available: %v)", name, r.Names())
	}
	return f(), nil
}

func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
