package config

import (
	"sort"
	"strings"

	logx "padcast/pkg/logx"
)

// SummarizeChange returns (1) a sorted list of changed sections, (2) log
// fields describing the new values and (3) the names of plugins whose
// enabled flag or argument changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Ingest != newCfg.Ingest {
		changed = append(changed, "ingest")
		attrs = append(attrs, logx.String("ingest.source", newCfg.Ingest.Source))
	}
	if oldCfg.Sender != newCfg.Sender {
		changed = append(changed, "sender")
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs, logx.Bool("status.enabled", newCfg.Status.Enabled), logx.String("status.addr", newCfg.Status.Addr))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Watch != newCfg.Watch || strings.TrimSpace(oldCfg.ShutdownTimeout) != strings.TrimSpace(newCfg.ShutdownTimeout) {
		changed = append(changed, "host")
	}

	pluginChanged := diffPlugins(oldCfg.Plugins, newCfg.Plugins)
	if len(pluginChanged) > 0 {
		changed = append(changed, "plugins")
		attrs = append(attrs,
			logx.Int("plugins.changed_count", len(pluginChanged)),
			logx.Int("plugins.enabled_count", len(newCfg.EnabledPlugins())),
		)
	}

	sort.Strings(changed)
	return changed, attrs, pluginChanged
}

// OnlyLogging reports whether sections lists nothing that needs a restart.
func OnlyLogging(sections []string) bool {
	for _, s := range sections {
		if s != "logging" {
			return false
		}
	}
	return true
}

func diffPlugins(oldList, newList []PluginConfig) []string {
	index := func(list []PluginConfig) map[string]PluginConfig {
		m := make(map[string]PluginConfig, len(list))
		for _, p := range list {
			m[p.Name] = p
		}
		return m
	}
	oldM, newM := index(oldList), index(newList)

	out := []string{}
	for name, np := range newM {
		if op, ok := oldM[name]; !ok || op != np {
			out = append(out, name)
		}
	}
	for name := range oldM {
		if _, ok := newM[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
