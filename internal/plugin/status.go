package plugin

import "time"

type State string

const (
	StateUnloaded State = "unloaded"
	StateStarted  State = "started"
)

// PluginStatus is a point-in-time view of one registered plugin.
type PluginStatus struct {
	Name         string    `json:"name"`
	Arg          string    `json:"arg"`
	State        State     `json:"state"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	PadEvents    uint64    `json:"pad_events"`
	TimerFirings uint64    `json:"timer_firings"`
	Timers       int       `json:"timers"`
	Reloads      int       `json:"reloads"`
	LastReload   time.Time `json:"last_reload,omitempty"`
}

type PluginsSnapshot struct {
	Running   bool           `json:"running"`
	QueueLen  int            `json:"queue_len"`
	QueueCap  int            `json:"queue_cap"`
	Dropped   uint64         `json:"dropped"`
	Plugins   []PluginStatus `json:"plugins"`
	Generated time.Time      `json:"generated"`
}
