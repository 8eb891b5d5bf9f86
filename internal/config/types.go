package config

import (
	"padcast/internal/storage"
	logx "padcast/pkg/logx"
)

type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Plugins []PluginConfig `json:"plugins"`
	Ingest  IngestConfig   `json:"ingest"`
	Sender  SenderConfig   `json:"sender"`
	Status  StatusConfig   `json:"status"`
	Storage StorageConfig  `json:"storage"`

	// Watch reloads a plugin when its argument file changes and re-applies
	// logging when this file changes.
	Watch bool `json:"watch"`
	// ShutdownTimeout is a Go duration string (e.g. "10s").
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// PluginConfig loads one plugin. Argument is handed to the plugin's Start;
// for file based plugins it is the path of the argument file.
type PluginConfig struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Argument string `json:"argument"`
}

// IngestConfig selects where PAD events come from.
//
// Source values:
//   - "stdin"
//   - "udp://127.0.0.1:5859"
//   - a file path (read once to EOF)
//   - "none"
type IngestConfig struct {
	Source    string `json:"source"`
	QueueSize int    `json:"queue_size,omitempty"`
}

type SenderConfig struct {
	// WriteTimeout is a Go duration string; default 500ms.
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// StorageConfig controls the optional audit journal.
//
// Example:
//
//	storage: {driver: sqlite, path: ./padcast.db, retain: 10000}
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retain      int    `json:"retain,omitempty"`
	// PadEvents journals every dispatched PAD event, not only drops.
	PadEvents bool `json:"pad_events,omitempty"`
}

func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File: LoggingFile{
				Path:       "./padcast.log",
				MaxSizeMB:  10,
				MaxBackups: 3,
			},
		},
		Ingest:          IngestConfig{Source: "stdin", QueueSize: 256},
		Sender:          SenderConfig{WriteTimeout: "500ms"},
		Status:          StatusConfig{Addr: "127.0.0.1:8088"},
		Storage:         StorageConfig{Driver: "none", Path: "./padcast.db"},
		Watch:           true,
		ShutdownTimeout: "10s",
	}
}

func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled:    c.File.Enabled,
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}

// StorageOpen maps the storage section to storage.Config.
func (c StorageConfig) StorageOpen() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy, Retain: c.Retain}, nil
}

// EnabledPlugins returns the enabled entries in file order.
func (c *Config) EnabledPlugins() []PluginConfig {
	out := make([]PluginConfig, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
