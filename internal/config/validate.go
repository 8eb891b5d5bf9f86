package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	logx "padcast/pkg/logx"
)

func (c *Config) Validate() error {
	var errs []error

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}

	seen := map[string]bool{}
	for i, p := range c.Plugins {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("plugins[%d].name is required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("plugins[%d]: duplicate plugin %q", i, name))
		}
		seen[name] = true
	}

	if c.Ingest.QueueSize < 0 {
		errs = append(errs, errors.New("ingest.queue_size must be >= 0"))
	}
	if src := strings.TrimSpace(c.Ingest.Source); strings.HasPrefix(src, "udp://") {
		if _, _, err := net.SplitHostPort(strings.TrimPrefix(src, "udp://")); err != nil {
			errs = append(errs, fmt.Errorf("ingest.source: %w", err))
		}
	}

	if _, err := ParseDurationField("sender.write_timeout", c.Sender.WriteTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("shutdown_timeout", c.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			errs = append(errs, fmt.Errorf("status.addr: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", c.Storage.Driver))
		}
		if _, err := c.Storage.StorageOpen(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Retain < 0 {
		errs = append(errs, errors.New("storage.retain must be >= 0"))
	}

	return errors.Join(errs...)
}
