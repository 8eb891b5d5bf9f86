package app

import (
	"context"
	"errors"
	"fmt"

	"padcast/internal/config"
	"padcast/internal/host"
	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

// Check validates cfgPath and every enabled plugin's argument file, then
// runs one Start/Free cycle with datagrams logged instead of sent.
func Check(ctx context.Context, cfgPath string, reg Registry, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}

	profiles := host.NewProfiles(log)
	var errs []error
	for _, pc := range cfg.EnabledPlugins() {
		if pc.Argument == "" {
			continue
		}
		if err := profiles.Load(pc.Argument); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: argument file: %w", pc.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	pm := plugin.NewManager(plugin.Deps{
		Logger:   log,
		Profiles: profiles,
		Sender:   host.DryRunSender{Log: log},
		Resolver: host.NewResolver(),
	})
	if err := registerPlugins(pm, reg, cfg); err != nil {
		return err
	}
	if err := pm.Start(ctx); err != nil {
		return err
	}
	return pm.Stop(ctx)
}
