package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"padcast/internal/config"
	"padcast/internal/eventbus"
	"padcast/internal/host"
	"padcast/internal/ingest"
	"padcast/internal/plugin"
	"padcast/internal/runtime/supervisor"
	"padcast/internal/status"
	"padcast/internal/storage"
	logx "padcast/pkg/logx"
	"padcast/pkg/systemd"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	ingestMinBackoff       = 500 * time.Millisecond
	ingestMaxBackoff       = 30 * time.Second
)

type Options struct {
	Version  string
	Registry Registry
}

type App struct {
	cfgPath string
	version string

	cfgm *config.Manager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	journal *storage.Journal

	profiles *host.Profiles
	timers   *host.Timers
	sender   *host.UDPSender
	pm       *plugin.Manager
	ingest   *ingest.Runner
}

// New loads cfgPath, builds the logging service and every host service, and
// registers the enabled plugins. Nothing runs until Start.
func New(cfgPath string, opts Options) (*App, error) {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}

	// Bootstrap at info; loggers taken from logSvc follow the Apply below.
	logSvc, root := logx.New(logx.Config{Level: "info", Console: true})
	cfgm := config.NewManager(cfgPath, root)
	cfg, err := cfgm.Load()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.Apply(cfg.Logging.Logx())
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	sc, err := cfg.Storage.StorageOpen()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if st, err := storage.Open(sc, root.With(logx.String("comp", "storage"))); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if st != nil {
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	profiles := host.NewProfiles(root)
	timers := host.NewTimers(root)
	sender := host.NewUDPSender(root, config.DurationOr(cfg.Sender.WriteTimeout, 0))

	pm := plugin.NewManager(plugin.Deps{
		Logger:    root,
		Profiles:  profiles,
		Timers:    timers,
		Sender:    sender,
		Resolver:  host.NewResolver(),
		Bus:       bus,
		QueueSize: cfg.Ingest.QueueSize,
	})

	a := &App{
		cfgPath:  cfgPath,
		version:  opts.Version,
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		profiles: profiles,
		timers:   timers,
		sender:   sender,
		pm:       pm,
		ingest:   ingest.New(root, pm),
	}
	if store != nil {
		a.journal = storage.NewJournal(store, root)
		a.journal.PadEvents = cfg.Storage.PadEvents
	}

	if err := registerPlugins(pm, opts.Registry, cfg); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}
	return a, nil
}

func registerPlugins(pm *plugin.Manager, reg Registry, cfg *config.Config) error {
	for _, pc := range cfg.EnabledPlugins() {
		p, err := reg.New(pc.Name)
		if err != nil {
			return err
		}
		if err := pm.Register(p, pc.Argument); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

func (a *App) Ingest() *ingest.Runner { return a.ingest }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.journal != nil {
		a.sup.Go("storage.journal", func(c context.Context) error {
			return a.journal.Run(c, a.bus)
		})
	}

	if err := a.pm.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.startIngest()
	a.startWatchers()

	if a.cfg.Status.Enabled {
		src := status.Sources{Plugins: a.pm, Ingest: a.ingest, Version: a.version}
		if a.store != nil {
			src.Journal = a.store
		}
		srv := status.New(a.log, src)
		addr := a.cfg.Status.Addr
		a.sup.Go("status.http", func(c context.Context) error {
			return srv.Serve(c, addr)
		})
	}

	a.sup.Go("systemd.watchdog", systemd.Watchdog)
	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		_, _ = systemd.Status(fmt.Sprintf("dispatching to %d plugin(s)", len(a.pm.Snapshot().Plugins)))
	}

	a.log.Info("padcast started",
		logx.String("config", a.cfgPath),
		logx.String("version", a.version),
		logx.String("ingest", a.cfg.Ingest.Source),
		logx.Int("plugins", len(a.pm.Snapshot().Plugins)),
	)
	return nil
}

func (a *App) startIngest() {
	source := strings.TrimSpace(a.cfg.Ingest.Source)
	if strings.HasPrefix(source, "udp://") {
		a.sup.GoRestart("ingest", ingestMinBackoff, ingestMaxBackoff, func(c context.Context) error {
			return a.ingest.Run(c, source)
		})
		return
	}
	a.sup.Go("ingest", func(c context.Context) error {
		err := a.ingest.Run(c, source)
		if err == nil && c.Err() == nil && source != ingest.SourceNone {
			st := a.ingest.Stats()
			a.log.Info("ingest source exhausted; timers keep running",
				logx.String("source", source),
				logx.Uint64("accepted", st.Accepted),
				logx.Uint64("rejected", st.Rejected),
			)
		}
		return err
	})
}

func (a *App) startWatchers() {
	if !a.cfg.Watch {
		return
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	for _, pc := range a.cfg.EnabledPlugins() {
		name, arg := pc.Name, strings.TrimSpace(pc.Argument)
		if arg == "" {
			continue
		}
		a.sup.Go("plugin.watch."+name, func(c context.Context) error {
			return config.WatchFile(c, a.log, arg, config.DefaultDebounce, func() {
				_, _ = systemd.Reloading()
				if err := a.pm.Reload(c, name); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Warn("plugin reload failed", logx.String("plugin", name), logx.Err(err))
				}
				_, _ = systemd.Ready()
			})
		})
	}
}

// applyConfig re-applies logging live; everything else is reported and
// waits for a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, pluginChanged := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)

	a.logs.Apply(newCfg.Logging.Logx())

	if !config.OnlyLogging(sections) {
		a.log.Warn("config changed outside logging; restart required for changes to take effect",
			logx.String("sections", strings.Join(sections, ",")))
	}
	if len(pluginChanged) > 0 {
		a.log.Warn("plugin list changed; restart required", logx.Any("plugins", pluginChanged))
	}
}

// Stop frees every plugin, then stops background goroutines and closes
// resources. It is bounded by shutdown_timeout.
func (a *App) Stop(ctx context.Context) error {
	timeout := config.DurationOr(a.cfg.ShutdownTimeout, defaultShutdownTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _ = systemd.Stopping()
	a.log.Info("padcast stopping")

	var errs []error
	if err := a.pm.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("plugins: %w", err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	a.closeResources(ctx)
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) {
	if err := a.timers.Close(ctx); err != nil {
		a.log.Warn("timers close", logx.Err(err))
	}
	if err := a.sender.Close(); err != nil {
		a.log.Warn("sender close", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	_ = a.logs.Close()
}
