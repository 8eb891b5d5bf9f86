package plugin

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"padcast/internal/eventbus"
	"padcast/internal/runtime/supervisor"
	logx "padcast/pkg/logx"
)

var (
	ErrDuplicate     = errors.New("plugin already registered")
	ErrNotRegistered = errors.New("plugin not registered")
	ErrNotRunning    = errors.New("plugin manager not running")
	ErrRunning       = errors.New("plugin manager already running")
	ErrNoSender      = errors.New("no datagram sender configured")
)

const defaultQueueSize = 256

// Profiles reads values out of plugin argument files.
type Profiles interface {
	GetString(path, section, key, def string) string
	GetInteger(path, section, key string, def int) int
	// Forget drops any cached copy of path so the next read hits disk.
	Forget(path string)
}

// Timers arms host timers. fire is called from an arbitrary goroutine.
type Timers interface {
	Start(key string, interval time.Duration, oneShot bool, fire func()) error
	Stop(key string)
}

// Sender transmits one UDP datagram.
type Sender interface {
	Send(ctx context.Context, address string, port uint16, payload []byte) error
}

// Resolver expands now&next tokens in a template.
type Resolver interface {
	ResolveNowNext(now, next *Pad, format string) string
}

// Deps are the host services shared by every registered plugin.
//
// A nil Timers leaves timers unarmed and a nil Sender makes SendUDP fail;
// both are how the dry-run check mode runs plugins.
type Deps struct {
	Logger    logx.Logger
	Profiles  Profiles
	Timers    Timers
	Sender    Sender
	Resolver  Resolver
	Bus       eventbus.Bus
	QueueSize int
}

type timerState struct {
	seq     uint64
	oneShot bool
}

type entry struct {
	p    Plugin
	arg  string
	host *hostPort

	// guarded by Manager.mu
	started      bool
	startedAt    time.Time
	padEvents    uint64
	timerFirings uint64
	reloads      int
	lastReload   time.Time
	timerSeq     uint64
	timers       map[int]timerState
}

// Manager owns the registered plugins and serializes every callback into
// them on a single dispatch goroutine. PAD events are queued without
// blocking the caller; a full queue drops the event.
type Manager struct {
	deps Deps
	log  logx.Logger

	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
	sup     *supervisor.Supervisor
	loopCtx context.Context

	pads    chan PadEvent
	calls   chan func(ctx context.Context)
	dropped atomic.Uint64
}

func NewManager(deps Deps) *Manager {
	if deps.Logger.IsZero() {
		deps.Logger = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = defaultQueueSize
	}
	return &Manager{
		deps:   deps,
		log:    deps.Logger.With(logx.String("comp", "plugins")),
		byName: map[string]*entry{},
		pads:   make(chan PadEvent, deps.QueueSize),
		calls:  make(chan func(ctx context.Context), 64),
	}
}

// Register adds p with its argument string. Plugins are started in
// registration order.
func (m *Manager) Register(p Plugin, arg string) error {
	if p == nil {
		return errors.New("nil plugin")
	}
	name := p.Name()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	e := &entry{p: p, arg: arg, timers: map[int]timerState{}}
	e.host = &hostPort{m: m, e: e, log: m.deps.Logger.With(logx.String("plugin", name))}
	m.entries = append(m.entries, e)
	m.byName[name] = e
	return nil
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sup != nil
}

// Start launches the dispatch loop and calls Start on every registered plugin.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.sup != nil {
		m.mu.Unlock()
		return ErrRunning
	}
	sup := supervisor.New(context.Background(), supervisor.WithLogger(m.log))
	m.sup = sup
	m.loopCtx = sup.Context()
	m.mu.Unlock()

	sup.Go0("plugin.dispatch", m.loop)

	return m.do(ctx, func(lctx context.Context) {
		for _, e := range m.snapshotEntries() {
			m.startOne(lctx, e)
		}
	})
}

// Stop frees every started plugin (reverse order) and stops the loop.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	sup := m.sup
	m.mu.Unlock()
	if sup == nil {
		return nil
	}

	err := m.do(ctx, func(lctx context.Context) {
		entries := m.snapshotEntries()
		for i := len(entries) - 1; i >= 0; i-- {
			m.freeOne(lctx, entries[i])
		}
	})
	if serr := sup.Stop(ctx); err == nil {
		err = serr
	}

	m.mu.Lock()
	m.sup = nil
	m.loopCtx = nil
	m.mu.Unlock()
	return err
}

// Reload runs Free then Start on the named plugin, re-reading its argument file.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.byName[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return m.do(ctx, func(lctx context.Context) {
		m.freeOne(lctx, e)
		m.startOne(lctx, e)

		m.mu.Lock()
		e.reloads++
		e.lastReload = time.Now()
		m.mu.Unlock()

		m.log.Info("plugin reloaded", logx.String("plugin", name), logx.String("arg", e.arg))
		m.deps.Bus.Publish(eventbus.Event{Type: eventbus.PluginReloaded, Data: eventbus.PluginEvent{Plugin: name, Arg: e.arg}})
	})
}

// PadDataSent queues ev for delivery to every started plugin. It never
// blocks; it reports false when the event was dropped.
func (m *Manager) PadDataSent(ev PadEvent) bool {
	if !m.Running() {
		m.drop(ev, "not running")
		return false
	}
	select {
	case m.pads <- ev:
		return true
	default:
		m.drop(ev, "queue full")
		return false
	}
}

func (m *Manager) Snapshot() PluginsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := PluginsSnapshot{
		Running:   m.sup != nil,
		QueueLen:  len(m.pads),
		QueueCap:  cap(m.pads),
		Dropped:   m.dropped.Load(),
		Plugins:   make([]PluginStatus, 0, len(m.entries)),
		Generated: time.Now(),
	}
	for _, e := range m.entries {
		st := PluginStatus{
			Name:         e.p.Name(),
			Arg:          e.arg,
			State:        StateUnloaded,
			PadEvents:    e.padEvents,
			TimerFirings: e.timerFirings,
			Timers:       len(e.timers),
			Reloads:      e.reloads,
			LastReload:   e.lastReload,
		}
		if e.started {
			st.State = StateStarted
			st.StartedAt = e.startedAt
		}
		out.Plugins = append(out.Plugins, st)
	}
	return out
}

func (m *Manager) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.calls:
			fn(ctx)
		case ev := <-m.pads:
			m.dispatch(ctx, ev)
		}
	}
}

// do runs fn on the dispatch goroutine and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func(ctx context.Context)) error {
	m.mu.Lock()
	lctx := m.loopCtx
	m.mu.Unlock()
	if lctx == nil {
		return ErrNotRunning
	}

	done := make(chan struct{})
	call := func(c context.Context) {
		defer close(done)
		fn(c)
	}
	select {
	case m.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	case <-lctx.Done():
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) snapshotEntries() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entry(nil), m.entries...)
}

func (m *Manager) startOne(ctx context.Context, e *entry) {
	m.mu.Lock()
	already := e.started
	m.mu.Unlock()
	if already {
		return
	}
	if m.deps.Profiles != nil && e.arg != "" {
		m.deps.Profiles.Forget(e.arg)
	}

	name := e.p.Name()
	if err := m.safeCall(name+".Start", func() { e.p.Start(ctx, e.host, e.arg) }); err != nil {
		// A panicking Start may have armed timers; tear them down.
		m.stopTimers(e)
		return
	}

	m.mu.Lock()
	e.started = true
	e.startedAt = time.Now()
	m.mu.Unlock()

	m.log.Debug("plugin started", logx.String("plugin", name))
	m.deps.Bus.Publish(eventbus.Event{Type: eventbus.PluginStarted, Data: eventbus.PluginEvent{Plugin: name, Arg: e.arg}})
}

func (m *Manager) freeOne(ctx context.Context, e *entry) {
	m.mu.Lock()
	started := e.started
	e.started = false
	m.mu.Unlock()
	if !started {
		return
	}

	name := e.p.Name()
	_ = m.safeCall(name+".Free", func() { e.p.Free(ctx, e.host) })
	if n := m.stopTimers(e); n > 0 {
		m.log.Debug("stopped timers left armed after free", logx.String("plugin", name), logx.Int("count", n))
	}

	m.log.Debug("plugin freed", logx.String("plugin", name))
	m.deps.Bus.Publish(eventbus.Event{Type: eventbus.PluginFreed, Data: eventbus.PluginEvent{Plugin: name, Arg: e.arg}})
}

func (m *Manager) stopTimers(e *entry) int {
	m.mu.Lock()
	ids := make([]int, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	e.timers = map[int]timerState{}
	m.mu.Unlock()

	if m.deps.Timers != nil {
		for _, id := range ids {
			m.deps.Timers.Stop(timerKey(e.p.Name(), id))
		}
	}
	return len(ids)
}

func (m *Manager) dispatch(ctx context.Context, ev PadEvent) {
	delivered := 0
	for _, e := range m.snapshotEntries() {
		m.mu.Lock()
		started := e.started
		if started {
			e.padEvents++
		}
		m.mu.Unlock()
		if !started {
			continue
		}
		_ = m.safeCall(e.p.Name()+".PadDataSent", func() { e.p.PadDataSent(ctx, e.host, ev) })
		delivered++
	}
	if delivered > 0 {
		m.deps.Bus.Publish(eventbus.Event{Type: eventbus.PadDispatched, Data: padSummary(ev)})
	}
}

// postTimer hands a firing to the dispatch goroutine. It is called from
// timer goroutines and blocks only while the loop is alive.
func (m *Manager) postTimer(e *entry, id int, seq uint64) {
	m.mu.Lock()
	lctx := m.loopCtx
	m.mu.Unlock()
	if lctx == nil {
		return
	}
	select {
	case m.calls <- func(ctx context.Context) { m.fireTimer(ctx, e, id, seq) }:
	case <-lctx.Done():
	}
}

func (m *Manager) fireTimer(ctx context.Context, e *entry, id int, seq uint64) {
	m.mu.Lock()
	ts, ok := e.timers[id]
	live := ok && ts.seq == seq && e.started
	if live {
		e.timerFirings++
		if ts.oneShot {
			delete(e.timers, id)
		}
	}
	m.mu.Unlock()

	name := e.p.Name()
	if !live {
		m.log.Trace("stale timer firing dropped", logx.String("plugin", name), logx.Int("timer", id))
		return
	}
	_ = m.safeCall(name+".TimerExpired", func() { e.p.TimerExpired(ctx, e.host, id) })
}

func (m *Manager) drop(ev PadEvent, reason string) {
	n := m.dropped.Add(1)
	m.log.Warn("pad event dropped", logx.String("reason", reason), logx.Uint64("dropped_total", n))
	m.deps.Bus.Publish(eventbus.Event{Type: eventbus.PadDropped, Data: padSummary(ev)})
}

func (m *Manager) safeCall(label string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in plugin call",
				logx.String("call", label),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	fn()
	return nil
}

func padSummary(ev PadEvent) eventbus.PadEvent {
	out := eventbus.PadEvent{Machine: ev.Log.Machine, OnAir: ev.Log.OnAir}
	if ev.Now != nil {
		out.CartNumber = ev.Now.CartNumber
		out.Title = ev.Now.Title
		out.Artist = ev.Now.Artist
	}
	return out
}

func timerKey(plugin string, id int) string {
	return fmt.Sprintf("%s/%d", plugin, id)
}
