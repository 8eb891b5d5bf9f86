package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padcast/internal/eventbus"
)

type recorder struct {
	name string

	mu    sync.Mutex
	calls []string
	pads  []PadEvent

	onStart func(host Host)
	panicOn string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
	if r.panicOn == s {
		panic("boom in " + s)
	}
}

func (r *recorder) Start(ctx context.Context, host Host, arg string) {
	r.record("start:" + arg)
	if r.onStart != nil {
		r.onStart(host)
	}
}

func (r *recorder) PadDataSent(ctx context.Context, host Host, ev PadEvent) {
	r.mu.Lock()
	r.pads = append(r.pads, ev)
	r.mu.Unlock()
	r.record("pad")
}

func (r *recorder) TimerExpired(ctx context.Context, host Host, id int) {
	r.record("timer")
}

func (r *recorder) Free(ctx context.Context, host Host) {
	r.record("free")
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Pads() []PadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PadEvent(nil), r.pads...)
}

type fakeTimers struct {
	mu    sync.Mutex
	fires map[string]func()
	armed map[string]bool
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{fires: map[string]func(){}, armed: map[string]bool{}}
}

func (f *fakeTimers) Start(key string, interval time.Duration, oneShot bool, fire func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires[key] = fire
	f.armed[key] = true
	return nil
}

func (f *fakeTimers) Stop(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[key] = false
}

// Fire invokes the last callback registered under key, armed or not.
func (f *fakeTimers) Fire(key string) {
	f.mu.Lock()
	fn := f.fires[key]
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeTimers) Armed(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed[key]
}

type fakeProfiles struct {
	mu      sync.Mutex
	forgets []string
}

func (p *fakeProfiles) GetString(path, section, key, def string) string { return def }
func (p *fakeProfiles) GetInteger(path, section, key string, def int) int {
	return def
}
func (p *fakeProfiles) Forget(path string) {
	p.mu.Lock()
	p.forgets = append(p.forgets, path)
	p.mu.Unlock()
}

func startManager(t *testing.T, deps Deps, plugins ...*recorder) *Manager {
	t.Helper()
	m := NewManager(deps)
	for _, p := range plugins {
		require.NoError(t, m.Register(p, p.name+".conf"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

// barrier waits until every call queued before it has run.
func barrier(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.do(ctx, func(context.Context) {}))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()
	m := NewManager(Deps{})
	require.NoError(t, m.Register(&recorder{name: "a"}, ""))
	assert.ErrorIs(t, m.Register(&recorder{name: "a"}, ""), ErrDuplicate)
}

func TestStartAndStopOrder(t *testing.T) {
	t.Parallel()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	m := NewManager(Deps{})
	require.NoError(t, m.Register(a, "a.conf"))
	require.NoError(t, m.Register(b, "b.conf"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), ErrRunning)

	snap := m.Snapshot()
	require.Len(t, snap.Plugins, 2)
	assert.Equal(t, StateStarted, snap.Plugins[0].State)

	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start:a.conf", "free"}, a.Calls())
	assert.Equal(t, []string{"start:b.conf", "free"}, b.Calls())
	assert.False(t, m.Running())
	assert.Equal(t, StateUnloaded, m.Snapshot().Plugins[0].State)
}

func TestPadEventsDeliveredInOrder(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	a := &recorder{name: "a"}
	m := startManager(t, Deps{Bus: bus}, a)

	for i := 1; i <= 3; i++ {
		require.True(t, m.PadDataSent(PadEvent{Now: &Pad{CartNumber: uint32(i)}}))
	}
	require.Eventually(t, func() bool { return len(a.Pads()) == 3 }, 2*time.Second, 5*time.Millisecond)
	for i, ev := range a.Pads() {
		assert.EqualValues(t, i+1, ev.Now.CartNumber)
	}
	assert.EqualValues(t, 3, m.Snapshot().Plugins[0].PadEvents)

	seen := 0
	for seen < 3 {
		select {
		case e := <-events:
			if e.Type == eventbus.PadDispatched {
				seen++
			}
		case <-time.After(2 * time.Second):
			t.Fatal("missing pad.dispatched events")
		}
	}
}

func TestPadDroppedWhenNotRunning(t *testing.T) {
	t.Parallel()
	m := NewManager(Deps{})
	assert.False(t, m.PadDataSent(PadEvent{}))
	assert.EqualValues(t, 1, m.Snapshot().Dropped)
}

func TestTimerDeliveredUntilFree(t *testing.T) {
	t.Parallel()
	timers := newFakeTimers()
	a := &recorder{name: "a", onStart: func(h Host) { h.StartTimer(0, 30*time.Second, TimerRepeating) }}
	m := startManager(t, Deps{Timers: timers}, a)

	require.True(t, timers.Armed("a/0"))
	timers.Fire("a/0")
	barrier(t, m)
	assert.Equal(t, []string{"start:a.conf", "timer"}, a.Calls())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.do(ctx, func(c context.Context) { m.freeOne(c, m.byName["a"]) }))
	assert.False(t, timers.Armed("a/0"))

	// A firing racing with Free must not reach the plugin.
	timers.Fire("a/0")
	barrier(t, m)
	assert.Equal(t, []string{"start:a.conf", "timer", "free"}, a.Calls())
}

func TestStopTimerDiscardsQueuedFiring(t *testing.T) {
	t.Parallel()
	timers := newFakeTimers()
	var host Host
	a := &recorder{name: "a", onStart: func(h Host) {
		host = h
		h.StartTimer(7, time.Second, TimerOneShot)
	}}
	m := startManager(t, Deps{Timers: timers}, a)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.do(ctx, func(context.Context) { host.StopTimer(7) }))
	timers.Fire("a/7")
	barrier(t, m)
	assert.Equal(t, []string{"start:a.conf"}, a.Calls())
	assert.Equal(t, 0, m.Snapshot().Plugins[0].Timers)
}

func TestReloadFreesThenStarts(t *testing.T) {
	t.Parallel()
	profiles := &fakeProfiles{}
	a := &recorder{name: "a"}
	m := startManager(t, Deps{Profiles: profiles}, a)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Reload(ctx, "a"))
	assert.Equal(t, []string{"start:a.conf", "free", "start:a.conf"}, a.Calls())
	assert.Equal(t, 1, m.Snapshot().Plugins[0].Reloads)

	profiles.mu.Lock()
	assert.Equal(t, []string{"a.conf", "a.conf"}, profiles.forgets)
	profiles.mu.Unlock()

	assert.ErrorIs(t, m.Reload(ctx, "missing"), ErrNotRegistered)
}

func TestPanicInCallbackIsContained(t *testing.T) {
	t.Parallel()
	a := &recorder{name: "a", panicOn: "pad"}
	b := &recorder{name: "b"}
	m := startManager(t, Deps{}, a, b)

	require.True(t, m.PadDataSent(PadEvent{}))
	require.True(t, m.PadDataSent(PadEvent{}))
	require.Eventually(t, func() bool { return len(b.Pads()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, a.Pads(), 2)
}

func TestSendWithoutSenderFails(t *testing.T) {
	t.Parallel()
	var sendErr error
	a := &recorder{name: "a", onStart: func(h Host) {
		sendErr = h.SendUDP(context.Background(), "127.0.0.1", 9, []byte("HB"))
	}}
	startManager(t, Deps{}, a)
	assert.ErrorIs(t, sendErr, ErrNoSender)
}
