package plugin

import (
	"context"
	"time"

	logx "padcast/pkg/logx"
)

// hostPort is the Host handed to one plugin. Its methods are meant to be
// called from within plugin callbacks, i.e. on the dispatch goroutine.
type hostPort struct {
	m   *Manager
	e   *entry
	log logx.Logger
}

func (h *hostPort) GetString(arg, section, key, def string) string {
	if h.m.deps.Profiles == nil {
		return def
	}
	return h.m.deps.Profiles.GetString(arg, section, key, def)
}

func (h *hostPort) GetInteger(arg, section, key string, def int) int {
	if h.m.deps.Profiles == nil {
		return def
	}
	return h.m.deps.Profiles.GetInteger(arg, section, key, def)
}

func (h *hostPort) Logger() logx.Logger { return h.log }

func (h *hostPort) StartTimer(id int, interval time.Duration, mode TimerMode) {
	m := h.m
	m.mu.Lock()
	h.e.timerSeq++
	seq := h.e.timerSeq
	h.e.timers[id] = timerState{seq: seq, oneShot: mode == TimerOneShot}
	m.mu.Unlock()

	if m.deps.Timers == nil {
		h.log.Debug("timer not armed (dry run)", logx.Int("timer", id), logx.Duration("interval", interval), logx.String("mode", mode.String()))
		return
	}
	e := h.e
	err := m.deps.Timers.Start(timerKey(e.p.Name(), id), interval, mode == TimerOneShot, func() {
		m.postTimer(e, id, seq)
	})
	if err != nil {
		h.log.Warn("failed to arm timer", logx.Int("timer", id), logx.Duration("interval", interval), logx.Err(err))
		m.mu.Lock()
		if ts, ok := e.timers[id]; ok && ts.seq == seq {
			delete(e.timers, id)
		}
		m.mu.Unlock()
	}
}

func (h *hostPort) StopTimer(id int) {
	m := h.m
	m.mu.Lock()
	delete(h.e.timers, id)
	m.mu.Unlock()
	if m.deps.Timers != nil {
		m.deps.Timers.Stop(timerKey(h.e.p.Name(), id))
	}
}

func (h *hostPort) SendUDP(ctx context.Context, address string, port uint16, payload []byte) error {
	if h.m.deps.Sender == nil {
		return ErrNoSender
	}
	return h.m.deps.Sender.Send(ctx, address, port, payload)
}

func (h *hostPort) ResolveNowNext(now, next *Pad, format string) string {
	if h.m.deps.Resolver == nil {
		return format
	}
	return h.m.deps.Resolver.ResolveNowNext(now, next, format)
}
