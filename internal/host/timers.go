package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "padcast/pkg/logx"
)

var ErrBadInterval = errors.New("timer interval must be positive")

// intervalSchedule fires every d from the time it was scheduled. Unlike
// cron.Every it keeps sub-second precision.
type intervalSchedule struct {
	d time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time { return t.Add(s.d) }

func everySchedule(d time.Duration) cron.Schedule {
	if d%time.Second == 0 {
		return cron.Every(d)
	}
	return intervalSchedule{d: d}
}

// Timers keys plugin timers by name. Repeating timers run on a cron
// scheduler; one-shots are plain runtime timers. Starting an existing key
// replaces it.
type Timers struct {
	log logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]cron.EntryID
	once    map[string]*time.Timer
}

func NewTimers(log logx.Logger) *Timers {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Timers{
		log:     log.With(logx.String("comp", "timers")),
		c:       cron.New(cron.WithLocation(time.Local)),
		entries: map[string]cron.EntryID{},
		once:    map[string]*time.Timer{},
	}
	t.c.Start()
	return t
}

func (t *Timers) Start(key string, interval time.Duration, oneShot bool, fire func()) error {
	if interval <= 0 {
		return ErrBadInterval
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(key)

	if oneShot {
		var tm *time.Timer
		tm = time.AfterFunc(interval, func() {
			t.mu.Lock()
			if t.once[key] == tm {
				delete(t.once, key)
			}
			t.mu.Unlock()
			fire()
		})
		t.once[key] = tm
		t.log.Debug("one-shot timer armed", logx.String("key", key), logx.Duration("interval", interval))
		return nil
	}

	t.entries[key] = t.c.Schedule(everySchedule(interval), cron.FuncJob(fire))
	t.log.Debug("repeating timer armed", logx.String("key", key), logx.Duration("interval", interval))
	return nil
}

func (t *Timers) Stop(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(key)
}

func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) + len(t.once)
}

// Close stops every timer and waits for running cron jobs, bounded by ctx.
func (t *Timers) Close(ctx context.Context) error {
	t.mu.Lock()
	for key := range t.entries {
		t.stopLocked(key)
	}
	for key := range t.once {
		t.stopLocked(key)
	}
	t.mu.Unlock()

	select {
	case <-t.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Timers) stopLocked(key string) {
	if id, ok := t.entries[key]; ok {
		t.c.Remove(id)
		delete(t.entries, key)
	}
	if tm, ok := t.once[key]; ok {
		tm.Stop()
		delete(t.once, key)
	}
}
