package storage

import (
	"context"
	"encoding/json"
	"time"

	"padcast/internal/eventbus"
	logx "padcast/pkg/logx"
)

const journalWriteTimeout = 2 * time.Second

// Journal copies bus events into a Store.
type Journal struct {
	store Store
	log   logx.Logger
	// PadEvents also records pad.dispatched, which is one row per event.
	PadEvents bool
}

func NewJournal(store Store, log logx.Logger) *Journal {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Journal{store: store, log: log.With(logx.String("comp", "journal"))}
}

// Run records events from bus until ctx is done.
func (j *Journal) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			j.Record(ctx, ev)
		}
	}
}

func (j *Journal) Record(ctx context.Context, ev eventbus.Event) {
	if ev.Type == eventbus.PadDispatched && !j.PadEvents {
		return
	}
	e := Entry{At: ev.Time, Type: ev.Type}
	if pe, ok := ev.Data.(eventbus.PluginEvent); ok {
		e.Plugin = pe.Plugin
	}
	if ev.Data != nil {
		if b, err := json.Marshal(ev.Data); err == nil {
			e.Data = string(b)
		}
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()
	if err := j.store.Append(wctx, e); err != nil {
		j.log.Warn("journal write failed", logx.String("type", ev.Type), logx.Err(err))
	}
}
