package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the plugin manager and the ingest sources.
const (
	PluginStarted  = "plugin.started"
	PluginFreed    = "plugin.freed"
	PluginReloaded = "plugin.reloaded"
	PadDispatched  = "pad.dispatched"
	PadDropped     = "pad.dropped"
)

// Event is a lightweight, in-memory signal used to decouple the dispatch
// loop from observers (audit journal, status endpoint).
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// PluginEvent is the payload for plugin.* events.
type PluginEvent struct {
	Plugin string `json:"plugin"`
	Arg    string `json:"arg,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// PadEvent is the payload for pad.* events.
type PadEvent struct {
	Machine    int    `json:"machine"`
	OnAir      bool   `json:"onair"`
	CartNumber uint32 `json:"cart_number"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that discards everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Unsubscribe may close ch concurrently.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
