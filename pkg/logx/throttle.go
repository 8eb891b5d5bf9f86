package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle hands out one token bucket per key so a single misbehaving source
// cannot flood the log. The zero value is not usable; use NewThrottle.
type Throttle struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	max   int
	lims  map[string]*rate.Limiter
}

// NewThrottle allows burst events per key, refilled at one per interval.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Inf
	if interval > 0 {
		lim = rate.Every(interval)
	}
	return &Throttle{
		every: lim,
		burst: burst,
		max:   1024,
		lims:  map[string]*rate.Limiter{},
	}
}

// Allow reports whether an event for key may be logged now.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	l := t.lims[key]
	if l == nil {
		// Keys come from remote peers; cap the table instead of growing forever.
		if len(t.lims) >= t.max {
			t.lims = map[string]*rate.Limiter{}
		}
		l = rate.NewLimiter(t.every, t.burst)
		t.lims[key] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
