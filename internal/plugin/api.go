package plugin

import (
	"context"
	"time"

	logx "padcast/pkg/logx"
)

// Plugin is the callback surface a loadable module exposes to the host.
//
// Every method is invoked on the manager's dispatch goroutine, one call at a
// time, so implementations need no locking. None of them return errors: a
// module logs what went wrong and carries on.
type Plugin interface {
	Name() string
	// Start is called once per load with the plugin's argument string
	// (for file based modules, the path of its argument file).
	Start(ctx context.Context, host Host, arg string)
	// PadDataSent is called for every now&next transition on any log.
	PadDataSent(ctx context.Context, host Host, ev PadEvent)
	// TimerExpired is called when a timer armed through Host.StartTimer fires.
	TimerExpired(ctx context.Context, host Host, timerID int)
	// Free releases everything Start built. No callback follows Free until
	// the next Start.
	Free(ctx context.Context, host Host)
}

type TimerMode int

const (
	TimerRepeating TimerMode = iota
	TimerOneShot
)

func (m TimerMode) String() string {
	if m == TimerOneShot {
		return "oneshot"
	}
	return "repeating"
}

// Host is the collaborator surface the host hands to a plugin.
type Host interface {
	// GetString reads key from section of the argument file arg.
	GetString(arg, section, key, def string) string
	// GetInteger is GetString parsed as an integer; malformed values yield def.
	GetInteger(arg, section, key string, def int) int

	// Logger is scoped to the plugin (plugin=<name>).
	Logger() logx.Logger

	// StartTimer arms (or re-arms) timer id. Firings are delivered through
	// Plugin.TimerExpired on the dispatch goroutine.
	StartTimer(id int, interval time.Duration, mode TimerMode)
	// StopTimer cancels timer id. A firing already queued is discarded.
	StopTimer(id int)

	// SendUDP sends one datagram, fire-and-forget.
	SendUDP(ctx context.Context, address string, port uint16, payload []byte) error

	// ResolveNowNext substitutes %x tokens in format from now (lowercase)
	// and next (uppercase).
	ResolveNowNext(now, next *Pad, format string) string
}
