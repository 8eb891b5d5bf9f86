// Package ando sends now-playing updates and heartbeats to ANDO Media
// receivers over UDP.
//
// The argument file holds one [SystemN] section per receiver, numbered from 1:
//
//	[System1]
//	IpAddress=192.168.10.30
//	UdpPort=6000
//	Title=%t
//	Artist=%a
//	Album=%l
//	Label=%b
//	MasterLog=Yes
//	Aux1Log=No
//	Aux2Log=OnAir
//	VLog101=No
//
// Numbering must be contiguous; parsing stops at the first section without
// an IpAddress.
package ando

import (
	"context"
	"time"

	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

const (
	Name = "ando"

	heartbeatTimer    = 0
	heartbeatInterval = 30 * time.Second
)

var heartbeatPayload = []byte("HB")

// session is everything built by Start and released by Free.
type session struct {
	arg   string
	dests []Destination
}

type Plugin struct {
	s *session
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

// Destinations returns a copy of the current table; nil before Start.
func (p *Plugin) Destinations() []Destination {
	if p.s == nil {
		return nil
	}
	return append([]Destination(nil), p.s.dests...)
}

func (p *Plugin) Start(ctx context.Context, host plugin.Host, arg string) {
	if p.s != nil {
		host.Logger().Warn("start while started, rebuilding destinations")
		host.StopTimer(heartbeatTimer)
	}
	p.s = &session{arg: arg, dests: ParseDestinations(host, arg)}
	host.StartTimer(heartbeatTimer, heartbeatInterval, plugin.TimerRepeating)
}

func (p *Plugin) PadDataSent(ctx context.Context, host plugin.Host, ev plugin.PadEvent) {
	if p.s == nil {
		return
	}
	log := host.Logger()
	for i := range p.s.dests {
		d := &p.s.dests[i]
		if !ShouldSend(d, ev.Log.Machine, ev.Log.OnAir) {
			continue
		}
		payload := host.ResolveNowNext(ev.Now, ev.Next, FormatTemplate(d, ev.Now))
		log.Info("sending pad update",
			logx.String("destination", d.String()),
			logx.String("payload", payload),
		)
		if err := host.SendUDP(ctx, d.Address, d.Port, []byte(payload)); err != nil {
			log.Warn("failed to send pad update", logx.String("address", d.Address), logx.Int("port", int(d.Port)), logx.Err(err))
		}
	}
}

func (p *Plugin) TimerExpired(ctx context.Context, host plugin.Host, timerID int) {
	if p.s == nil || timerID != heartbeatTimer {
		return
	}
	for i := range p.s.dests {
		d := &p.s.dests[i]
		if err := host.SendUDP(ctx, d.Address, d.Port, heartbeatPayload); err != nil {
			host.Logger().Warn("failed to send heartbeat", logx.String("address", d.Address), logx.Int("port", int(d.Port)), logx.Err(err))
		}
	}
}

func (p *Plugin) Free(ctx context.Context, host plugin.Host) {
	if p.s == nil {
		return
	}
	host.StopTimer(heartbeatTimer)
	p.s = nil
}
