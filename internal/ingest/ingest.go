// Package ingest turns newline-delimited JSON PAD events into dispatches.
//
// A source is one of:
//
//	stdin               read events from standard input
//	udp://host:port     one JSON event per datagram
//	none                no ingest
//	<path>              read events from a file until EOF
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

const (
	maxLine      = 64 * 1024
	maxDatagram  = 64 * 1024
	warnInterval = 10 * time.Second
	warnBurst    = 3
	SourceStdin  = "stdin"
	SourceNone   = "none"
	udpScheme    = "udp://"
)

var ErrEmptyEvent = errors.New("event has neither now nor next item")

// Sink receives decoded events. It must not block.
type Sink interface {
	PadDataSent(ev plugin.PadEvent) bool
}

type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
}

type Runner struct {
	log      logx.Logger
	sink     Sink
	throttle *logx.Throttle

	accepted atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

func New(log logx.Logger, sink Sink) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		log:      log.With(logx.String("comp", "ingest")),
		sink:     sink,
		throttle: logx.NewThrottle(warnInterval, warnBurst),
	}
}

func (r *Runner) Stats() Stats {
	return Stats{
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// Run consumes source until it is exhausted or ctx is done.
func (r *Runner) Run(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	switch {
	case source == "" || source == SourceNone:
		<-ctx.Done()
		return nil
	case source == SourceStdin:
		return r.ReadStream(ctx, SourceStdin, os.Stdin)
	case strings.HasPrefix(source, udpScheme):
		addr := strings.TrimPrefix(source, udpScheme)
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return fmt.Errorf("ingest listen %s: %w", addr, err)
		}
		r.log.Info("listening for pad events", logx.String("addr", pc.LocalAddr().String()))
		return r.ServePacket(ctx, pc)
	default:
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("ingest open %s: %w", source, err)
		}
		defer f.Close()
		return r.ReadStream(ctx, source, f)
	}
}

// ReadStream decodes one event per line. Closers are closed when ctx ends
// so a blocked read returns.
func (r *Runner) ReadStream(ctx context.Context, name string, rd io.Reader) error {
	done := make(chan struct{})
	defer close(done)
	if c, ok := rd.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-done:
			}
		}()
	}

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	lineNo := 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		r.handle(name, line, logx.Int("line", lineNo))
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ingest read %s: %w", name, err)
	}
	r.log.Debug("ingest stream ended", logx.String("source", name), logx.Int("lines", lineNo))
	return nil
}

// ServePacket decodes one event per datagram until ctx is done.
func (r *Runner) ServePacket(ctx context.Context, pc net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ingest read: %w", err)
		}
		r.handle("udp", bytes.TrimSpace(buf[:n]), logx.String("from", from.String()))
	}
}

func (r *Runner) handle(source string, raw []byte, where logx.Field) {
	ev, err := Decode(raw)
	if err != nil {
		r.rejected.Add(1)
		if r.throttle.Allow("decode:" + source) {
			r.log.Warn("invalid pad event", logx.String("source", source), where, logx.Err(err))
		}
		return
	}
	if !r.sink.PadDataSent(ev) {
		r.dropped.Add(1)
		return
	}
	r.accepted.Add(1)
}

// Decode parses one JSON event.
func Decode(raw []byte) (plugin.PadEvent, error) {
	var ev plugin.PadEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return plugin.PadEvent{}, err
	}
	if ev.Now == nil && ev.Next == nil {
		return plugin.PadEvent{}, ErrEmptyEvent
	}
	return ev, nil
}
