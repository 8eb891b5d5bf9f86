package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	logx "padcast/pkg/logx"
)

var ErrInvalidPort = errors.New("invalid destination port")

const defaultWriteTimeout = 500 * time.Millisecond

// UDPSender writes datagrams from one unconnected socket opened on first use.
type UDPSender struct {
	log     logx.Logger
	timeout time.Duration

	mu   sync.Mutex
	conn *net.UDPConn

	lookup func(ctx context.Context, network, host string) ([]netip.Addr, error)
}

func NewUDPSender(log logx.Logger, writeTimeout time.Duration) *UDPSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &UDPSender{
		log:     log.With(logx.String("comp", "udp")),
		timeout: writeTimeout,
		lookup:  net.DefaultResolver.LookupNetIP,
	}
}

func (s *UDPSender) Send(ctx context.Context, address string, port uint16, payload []byte) error {
	if port == 0 {
		return ErrInvalidPort
	}
	addr, err := s.resolve(ctx, address, port)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		c, err := net.ListenUDP("udp", nil)
		if err != nil {
			return fmt.Errorf("open udp socket: %w", err)
		}
		s.conn = c
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if _, err := s.conn.WriteToUDPAddrPort(payload, addr); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	s.log.Trace("datagram sent", logx.String("to", addr.String()), logx.Int("bytes", len(payload)))
	return nil
}

func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// resolve accepts an IP literal or a host name. Lookups share the write
// timeout so a dead DNS server cannot stall the caller.
func (s *UDPSender) resolve(ctx context.Context, address string, port uint16) (netip.AddrPort, error) {
	if ip, err := netip.ParseAddr(address); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}
	if address == "" {
		return netip.AddrPort{}, errors.New("empty destination address")
	}
	hostport := net.JoinHostPort(address, strconv.Itoa(int(port)))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ua, err := s.lookup(ctx, "ip", address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", hostport, err)
	}
	if len(ua) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: no addresses", hostport)
	}
	return netip.AddrPortFrom(ua[0].Unmap(), port), nil
}

// DryRunSender logs datagrams instead of sending them.
type DryRunSender struct {
	Log logx.Logger
}

func (d DryRunSender) Send(_ context.Context, address string, port uint16, payload []byte) error {
	if port == 0 {
		return ErrInvalidPort
	}
	d.Log.Info("dry run: datagram not sent",
		logx.String("address", address),
		logx.Int("port", int(port)),
		logx.String("payload", string(payload)),
	)
	return nil
}
