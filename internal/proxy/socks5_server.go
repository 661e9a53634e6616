package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/die-net/rsocx/internal/conn"
	"github.com/die-net/rsocx/internal/metrics"
	"github.com/die-net/rsocx/internal/socks5"
)

// ModeLocal labels relays of a SOCKS5 server that is not behind a tunnel.
const ModeLocal = "local"

// ErrUnsupportedCommand is returned for any SOCKS5 command other than CONNECT.
var ErrUnsupportedCommand = errors.New("socks5: unsupported command")

// SOCKS5Server serves no-auth SOCKS5 CONNECT sessions.
type SOCKS5Server struct {
	ctx       context.Context
	cfg       Config
	connector *Connector
	verbose   bool
}

// NewSOCKS5Server returns a server whose relays are labeled mode in metrics.
func NewSOCKS5Server(ctx context.Context, cfg Config, mode string, verbose bool) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS5Server{
		ctx:       ctx,
		cfg:       cfg,
		connector: &Connector{Dialer: cfg.Dialer, Mode: mode},
		verbose:   verbose,
	}
}

// Serve accepts connections on ln and serves each in its own goroutine. It
// returns when ln is closed or fails permanently.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if conn.IsTemporary(err) {
				log.Printf("socks5: accept: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.Handle(c)
	}
}

// Handle serves one session on c and logs its failure.
func (s *SOCKS5Server) Handle(c net.Conn) {
	remote := c.RemoteAddr()
	if err := s.ServeConn(s.ctx, c); err != nil {
		log.Printf("socks5: %s: %v", remote, err)
	} else if s.verbose {
		log.Printf("socks5: %s: finished", remote)
	}
}

// ServeConn runs the SOCKS5 handshake on c and, for a CONNECT, hands it to
// the connector. c is closed on return. Handshake failures drop the
// connection without a failure reply.
func (s *SOCKS5Server) ServeConn(ctx context.Context, c net.Conn) error {
	if s.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	addr, port, err := s.handshake(c)
	if err != nil {
		_ = c.Close()
		return err
	}

	if s.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}

	if s.verbose {
		log.Printf("socks5: %s: connect %s", c.RemoteAddr(), addr.HostPort(port))
	}
	return s.connector.Connect(ctx, c, addr, port)
}

func (s *SOCKS5Server) handshake(c net.Conn) (socks5.Address, uint16, error) {
	if err := socks5.ServerNegotiate(c); err != nil {
		metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonHandshake).Inc()
		return socks5.Address{}, 0, err
	}

	req, err := socks5.ServerReadRequest(c)
	if err != nil {
		metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonHandshake).Inc()
		return socks5.Address{}, 0, err
	}
	if req.Cmd != socks5.CmdConnect {
		metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonHandshake).Inc()
		return socks5.Address{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedCommand, req.Cmd)
	}

	addr, port, err := socks5.RequestAddress(req)
	if err != nil {
		metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonAddress).Inc()
		return socks5.Address{}, 0, err
	}
	return addr, port, nil
}
