package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Options are the per-socket settings applied to every accepted or dialed
// TCP connection.
type Options struct {
	KeepAlive net.KeepAliveConfig

	// UserTimeout bounds how long transmitted data may stay unacknowledged
	// before the kernel drops the connection. Zero leaves the system default.
	// Only honored on Linux.
	UserTimeout time.Duration
}

// Tune applies o to c if c is a *net.TCPConn. Other conns are left alone.
func Tune(c net.Conn, o Options) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAliveConfig(o.KeepAlive); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	if o.UserTimeout > 0 {
		if err := setUserTimeout(tc, o.UserTimeout); err != nil {
			return fmt.Errorf("tcp user timeout: %w", err)
		}
	}
	return nil
}

// ListenTCP listens on the given network/address and returns a Listener
// that applies o to accepted TCP connections.
func ListenTCP(ctx context.Context, network, addr string, o Options) (*Listener, error) {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &Listener{Listener: ln, Options: o}, nil
}

// Listener wraps a net.Listener and applies Options to any accepted
// *net.TCPConn.
type Listener struct {
	net.Listener
	Options
}

// Accept accepts the next connection and tunes it. Tuning failures are not
// fatal to the connection.
func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	_ = Tune(c, l.Options)

	return c, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// ErrNoDeadline is returned by SetDeadline when the wrapped listener does
// not support accept deadlines.
var ErrNoDeadline = errors.New("listener does not support deadlines")

// SetDeadline sets the accept deadline on the wrapped listener.
func (l *Listener) SetDeadline(t time.Time) error {
	d, ok := l.Listener.(deadliner)
	if !ok {
		return ErrNoDeadline
	}
	return d.SetDeadline(t)
}

// AcceptTimeout accepts one connection on ln, giving up after timeout if ln
// supports deadlines. A zero timeout waits forever.
func AcceptTimeout(ln net.Listener, timeout time.Duration) (net.Conn, error) {
	d, ok := ln.(deadliner)
	if !ok || timeout <= 0 {
		return ln.Accept()
	}

	if err := d.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer func() { _ = d.SetDeadline(time.Time{}) }()

	return ln.Accept()
}

// IsTemporary reports whether an Accept error is worth retrying.
func IsTemporary(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	// ECONNABORTED and EMFILE surface as *net.OpError wrapping a syscall
	// error; anything else from Accept on an open listener is transient too.
	var oe *net.OpError
	return errors.As(err, &oe)
}
