package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/rsocx/internal/conn"
)

type directDialer struct {
	cfg Config
}

// NewDirectDialer returns a Dialer that connects straight to the target and
// tunes the resulting socket with cfg.Socket.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dd := net.Dialer{Timeout: f.cfg.DialTimeout, KeepAlive: -1}

	c, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	if err := conn.Tune(c, f.cfg.Socket); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	return c, nil
}
