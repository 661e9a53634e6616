package proxy

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/rsocx/internal/dialer"
	"github.com/die-net/rsocx/internal/metrics"
	"github.com/die-net/rsocx/internal/socks5"
)

// Connector opens the outbound leg of a SOCKS5 CONNECT and relays the client
// to it.
type Connector struct {
	Dialer dialer.Dialer

	// Mode labels the relay in metrics.
	Mode string
}

// Connect dials addr:port, writes the success reply to client and relays
// until either side closes. If the dial fails nothing is written to client.
// client is always closed on return.
func (c *Connector) Connect(ctx context.Context, client net.Conn, addr socks5.Address, port uint16) error {
	target := addr.HostPort(port)

	up, err := c.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		_ = client.Close()
		metrics.ConnectFailures.Inc()
		metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonConnect).Inc()
		return fmt.Errorf("connect %s: %w", target, err)
	}

	var boundPort uint16
	if ta, ok := up.LocalAddr().(*net.TCPAddr); ok {
		boundPort = uint16(ta.Port)
	}

	if err := socks5.WriteSuccessReply(client, addr, boundPort); err != nil {
		_ = client.Close()
		_ = up.Close()
		return fmt.Errorf("reply to %s: %w", client.RemoteAddr(), err)
	}

	if err := Session(ctx, c.Mode, client, up); err != nil {
		return fmt.Errorf("relay %s: %w", target, err)
	}
	return nil
}
