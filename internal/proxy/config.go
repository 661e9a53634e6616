package proxy

import (
	"time"

	"github.com/die-net/rsocx/internal/dialer"
)

type Config struct {
	// NegotiationTimeout bounds the SOCKS5 handshake on an inbound conn.
	NegotiationTimeout time.Duration

	Dialer dialer.Dialer
}
