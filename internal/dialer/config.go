package dialer

import (
	"time"

	"github.com/die-net/rsocx/internal/conn"
)

type Config struct {
	DialTimeout time.Duration

	// Socket applies to every dialed TCP connection.
	Socket conn.Options
}
