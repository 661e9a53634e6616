package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/die-net/rsocx/internal/dialer"
)

// LegHandler serves one data leg. It owns c.
type LegHandler interface {
	Handle(c net.Conn)
}

type SlaveConfig struct {
	// MasterAddr is the master's transfer address.
	MasterAddr string

	// Dialer reaches the master, for both the control connection and legs.
	Dialer dialer.Dialer

	// Handler serves each data leg, normally a *proxy.SOCKS5Server.
	Handler LegHandler

	Verbose bool
}

// Slave is the NAT-side half of the tunnel.
type Slave struct {
	cfg SlaveConfig
}

func NewSlave(cfg SlaveConfig) *Slave {
	return &Slave{cfg: cfg}
}

// Run opens the control connection and answers each signal with one data
// leg, dialed in signal order. It returns nil when ctx is canceled and an
// error when the control connection fails or carries an unknown byte.
func (s *Slave) Run(ctx context.Context) error {
	ctrl, err := s.cfg.Dialer.DialContext(ctx, "tcp", s.cfg.MasterAddr)
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	defer ctrl.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ctrl.Close()
	})
	defer stop()

	log.Printf("tunnel: connected to master %s", s.cfg.MasterAddr)

	br := bufio.NewReader(ctrl)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: master closed control connection", ErrControlLost)
			}
			return fmt.Errorf("%w: %w", ErrControlLost, err)
		}
		if b != MagicFlag {
			return fmt.Errorf("%w: unexpected control byte %#02x", ErrProtocol, b)
		}

		leg, err := s.cfg.Dialer.DialContext(ctx, "tcp", s.cfg.MasterAddr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dial data leg: %w", err)
		}
		if s.cfg.Verbose {
			log.Printf("tunnel: data leg %s open", leg.LocalAddr())
		}

		go s.cfg.Handler.Handle(leg)
	}
}
