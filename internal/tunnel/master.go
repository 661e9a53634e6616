package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/die-net/rsocx/internal/conn"
	"github.com/die-net/rsocx/internal/metrics"
	"github.com/die-net/rsocx/internal/proxy"
	"github.com/die-net/rsocx/internal/registry"
)

// ModeTunnel labels tunnel relays in metrics and the registry.
const ModeTunnel = "tunnel"

type Config struct {
	// LegTimeout bounds the wait for the data leg after a signal. Zero
	// waits forever.
	LegTimeout time.Duration

	Registry registry.Registry
	Verbose  bool
}

// Master pairs public clients with data legs from one slave.
type Master struct {
	cfg Config
}

func NewMaster(cfg Config) *Master {
	if cfg.Registry == nil {
		cfg.Registry = registry.Nop{}
	}
	return &Master{cfg: cfg}
}

// Serve waits for the slave's control connection on transfer, then serves
// clients accepted on public until public is closed (returns nil) or the
// control channel fails (returns an error wrapping ErrControlLost).
//
// Serve does not close the listeners.
func (m *Master) Serve(ctx context.Context, transfer, public net.Listener) error {
	log.Printf("tunnel: waiting for slave on %s", transfer.Addr())

	ctrl, err := transfer.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("accept slave: %w", err)
	}
	defer ctrl.Close()

	slave := ctrl.RemoteAddr().String()
	log.Printf("tunnel: accepted slave from %s", slave)

	metrics.Slaves.Inc()
	defer metrics.Slaves.Dec()
	if err := m.cfg.Registry.Join(ctx, registry.Member{Addr: slave, Mode: ModeTunnel, Joined: time.Now()}); err != nil {
		log.Printf("tunnel: registry join %s: %v", slave, err)
	}
	defer func() {
		if err := m.cfg.Registry.Leave(context.WithoutCancel(ctx), slave); err != nil {
			log.Printf("tunnel: registry leave %s: %v", slave, err)
		}
	}()

	log.Printf("tunnel: serving clients on %s", public.Addr())

	for {
		client, err := public.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if conn.IsTemporary(err) {
				log.Printf("tunnel: accept client: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept client: %w", err)
		}

		leg, err := m.openLeg(ctrl, transfer)
		if err != nil {
			_ = client.Close()
			return err
		}

		go m.relay(ctx, client, leg)
	}
}

// openLeg signals the slave and accepts the data leg it dials back. The
// next connection accepted on transfer is taken to be that leg.
func (m *Master) openLeg(ctrl net.Conn, transfer net.Listener) (net.Conn, error) {
	if _, err := ctrl.Write([]byte{MagicFlag}); err != nil {
		return nil, fmt.Errorf("%w: signal %s: %w", ErrControlLost, ctrl.RemoteAddr(), err)
	}
	metrics.ControlSignals.Inc()

	leg, err := conn.AcceptTimeout(transfer, m.cfg.LegTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: accept data leg: %w", ErrControlLost, err)
	}
	return leg, nil
}

func (m *Master) relay(ctx context.Context, client, leg net.Conn) {
	via := leg.RemoteAddr().String()
	if m.cfg.Verbose {
		log.Printf("tunnel: relay %s via %s started", client.RemoteAddr(), via)
	}

	err := proxy.Session(ctx, ModeTunnel, client, leg)
	switch {
	case err != nil:
		log.Printf("tunnel: relay via %s: %v", via, err)
	case m.cfg.Verbose:
		log.Printf("tunnel: relay via %s finished", via)
	}
}
