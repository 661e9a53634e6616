package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/rsocx/internal/metrics"
)

// RelayStats counts the bytes moved in each direction of a relay.
type RelayStats struct {
	AToB int64
	BToA int64
}

// Relay copies bytes between a and b in both directions until either
// direction ends, by EOF or by any read or write error. The first direction to
// finish closes both conns, which unblocks the other. Canceling ctx also
// closes both. Relay always closes a and b before returning.
//
// EOF and errors caused by the shutdown itself are not reported.
func Relay(ctx context.Context, a, b net.Conn) (RelayStats, error) {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = a.Close()
			_ = b.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var (
		g     errgroup.Group
		stats RelayStats
	)

	g.Go(func() error {
		n, err := copyBuffer(b, a)
		stats.AToB = n
		closeBoth()
		return relayErr(err)
	})

	g.Go(func() error {
		n, err := copyBuffer(a, b)
		stats.BToA = n
		closeBoth()
		return relayErr(err)
	})

	return stats, g.Wait()
}

// Session runs Relay between client and upstream and records it in the
// relay metrics under mode.
func Session(ctx context.Context, mode string, client, upstream net.Conn) error {
	metrics.RelaysTotal.WithLabelValues(mode).Inc()
	metrics.RelaysActive.Inc()
	defer metrics.RelaysActive.Dec()

	start := time.Now()
	stats, err := Relay(ctx, client, upstream)

	metrics.RelayDuration.Observe(time.Since(start).Seconds())
	metrics.RelayBytesTotal.WithLabelValues("up").Add(float64(stats.AToB))
	metrics.RelayBytesTotal.WithLabelValues("down").Add(float64(stats.BToA))
	return err
}

var relayBuffers = NewBufferPool(relayBufferSize)

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	buf := relayBuffers.Get()
	defer relayBuffers.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// relayErr drops the errors that are an expected part of tearing down a relay.
func relayErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return nil
	}
	return err
}
