// Package metrics exposes rsocx's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Slaves             = promauto.NewGauge(prometheus.GaugeOpts{Name: "rsocx_slaves", Help: "Slave connections currently held by the master"})
	RelaysActive       = promauto.NewGauge(prometheus.GaugeOpts{Name: "rsocx_relays_active", Help: "Relay sessions in progress"})
	RelaysTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rsocx_relays_total", Help: "Relay sessions started, by mode"}, []string{"mode"})
	RelayBytesTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rsocx_relay_bytes_total", Help: "Bytes relayed, by direction"}, []string{"direction"})
	RelayDuration      = promauto.NewHistogram(prometheus.HistogramOpts{Name: "rsocx_relay_duration_seconds", Help: "Relay session lifetime", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	ControlSignals     = promauto.NewCounter(prometheus.CounterOpts{Name: "rsocx_control_signals_total", Help: "Control bytes written to slaves"})
	ConnectFailures    = promauto.NewCounter(prometheus.CounterOpts{Name: "rsocx_connect_failures_total", Help: "Outbound connects that failed"})
	DroppedClientTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rsocx_dropped_clients_total", Help: "Client connections dropped without service, by reason"}, []string{"reason"})
)

// Drop reasons.
const (
	ReasonNoSlave   = "no_slave"
	ReasonHandshake = "handshake"
	ReasonAddress   = "address"
	ReasonConnect   = "connect"
)

// Handler serves /metrics and a trivial /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
