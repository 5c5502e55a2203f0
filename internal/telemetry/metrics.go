package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the universe gateway. It
// implements gateway.Recorder.
type Metrics struct {
	CallTotal        *prometheus.CounterVec
	CallDurationMs   *prometheus.HistogramVec
	LocalErrorTotal  *prometheus.CounterVec
	RelayDeniedTotal *prometheus.CounterVec
	CircuitOpen      *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "universe_call_total",
			Help: "Outbound provider calls by outcome.",
		}, []string{"provider", "method", "outcome"}),

		CallDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "universe_call_duration_ms",
			Help:    "Outbound provider call duration in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider"}),

		LocalErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "universe_local_error_total",
			Help: "Calls rejected before any network I/O, by error kind.",
		}, []string{"kind"}),

		RelayDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "universe_relay_denied_total",
			Help: "Relay requests denied before reaching the gateway client.",
		}, []string{"reason"}),

		CircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "universe_circuit_open",
			Help: "1 while the relay circuit breaker for a provider is open.",
		}, []string{"provider"}),
	}
}

func (m *Metrics) ObserveCall(provider, method, outcome string, d time.Duration) {
	m.CallTotal.WithLabelValues(provider, method, outcome).Inc()
	m.CallDurationMs.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) LocalError(kind string) {
	m.LocalErrorTotal.WithLabelValues(kind).Inc()
}

// RecordDenied counts a relay rejection (auth, rate_limit, quota, policy, circuit_open).
func (m *Metrics) RecordDenied(reason string) {
	m.RelayDeniedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetCircuitOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitOpen.WithLabelValues(provider).Set(v)
}
