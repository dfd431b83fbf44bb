package dispatcher

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "dispatchflow"
	metricsSubsystem = "dispatcher"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics exports dispatch counters and latencies to Prometheus.
type Metrics struct {
	mu sync.Mutex

	dispatchTotal   *prometheus.CounterVec
	missingTotal    *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates dispatcher collectors. A nil registerer selects the
// Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:    registerer,
		dispatchTotal: newCounterVec("dispatch_total", "Number of dispatched envelopes by outcome", []string{"name", "mode", "outcome"}),
		missingTotal:  newCounterVec("missing_handler_total", "Number of dispatches for which no handler was bound", []string{"mode"}),
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "Handler execution time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name", "mode"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "in_flight",
				Help:      "Handlers currently executing",
			},
			[]string{"mode"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.dispatchTotal, m.missingTotal, m.durationSeconds, m.inFlight} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) begin(mode string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(mode).Inc()
}

func (m *Metrics) observe(name, mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(mode).Dec()
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	m.dispatchTotal.WithLabelValues(name, mode, outcome).Inc()
	m.durationSeconds.WithLabelValues(name, mode).Observe(d.Seconds())
}

// missing is labelled by mode only: unbound names come from clients and
// would otherwise add a series per name.
func (m *Metrics) missing(mode string) {
	if m == nil {
		return
	}
	m.missingTotal.WithLabelValues(mode).Inc()
}
