package runtime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/dispatchflow/internal/runtime/adapter/messaging"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// PoisonMetrics tracks messages routed to the poison queue.
type PoisonMetrics struct {
	mu sync.RWMutex

	sources map[string]*PoisonSourceMetrics

	messagesTotal *prometheus.CounterVec
	lastPoisoned  *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// PoisonSourceMetrics holds the counts for one source topic.
type PoisonSourceMetrics struct {
	Topic            string    `json:"topic"`
	MessagesPoisoned uint64    `json:"messages_poisoned"`
	Handlers         []string  `json:"handlers"`
	FirstPoisonedAt  time.Time `json:"first_poisoned_at"`
	LastPoisonedAt   time.Time `json:"last_poisoned_at"`
}

// PoisonMetricsSnapshot is a point-in-time view of PoisonMetrics.
type PoisonMetricsSnapshot struct {
	TotalPoisoned uint64                `json:"total_poisoned"`
	Sources       []PoisonSourceMetrics `json:"sources"`
	CollectedAt   time.Time             `json:"collected_at"`
}

// NewPoisonMetrics creates the collectors. A nil registerer selects the
// Prometheus default registerer.
func NewPoisonMetrics(registerer prometheus.Registerer) *PoisonMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PoisonMetrics{
		sources:    make(map[string]*PoisonSourceMetrics),
		registerer: registerer,
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatchflow",
				Subsystem: "poison",
				Name:      "messages_total",
				Help:      "Number of messages sent to the poison queue",
			},
			[]string{"topic", "handler"},
		),
		lastPoisoned: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatchflow",
				Subsystem: "poison",
				Name:      "last_message_timestamp_seconds",
				Help:      "Unix time of the latest message sent to the poison queue",
			},
			[]string{"topic"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PoisonMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.messagesTotal, m.lastPoisoned} {
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

// Record counts one message from topic that handler gave up on.
func (m *PoisonMetrics) Record(topic, handler string) {
	if m == nil {
		return
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[topic]
	if !ok {
		src = &PoisonSourceMetrics{Topic: topic, FirstPoisonedAt: now}
		m.sources[topic] = src
	}
	src.MessagesPoisoned++
	src.LastPoisonedAt = now
	if handler != "" && !containsString(src.Handlers, handler) {
		src.Handlers = append(src.Handlers, handler)
		sort.Strings(src.Handlers)
	}

	m.messagesTotal.WithLabelValues(topic, handler).Inc()
	m.lastPoisoned.WithLabelValues(topic).Set(float64(now.Unix()))
}

// Snapshot returns the per-topic counts sorted by topic.
func (m *PoisonMetrics) Snapshot() PoisonMetricsSnapshot {
	snap := PoisonMetricsSnapshot{Sources: []PoisonSourceMetrics{}, CollectedAt: time.Now()}
	if m == nil {
		return snap
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, src := range m.sources {
		copied := *src
		copied.Handlers = append([]string(nil), src.Handlers...)
		snap.Sources = append(snap.Sources, copied)
		snap.TotalPoisoned += src.MessagesPoisoned
	}
	sort.Slice(snap.Sources, func(i, j int) bool {
		return snap.Sources[i].Topic < snap.Sources[j].Topic
	})
	return snap
}

// DefaultPoisonFilter selects failures that retrying cannot fix: messages
// that are not envelopes, envelopes with invalid payloads and envelopes no
// handler is bound for.
func DefaultPoisonFilter(err error) bool {
	var invalid *messaging.InvalidMessageError
	switch {
	case errors.As(err, &invalid):
		return true
	case errors.Is(err, errspkg.ErrInvalidPayload):
		return true
	case errspkg.IsMissingHandler(err):
		return true
	default:
		return false
	}
}

// recordPoisoned wraps a poison queue middleware so that every message it
// diverts is counted against its source topic and handler.
func recordPoisoned(poison message.HandlerMiddleware, filter func(error) bool, metrics *PoisonMetrics) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			var handlerErr error
			capture := func(m *message.Message) ([]*message.Message, error) {
				out, err := h(m)
				handlerErr = err
				return out, err
			}

			out, err := poison(capture)(msg)
			if err == nil && handlerErr != nil && filter(handlerErr) {
				ctx := msg.Context()
				metrics.Record(message.SubscribeTopicFromCtx(ctx), message.HandlerNameFromCtx(ctx))
			}
			return out, err
		}
	}
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
