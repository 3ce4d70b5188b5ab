package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kashguard/go-heartbeat-infra/internal/event"
	"github.com/kashguard/go-heartbeat-infra/internal/heartbeat"
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// Service owns the process metrics. It uses its own prometheus registry so
// tests can run multiple instances without duplicate registration panics.
type Service struct {
	registry *prometheus.Registry

	nodes         *prometheus.GaugeVec
	messagesTotal *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	pongLatency   prometheus.Histogram
}

func New() *Service {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Service{
		registry: reg,
		nodes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "heartbeat",
			Name:      "nodes",
			Help:      "Registered nodes by liveness status.",
		}, []string{"status"}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartbeat",
			Name:      "messages_total",
			Help:      "Inbound heartbeat messages by type.",
		}, []string{"type"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartbeat",
			Name:      "events_total",
			Help:      "Lifecycle events emitted by kind.",
		}, []string{"kind"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartbeat",
			Name:      "events_dropped_total",
			Help:      "Events dropped due to subscriber queue overflow.",
		}, []string{"subscriber"}),
		pongLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heartbeat",
			Name:      "pong_latency_seconds",
			Help:      "Round-trip latency observed from Pong responses.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// Handler exposes the metrics endpoint for the management server.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// ObserveMessage counts one inbound message.
func (s *Service) ObserveMessage(t heartbeat.MessageType) {
	s.messagesTotal.WithLabelValues(t.String()).Inc()
}

// ObserveEvent counts one emitted lifecycle event.
func (s *Service) ObserveEvent(kind event.Kind) {
	s.eventsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveDrop counts one dropped event for the named subscriber.
func (s *Service) ObserveDrop(subscriber string) {
	s.eventsDropped.WithLabelValues(subscriber).Inc()
}

// ObservePongLatency records one client round-trip.
func (s *Service) ObservePongLatency(seconds float64) {
	s.pongLatency.Observe(seconds)
}

// SetNodeCounts refreshes the per-status node gauge from a registry count.
func (s *Service) SetNodeCounts(counts map[registry.NodeStatus]int) {
	for _, status := range []registry.NodeStatus{registry.StatusAlive, registry.StatusSuspected, registry.StatusDead} {
		s.nodes.WithLabelValues(status.String()).Set(float64(counts[status]))
	}
}
