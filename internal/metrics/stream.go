package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics tracks live SSE and WebSocket clients.
type StreamMetrics struct {
	SSEClients      prometheus.Gauge
	SSEDropped      prometheus.Counter
	WSConnections   prometheus.Gauge
	WSMessagesTotal *prometheus.CounterVec
}

// NewStreamMetrics creates and registers streaming metrics.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		SSEClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "clients",
			Help:      "Number of connected SSE subscribers.",
		}),
		SSEDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open prediction WebSocket connections.",
		}),
		WSMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Prediction WebSocket messages, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.SSEClients, m.SSEDropped, m.WSConnections, m.WSMessagesTotal)
	return m
}
