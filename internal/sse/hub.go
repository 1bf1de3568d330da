package sse

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-go/internal/metrics"
)

// AdminTopic receives every complaint event.
const AdminTopic = "admin"

// UserTopic returns the topic carrying events of one user's complaints.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Event represents a server-sent event to be published to subscribers.
type Event struct {
	Type string // "complaint", "created", "updated", "analyzed", "deleted"
	Data []byte // JSON payload
}

const subscriberBuffer = 64

// Hub is a fan-out hub that manages per-topic SSE subscriptions.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{} // topic -> set of channels
	metrics     *metrics.StreamMetrics
	logger      *slog.Logger
}

// NewHub creates a new SSE hub. m may be nil.
func NewHub(m *metrics.StreamMetrics, logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		metrics:     m,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber for the given topic.
// It returns a channel that will receive events and a cancel function that
// must be called when the subscriber disconnects.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan Event]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SSEClients.Inc()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[topic], ch)
			if len(h.subscribers[topic]) == 0 {
				delete(h.subscribers, topic)
			}
			close(ch)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.SSEClients.Dec()
			}
		})
	}
	return ch, cancel
}

// Publish sends an event to all subscribers of the given topic.
// If a subscriber's channel is full, the event is dropped and a warning is logged.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("sse: dropped event for slow client", "topic", topic)
			if h.metrics != nil {
				h.metrics.SSEDropped.Inc()
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers for the given topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
