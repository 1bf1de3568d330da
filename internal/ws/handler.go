package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/metrics"
	"github.com/civiclens/civiclens-go/internal/predict"
)

const (
	maxMessageBytes = 1 << 20
	writeWait       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Predictor produces the prediction envelope for a text.
type Predictor interface {
	Predict(ctx context.Context, text string) (*predict.Response, error)
}

// Handler answers each {"text"} frame on a WebSocket with a prediction or an
// error envelope. Frames are handled in order, one at a time per connection.
type Handler struct {
	predictor Predictor
	limit     rate.Limit
	burst     int
	metrics   *metrics.StreamMetrics
	logger    *slog.Logger
}

// NewHandler creates a Handler allowing 2 messages per second per connection.
// m may be nil.
func NewHandler(predictor Predictor, m *metrics.StreamMetrics, logger *slog.Logger) *Handler {
	return &Handler{predictor: predictor, limit: 2, burst: 2, metrics: m, logger: logger}
}

// WithRate overrides the per-connection message rate.
func (h *Handler) WithRate(limit rate.Limit, burst int) *Handler {
	h.limit, h.burst = limit, burst
	return h
}

type request struct {
	Text string `json:"text"`
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	ctx := r.Context()
	limiter := rate.NewLimiter(h.limit, h.burst)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.DebugContext(ctx, "websocket read failed", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply, result := h.handle(ctx, limiter, data)
		h.observe(result)
		if err := h.sendJSON(conn, reply); err != nil {
			h.logger.DebugContext(ctx, "websocket write failed", "err", err)
			return
		}
	}
}

func (h *Handler) handle(ctx context.Context, limiter *rate.Limiter, data []byte) (any, string) {
	if !limiter.Allow() {
		return apperr.RateLimited("rate limited").ToResponse(), "rate_limited"
	}

	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return apperr.Validation("invalid message").ToResponse(), "invalid"
	}

	resp, err := h.predictor.Predict(ctx, req.Text)
	if err != nil {
		e := predict.AppError(err)
		if e.Type == apperr.TypeValidation {
			return e.ToResponse(), "invalid"
		}
		h.logger.WarnContext(ctx, "websocket prediction failed", "err", err)
		return e.ToResponse(), "error"
	}
	return resp, "success"
}

func (h *Handler) observe(result string) {
	if h.metrics != nil {
		h.metrics.WSMessagesTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) sendJSON(conn *websocket.Conn, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
