package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/sse"
)

const hydrateLimit = 20

// StreamHandler serves SSE streams of complaint events.
type StreamHandler struct {
	hub       *sse.Hub
	svc       ComplaintService
	keepalive time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *sse.Hub, svc ComplaintService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, svc: svc, keepalive: 30 * time.Second, logger: logger}
}

// HandleSSE handles GET /api/stream/complaints
// It sends the most urgent recent complaints visible to the caller, then
// streams live events with periodic keepalives. Admins receive events for
// every complaint, other users only for their own.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apperr.Write(w, r, sh.logger, apperr.Internal("streaming not supported", nil))
		return
	}

	user := auth.GetUserFromCtx(r.Context())
	topic := sse.UserTopic(user.ID)
	if user.IsAdmin() {
		topic = sse.AdminTopic
	}

	// Subscribe before hydrating so no event between the two is lost.
	ch, cancel := sh.hub.Subscribe(topic)
	defer cancel()

	recent, err := sh.svc.List(r.Context(), user, hydrateLimit, 0)
	if err != nil {
		apperr.Write(w, r, sh.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for _, c := range recent {
		data, _ := json.Marshal(c)
		fmt.Fprintf(w, "event: complaint\ndata: %s\n\n", data)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sh.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
