package sse

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civiclens/civiclens-go/internal/db"
)

// PGListener subscribes to the complaint_events NOTIFY channel and fans out
// notifications to the SSE hub.
type PGListener struct {
	pool   *pgxpool.Pool
	hub    *Hub
	logger *slog.Logger
}

// NewPGListener creates a new PGListener that bridges PostgreSQL notifications to SSE.
func NewPGListener(pool *pgxpool.Pool, hub *Hub, logger *slog.Logger) *PGListener {
	return &PGListener{pool: pool, hub: hub, logger: logger}
}

// Listen blocks until ctx is cancelled or an error occurs.
// It should be run inside RunWithRecovery so it auto-restarts on failure.
func (pl *PGListener) Listen(ctx context.Context) {
	pooled, err := pl.pool.Acquire(ctx)
	if err != nil {
		pl.logger.Error("pg-listen: acquire connection failed", "err", err)
		return
	}
	// A connection that was LISTENing is not returned to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{db.EventChannel}.Sanitize()); err != nil {
		pl.logger.Error("pg-listen: LISTEN failed", "channel", db.EventChannel, "err", err)
		return
	}
	pl.logger.Info("pg-listen: subscribed to notification channel", "channel", db.EventChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // graceful shutdown
			}
			pl.logger.Error("pg-listen: notification error", "err", err)
			return // RunWithRecovery will reconnect
		}
		pl.Dispatch([]byte(notification.Payload))
	}
}

// Dispatch publishes one complaint_events payload to the owner's topic and
// the admin topic.
func (pl *PGListener) Dispatch(payload []byte) {
	var event db.ComplaintEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		pl.logger.Warn("pg-listen: unmarshal payload failed", "err", err)
		return
	}

	e := Event{Type: event.Type, Data: payload}
	pl.hub.Publish(UserTopic(event.UserID), e)
	pl.hub.Publish(AdminTopic, e)
}
