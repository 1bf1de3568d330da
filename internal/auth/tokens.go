package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/civiclens/civiclens-go/internal/db"
)

// DefaultTokenTTL is the lifetime of a token issued without an explicit TTL.
const DefaultTokenTTL = 90 * 24 * time.Hour

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("missing bearer token")

// ErrInvalidToken is returned for unknown or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenStore is the persistence TokenManager needs; *db.DB satisfies it.
type TokenStore interface {
	CreateAPIToken(ctx context.Context, t *db.APIToken) error
	GetUserByTokenHash(ctx context.Context, hash string, now time.Time) (*db.User, error)
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteAPIToken(ctx context.Context, hash string) error
}

type TokenManager struct {
	store  TokenStore
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewTokenManager(store TokenStore, clock clockwork.Clock, logger *slog.Logger) *TokenManager {
	return &TokenManager{store: store, clock: clock, logger: logger}
}

// Issue creates a token for userID valid for ttl and returns the secret. The
// secret cannot be recovered later.
func (tm *TokenManager) Issue(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, *db.APIToken, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	secret, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}
	t := &db.APIToken{
		Hash:      HashToken(secret),
		UserID:    userID,
		ExpiresAt: tm.clock.Now().Add(ttl),
	}
	if err := tm.store.CreateAPIToken(ctx, t); err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}
	return secret, t, nil
}

// Validate resolves the bearer token of r to its user.
func (tm *TokenManager) Validate(ctx context.Context, r *http.Request) (*db.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, ErrNoToken
	}

	user, err := tm.store.GetUserByTokenHash(ctx, HashToken(token), tm.clock.Now())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return user, nil
}

// Revoke deletes the bearer token of r so it no longer validates.
func (tm *TokenManager) Revoke(ctx context.Context, r *http.Request) error {
	token := bearerToken(r)
	if token == "" {
		return ErrNoToken
	}
	if err := tm.store.DeleteAPIToken(ctx, HashToken(token)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Purge deletes expired tokens.
func (tm *TokenManager) Purge(ctx context.Context) (int64, error) {
	deleted, err := tm.store.PurgeExpiredTokens(ctx, tm.clock.Now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		tm.logger.Info("purged expired api tokens", "count", deleted)
	}
	return deleted, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
