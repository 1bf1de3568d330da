package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/db"
)

// AccountService is the account API surface; *auth.Accounts satisfies it.
type AccountService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Session, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	Profile(ctx context.Context, user *db.User) (*db.User, error)
	UpdateProfile(ctx context.Context, user *db.User, in auth.ProfileInput) (*db.User, error)
}

// TokenRevoker revokes the bearer token of a request; *auth.TokenManager
// satisfies it.
type TokenRevoker interface {
	Revoke(ctx context.Context, r *http.Request) error
}

type AccountHandler struct {
	svc    AccountService
	tokens TokenRevoker
	logger *slog.Logger
}

func NewAccountHandler(svc AccountService, tokens TokenRevoker, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, tokens: tokens, logger: logger}
}

// Signup handles POST /v1/auth/signup
func (ah *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}

	s, err := ah.svc.Signup(r.Context(), in)
	if err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// Login handles POST /v1/auth/login
func (ah *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}

	s, err := ah.svc.Login(r.Context(), in)
	if err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Logout handles POST /api/auth/logout. Only the presented token is revoked.
func (ah *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := ah.tokens.Revoke(r.Context(), r)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		apperr.Write(w, r, ah.logger, apperr.Unauthorized("authentication required"))
	default:
		apperr.Write(w, r, ah.logger, apperr.Internal("logout failed", err))
	}
}

// Me handles GET /api/me
func (ah *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := ah.svc.Profile(r.Context(), auth.GetUserFromCtx(r.Context()))
	if err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe handles PATCH and PUT /api/me
func (ah *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in auth.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}

	u, err := ah.svc.UpdateProfile(r.Context(), auth.GetUserFromCtx(r.Context()), in)
	if err != nil {
		apperr.Write(w, r, ah.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
