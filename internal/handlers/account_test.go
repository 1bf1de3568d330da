package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/db"
	"github.com/civiclens/civiclens-go/internal/ratelimit"
)

// fakeAccounts knows one password per email and keeps profiles by user ID.
type fakeAccounts struct {
	passwords map[string]string
	profiles  map[string]*db.User
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{passwords: map[string]string{}, profiles: map[string]*db.User{}}
}

func (f *fakeAccounts) Signup(_ context.Context, in auth.SignupInput) (*auth.Session, error) {
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("password must be at least 6 characters")
	}
	if _, taken := f.passwords[in.Email]; taken {
		return nil, apperr.Conflict("email already registered")
	}
	f.passwords[in.Email] = in.Password
	u := &db.User{ID: citizen.ID, Name: in.Name, Email: in.Email, Role: db.RoleUser, Gender: db.GenderOther}
	return &auth.Session{Token: "citizen", ExpiresAt: time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), User: u}, nil
}

func (f *fakeAccounts) Login(_ context.Context, in auth.LoginInput) (*auth.Session, error) {
	if pw, ok := f.passwords[in.Email]; !ok || pw != in.Password {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return &auth.Session{Token: "citizen", User: &db.User{ID: citizen.ID, Email: in.Email, Role: db.RoleUser}}, nil
}

func (f *fakeAccounts) Profile(_ context.Context, user *db.User) (*db.User, error) {
	if p, ok := f.profiles[user.ID.String()]; ok {
		return p, nil
	}
	u := *user
	u.Gender = db.GenderOther
	return &u, nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, user *db.User, in auth.ProfileInput) (*db.User, error) {
	u, _ := f.Profile(ctx, user)
	if in.Gender != nil {
		switch *in.Gender {
		case db.GenderMale, db.GenderFemale, db.GenderOther:
			u.Gender = *in.Gender
		default:
			return nil, apperr.Validation("gender must be one of male, female, other")
		}
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Address != nil {
		u.Address = in.Address
	}
	f.profiles[user.ID.String()] = u
	return u, nil
}

// fakeRevoker records revoked bearer headers.
type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) Revoke(_ context.Context, r *http.Request) error {
	h := r.Header.Get("Authorization")
	if h == "" {
		return auth.ErrNoToken
	}
	f.revoked = append(f.revoked, strings.TrimPrefix(h, "Bearer "))
	return nil
}

func TestSignupAndLoginEndpoints(t *testing.T) {
	env := newTestEnv(rulesPredictor(), nil)

	rec := env.do(http.MethodPost, "/v1/auth/signup", "", `{"name":"Asha","email":"asha@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "citizen", body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "asha@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodPost, "/v1/auth/signup", "", `{"name":"Asha","email":"asha@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/auth/signup", "", `{"name":"Asha","email":"b@example.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/v1/auth/login", "", `{"email":"asha@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "citizen", decodeBody(t, rec)["token"])

	rec = env.do(http.MethodPost, "/v1/auth/login", "", `{"email":"asha@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, rec)["error"])

	rec = env.do(http.MethodPost, "/v1/auth/login", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeEndpoints(t *testing.T) {
	env := newTestEnv(rulesPredictor(), nil)

	rec := env.do(http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/me", "citizen", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "citizen", decodeBody(t, rec)["name"])

	rec = env.do(http.MethodPatch, "/api/me", "citizen", `{"gender":"female","address":{"city":"Pune","country":"IN"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "female", body["gender"])
	assert.Equal(t, map[string]any{"city": "Pune", "country": "IN"}, body["address"])

	rec = env.do(http.MethodPut, "/api/me", "citizen", `{"name":"Citizen Kane"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, "Citizen Kane", body["name"])
	assert.Equal(t, "female", body["gender"])

	rec = env.do(http.MethodPatch, "/api/me", "citizen", `{"gender":"robot"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/me", "officer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody(t, rec)["role"])
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(rulesPredictor(), nil)

	rec := env.do(http.MethodPost, "/api/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.revoked.revoked)

	rec = env.do(http.MethodPost, "/api/auth/logout", "citizen", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"citizen"}, env.revoked.revoked)
}

func TestAuthEndpointsRateLimited(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), clockwork.NewFakeClock(), nil, discardLogger()).
		WithBuckets(map[string]ratelimit.Bucket{"auth": {MaxRequests: 2, Window: 15 * time.Minute}})
	env := newTestEnv(rulesPredictor(), limiter)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/v1/auth/login", "", `{"email":"x@example.com","password":"nope12"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(http.MethodPost, "/v1/auth/signup", "", `{"name":"Asha","email":"asha@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
