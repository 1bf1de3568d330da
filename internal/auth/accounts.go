package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/db"
)

// SessionTTL is the lifetime of a token issued by Signup or Login.
const SessionTTL = 7 * 24 * time.Hour

// Account field limits.
const (
	MinNameLength     = 2
	MaxNameLength     = 50
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	MaxPasswordBytes = 72
	MaxAddressField  = 200
)

// DefaultBcryptCost is the work factor of stored password hashes.
const DefaultBcryptCost = 12

const birthDateLayout = "2006-01-02"

// AccountStore is the persistence Accounts needs; *db.DB satisfies it.
type AccountStore interface {
	CreateUser(ctx context.Context, u *db.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, p db.ProfilePatch) (*db.User, error)
}

// Accounts handles self-service signup, login and profile edits. Accounts
// created here always get the user role; admins are made with the CLI.
type Accounts struct {
	store  AccountStore
	tokens *TokenManager
	clock  clockwork.Clock
	cost   int
	logger *slog.Logger
}

func NewAccounts(store AccountStore, tokens *TokenManager, clock clockwork.Clock, logger *slog.Logger) *Accounts {
	return &Accounts{store: store, tokens: tokens, clock: clock, cost: DefaultBcryptCost, logger: logger}
}

// WithCost sets the bcrypt work factor of new password hashes.
func (a *Accounts) WithCost(cost int) *Accounts {
	a.cost = cost
	return a
}

type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileInput carries the profile fields to change; nil fields are left as
// they are. BirthDate is a YYYY-MM-DD date.
type ProfileInput struct {
	Name      *string     `json:"name"`
	Gender    *string     `json:"gender"`
	BirthDate *string     `json:"birth_date"`
	Address   *db.Address `json:"address"`
}

// Session is a freshly issued bearer token and its owner.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *db.User  `json:"user"`
}

// Signup creates an account and logs it in.
func (a *Accounts) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &db.User{Name: name, Email: email, Role: db.RoleUser, PasswordHash: string(hash)}
	if err := a.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	a.logger.InfoContext(ctx, "account created", "user_id", u.ID)
	return a.session(ctx, u)
}

// Login exchanges an email and password for a new session. Unknown emails
// and wrong passwords fail alike.
func (a *Accounts) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperr.Validation("password is required")
	}

	u, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		a.logger.InfoContext(ctx, "login rejected", "user_id", u.ID)
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return a.session(ctx, u)
}

// Profile returns the stored account of user.
func (a *Accounts) Profile(ctx context.Context, user *db.User) (*db.User, error) {
	u, err := a.store.GetUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies in to the account of user. Email, password and role
// cannot be changed here.
func (a *Accounts) UpdateProfile(ctx context.Context, user *db.User, in ProfileInput) (*db.User, error) {
	var p db.ProfilePatch
	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return nil, err
		}
		p.Name = &name
	}
	if in.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		switch g {
		case db.GenderMale, db.GenderFemale, db.GenderOther:
			p.Gender = &g
		default:
			return nil, apperr.Validation("gender must be one of male, female, other").WithContext("gender", *in.Gender)
		}
	}
	if in.BirthDate != nil {
		d, err := time.Parse(birthDateLayout, strings.TrimSpace(*in.BirthDate))
		if err != nil {
			return nil, apperr.Validation("birth_date must be a YYYY-MM-DD date")
		}
		if d.After(a.clock.Now()) {
			return nil, apperr.Validation("birth_date must not be in the future")
		}
		p.BirthDate = &d
	}
	if in.Address != nil {
		addr, err := cleanAddress(*in.Address)
		if err != nil {
			return nil, err
		}
		p.Address = &addr
	}

	u, err := a.store.UpdateUserProfile(ctx, user.ID, p)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (a *Accounts) session(ctx context.Context, u *db.User) (*Session, error) {
	secret, token, err := a.tokens.Issue(ctx, u.ID, SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: secret, ExpiresAt: token.ExpiresAt, User: u}, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return "", apperr.Validation(fmt.Sprintf("name must be %d to %d characters", MinNameLength, MaxNameLength))
	}
	return name, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email must be a valid address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

func cleanAddress(in db.Address) (db.Address, error) {
	fields := []*string{&in.Line1, &in.Line2, &in.City, &in.State, &in.PostalCode, &in.Country}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
		if utf8.RuneCountInString(*f) > MaxAddressField {
			return db.Address{}, apperr.Validation(fmt.Sprintf("address fields must be at most %d characters", MaxAddressField))
		}
	}
	return in, nil
}
