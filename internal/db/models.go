package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Genders a profile can record.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// User is an account. Users created from the CLI have no email or password
// and authenticate with issued tokens only.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Role         string     `json:"role"`
	Gender       string     `json:"gender"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Address      *Address   `json:"address,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Address is the postal address of a profile.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// ProfilePatch lists the profile columns UpdateUserProfile writes. Nil fields
// keep the stored value.
type ProfilePatch struct {
	Name      *string
	Gender    *string
	BirthDate *time.Time
	Address   *Address
}

// IsAdmin reports whether u may see and modify every complaint.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// APIToken is a bearer token; only the SHA-256 hash of the secret is stored.
type APIToken struct {
	Hash      string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Complaint is a stored complaint row. Analysis holds the JSON prediction and
// is nil while the complaint is pending analysis.
type Complaint struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Text      string          `json:"text"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Status    string          `json:"status"`
	Analysis  json.RawMessage `json:"analysis"`
	Urgency   string          `json:"urgency,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ComplaintPatch lists the columns UpdateComplaint writes. Nil fields keep the
// stored value. The analysis and urgency are written together, only when
// SetAnalysis is true; a nil Analysis then marks the complaint pending.
type ComplaintPatch struct {
	Text        *string
	Latitude    *float64
	Longitude   *float64
	Status      *string
	SetAnalysis bool
	Analysis    json.RawMessage
	Urgency     string
}

// ComplaintFilter narrows ListComplaints. A nil UserID lists every complaint.
type ComplaintFilter struct {
	UserID *uuid.UUID
	Limit  int
	Offset int
}

// ComplaintEvent is the payload of a complaint_events notification.
type ComplaintEvent struct {
	Type   string    `json:"type"`
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

// Complaint event types.
const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventAnalyzed = "analyzed"
	EventDeleted  = "deleted"
)
