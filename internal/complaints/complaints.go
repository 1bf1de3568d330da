// Package complaints stores citizen complaints and keeps each one annotated
// with the prediction of its text.
package complaints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/db"
	"github.com/civiclens/civiclens-go/internal/predict"
	"github.com/civiclens/civiclens-go/internal/urgency"
)

// MinTextLength is the minimum number of characters of a complaint after trimming.
const MinTextLength = 5

// MaxListLimit caps the page size of List.
const MaxListLimit = 200

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusOpen, StatusInProgress, StatusResolved:
		return st, nil
	default:
		return "", apperr.Validation("status must be one of open, in_progress, resolved").WithContext("status", s)
	}
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90 {
		return apperr.Validation("location.lat must be between -90 and 90")
	}
	if math.IsNaN(l.Lng) || l.Lng < -180 || l.Lng > 180 {
		return apperr.Validation("location.lng must be between -180 and 180")
	}
	return nil
}

// Complaint is the API view of a complaint. Analysis is nil while pending.
type Complaint struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Text      string            `json:"text"`
	Location  Location          `json:"location"`
	Status    Status            `json:"status"`
	Analysis  *predict.Response `json:"analysis"`
	Urgency   urgency.Level     `json:"urgency,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type CreateInput struct {
	Text     string   `json:"text"`
	Location Location `json:"location"`
}

// UpdateInput carries the fields to change; nil fields are left as they are.
type UpdateInput struct {
	Text     *string   `json:"text"`
	Location *Location `json:"location"`
	Status   *string   `json:"status"`
}

// Store is the persistence the service needs; *db.DB satisfies it.
type Store interface {
	CreateComplaint(ctx context.Context, c *db.Complaint) error
	GetComplaint(ctx context.Context, id uuid.UUID) (*db.Complaint, error)
	ListComplaints(ctx context.Context, f db.ComplaintFilter) ([]db.Complaint, error)
	ListPendingComplaints(ctx context.Context, limit int) ([]db.Complaint, error)
	UpdateComplaint(ctx context.Context, id uuid.UUID, p db.ComplaintPatch) (*db.Complaint, error)
	SetComplaintAnalysis(ctx context.Context, id uuid.UUID, text string, analysis json.RawMessage, urgency string) error
	DeleteComplaint(ctx context.Context, id uuid.UUID) error
}

// Predictor produces the analysis of a complaint text.
type Predictor interface {
	Predict(ctx context.Context, text string) (*predict.Response, error)
}

type Service struct {
	store     Store
	predictor Predictor
	logger    *slog.Logger
}

func NewService(store Store, predictor Predictor, logger *slog.Logger) *Service {
	return &Service{store: store, predictor: predictor, logger: logger}
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return "", apperr.Validation(fmt.Sprintf("text must be at least %d characters", MinTextLength))
	}
	return text, nil
}

// Create validates and stores a complaint for user. The text is analysed
// first; when analysis fails the complaint is stored pending.
func (s *Service) Create(ctx context.Context, user *db.User, in CreateInput) (*Complaint, error) {
	text, err := validateText(in.Text)
	if err != nil {
		return nil, err
	}
	if err := in.Location.Validate(); err != nil {
		return nil, err
	}

	row := &db.Complaint{
		ID:        uuid.New(),
		UserID:    user.ID,
		Text:      text,
		Latitude:  in.Location.Lat,
		Longitude: in.Location.Lng,
		Status:    string(StatusOpen),
	}
	row.Analysis, row.Urgency = s.analyze(ctx, row.ID, text)

	if err := s.store.CreateComplaint(ctx, row); err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}
	s.logger.InfoContext(ctx, "complaint created", "complaint_id", row.ID, "user_id", user.ID, "urgency", row.Urgency)
	return fromRow(row)
}

// Get returns a complaint visible to user.
func (s *Service) Get(ctx context.Context, user *db.User, id uuid.UUID) (*Complaint, error) {
	row, err := s.authorized(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

// List returns the complaints visible to user, most urgent first, then newest.
func (s *Service) List(ctx context.Context, user *db.User, limit, offset int) ([]Complaint, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		return nil, apperr.Validation("offset must not be negative")
	}

	f := db.ComplaintFilter{Limit: limit, Offset: offset}
	if !user.IsAdmin() {
		f.UserID = &user.ID
	}
	rows, err := s.store.ListComplaints(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}

	out := make([]Complaint, 0, len(rows))
	for i := range rows {
		c, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// Update applies in to a complaint visible to user. A changed text drops the
// previous analysis and is analysed again. Only the fields in in are written,
// so changes made by others while the text is analysed are kept.
func (s *Service) Update(ctx context.Context, user *db.User, id uuid.UUID, in UpdateInput) (*Complaint, error) {
	row, err := s.authorized(ctx, user, id)
	if err != nil {
		return nil, err
	}

	var patch db.ComplaintPatch
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		status := string(st)
		patch.Status = &status
	}
	if in.Location != nil {
		if err := in.Location.Validate(); err != nil {
			return nil, err
		}
		patch.Latitude, patch.Longitude = &in.Location.Lat, &in.Location.Lng
	}
	if in.Text != nil {
		text, err := validateText(*in.Text)
		if err != nil {
			return nil, err
		}
		if text != row.Text {
			patch.Text = &text
			patch.SetAnalysis = true
			patch.Analysis, patch.Urgency = s.analyze(ctx, id, text)
		}
	}

	updated, err := s.store.UpdateComplaint(ctx, id, patch)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("complaint not found")
		}
		return nil, fmt.Errorf("update complaint: %w", err)
	}
	return fromRow(updated)
}

// Delete removes a complaint visible to user.
func (s *Service) Delete(ctx context.Context, user *db.User, id uuid.UUID) error {
	if _, err := s.authorized(ctx, user, id); err != nil {
		return err
	}
	if err := s.store.DeleteComplaint(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("complaint not found")
		}
		return fmt.Errorf("delete complaint: %w", err)
	}
	s.logger.InfoContext(ctx, "complaint deleted", "complaint_id", id, "user_id", user.ID)
	return nil
}

// Backfill analyses up to batch pending complaints, oldest first. Failures are
// logged and the complaint stays pending for the next run.
func (s *Service) Backfill(ctx context.Context, batch int) (int, error) {
	pending, err := s.store.ListPendingComplaints(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("list pending complaints: %w", err)
	}

	analyzed := 0
	for i := range pending {
		if ctx.Err() != nil {
			return analyzed, ctx.Err()
		}
		c := &pending[i]
		resp, err := s.predictor.Predict(ctx, c.Text)
		if err != nil {
			s.logger.WarnContext(ctx, "backfill analysis failed", "complaint_id", c.ID, "err", err)
			continue
		}
		raw, err := json.Marshal(resp)
		if err != nil {
			return analyzed, fmt.Errorf("marshal analysis: %w", err)
		}
		err = s.store.SetComplaintAnalysis(ctx, c.ID, c.Text, raw, string(resp.Urgency))
		if errors.Is(err, db.ErrNotFound) {
			// Deleted or edited since it was listed.
			continue
		}
		if err != nil {
			return analyzed, fmt.Errorf("store analysis: %w", err)
		}
		analyzed++
	}
	return analyzed, nil
}

func (s *Service) authorized(ctx context.Context, user *db.User, id uuid.UUID) (*db.Complaint, error) {
	row, err := s.store.GetComplaint(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("complaint not found")
		}
		return nil, fmt.Errorf("get complaint: %w", err)
	}
	if row.UserID != user.ID && !user.IsAdmin() {
		return nil, apperr.Forbidden("not allowed to access this complaint")
	}
	return row, nil
}

// analyze returns the encoded analysis of text and its urgency, or nil and ""
// when analysis fails and the complaint is to stay pending.
func (s *Service) analyze(ctx context.Context, id uuid.UUID, text string) (json.RawMessage, string) {
	resp, err := s.predictor.Predict(ctx, text)
	if err != nil {
		s.logger.WarnContext(ctx, "complaint analysis failed, stored as pending", "complaint_id", id, "err", err)
		return nil, ""
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal analysis failed", "complaint_id", id, "err", err)
		return nil, ""
	}
	return raw, string(resp.Urgency)
}

func fromRow(row *db.Complaint) (*Complaint, error) {
	c := &Complaint{
		ID:        row.ID,
		UserID:    row.UserID,
		Text:      row.Text,
		Location:  Location{Lat: row.Latitude, Lng: row.Longitude},
		Status:    Status(row.Status),
		Urgency:   urgency.Level(row.Urgency),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Analysis) > 0 {
		var resp predict.Response
		if err := json.Unmarshal(row.Analysis, &resp); err != nil {
			return nil, fmt.Errorf("decode analysis of %s: %w", row.ID, err)
		}
		c.Analysis = &resp
	}
	return c, nil
}
