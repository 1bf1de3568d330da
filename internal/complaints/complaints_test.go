package complaints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/db"
	"github.com/civiclens/civiclens-go/internal/predict"
	"github.com/civiclens/civiclens-go/internal/urgency"
)

// memStore is an in-memory Store with the ordering rules of the database.
type memStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]db.Complaint
	tick time.Time

	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{rows: map[uuid.UUID]db.Complaint{}, tick: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) now() time.Time {
	s.tick = s.tick.Add(time.Second)
	return s.tick
}

func (s *memStore) CreateComplaint(_ context.Context, c *db.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.rows[c.ID] = *c
	return nil
}

func (s *memStore) GetComplaint(_ context.Context, id uuid.UUID) (*db.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) ListComplaints(_ context.Context, f db.ComplaintFilter) ([]db.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Complaint
	for _, c := range s.rows {
		if f.UserID == nil || c.UserID == *f.UserID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := urgency.Rank(out[i].Urgency), urgency.Rank(out[j].Urgency)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []db.Complaint{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) ListPendingComplaints(_ context.Context, limit int) ([]db.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Complaint
	for _, c := range s.rows {
		if c.Analysis == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdateComplaint(_ context.Context, id uuid.UUID, p db.ComplaintPatch) (*db.Complaint, error) {
	if hook := s.beforeUpdate; hook != nil {
		s.beforeUpdate = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if p.Text != nil {
		c.Text = *p.Text
	}
	if p.Latitude != nil {
		c.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		c.Longitude = *p.Longitude
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.SetAnalysis {
		c.Analysis, c.Urgency = p.Analysis, p.Urgency
	}
	c.UpdatedAt = s.now()
	s.rows[id] = c
	return &c, nil
}

func (s *memStore) SetComplaintAnalysis(_ context.Context, id uuid.UUID, text string, analysis json.RawMessage, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok || c.Text != text {
		return db.ErrNotFound
	}
	c.Analysis = analysis
	c.Urgency = level
	s.rows[id] = c
	return nil
}

func (s *memStore) DeleteComplaint(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// fakePredictor rates texts longer than 20 bytes high and the rest low. It
// fails every call when fail is set; during is run before each answer.
type fakePredictor struct {
	mu     sync.Mutex
	fail   bool
	calls  int
	during func()
}

func (p *fakePredictor) Predict(_ context.Context, text string) (*predict.Response, error) {
	if p.during != nil {
		p.during()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, &predict.CollaboratorError{Collaborator: predict.Sentiment, Err: errors.New("unavailable")}
	}
	level := urgency.Low
	if len(text) > 20 {
		level = urgency.High
	}
	return &predict.Response{
		Sentiment: classify.Result{Label: "negative", Confidence: 0.9},
		Issue:     classify.Result{Label: "pothole", Confidence: 0.8},
		NER:       []classify.Entity{},
		Urgency:   level,
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService() (*Service, *memStore, *fakePredictor) {
	store := newMemStore()
	p := &fakePredictor{}
	return NewService(store, p, discardLogger()), store, p
}

var (
	alice = &db.User{ID: uuid.New(), Name: "alice", Role: db.RoleUser}
	bob   = &db.User{ID: uuid.New(), Name: "bob", Role: db.RoleUser}
	admin = &db.User{ID: uuid.New(), Name: "admin", Role: db.RoleAdmin}
)

func assertAppErr(t *testing.T, err error, want apperr.Type) {
	t.Helper()
	var e *apperr.Error
	require.True(t, errors.As(err, &e), "expected apperr, got %v", err)
	assert.Equal(t, want, e.Type)
}

func TestCreateAnalyses(t *testing.T) {
	svc, _, _ := newService()
	c, err := svc.Create(context.Background(), alice, CreateInput{
		Text:     "  Huge pothole on MG Road near the school  ",
		Location: Location{Lat: 12.97, Lng: 77.59},
	})
	require.NoError(t, err)

	assert.Equal(t, "Huge pothole on MG Road near the school", c.Text)
	assert.Equal(t, StatusOpen, c.Status)
	assert.Equal(t, alice.ID, c.UserID)
	require.NotNil(t, c.Analysis)
	assert.Equal(t, urgency.High, c.Analysis.Urgency)
	assert.Equal(t, urgency.High, c.Urgency)
}

func TestCreateStoresPendingOnAnalysisFailure(t *testing.T) {
	svc, store, p := newService()
	p.fail = true

	c, err := svc.Create(context.Background(), alice, CreateInput{Text: "broken streetlight"})
	require.NoError(t, err)
	assert.Nil(t, c.Analysis)
	assert.Empty(t, c.Urgency)

	row, err := store.GetComplaint(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, row.Analysis)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"short text", CreateInput{Text: "  abc  "}},
		{"empty text", CreateInput{Text: ""}},
		{"lat too high", CreateInput{Text: "valid text", Location: Location{Lat: 90.1}}},
		{"lat too low", CreateInput{Text: "valid text", Location: Location{Lat: -91}}},
		{"lng too high", CreateInput{Text: "valid text", Location: Location{Lng: 180.5}}},
		{"lng too low", CreateInput{Text: "valid text", Location: Location{Lng: -181}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, p := newService()
			_, err := svc.Create(context.Background(), alice, tt.in)
			assertAppErr(t, err, apperr.TypeValidation)
			assert.Zero(t, p.calls)
		})
	}
}

func TestCreateBoundaryValues(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.Create(context.Background(), alice, CreateInput{Text: "12345", Location: Location{Lat: -90, Lng: 180}})
	assert.NoError(t, err)
	_, err = svc.Create(context.Background(), alice, CreateInput{Text: "नमस्ते जी", Location: Location{Lat: 90, Lng: -180}})
	assert.NoError(t, err)
}

func TestAccessControl(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, alice, CreateInput{Text: "garbage not collected"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, alice, c.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, admin, c.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, bob, c.ID)
	assertAppErr(t, err, apperr.TypeForbidden)

	status := "resolved"
	_, err = svc.Update(ctx, bob, c.ID, UpdateInput{Status: &status})
	assertAppErr(t, err, apperr.TypeForbidden)

	assertAppErr(t, svc.Delete(ctx, bob, c.ID), apperr.TypeForbidden)

	_, err = svc.Get(ctx, alice, uuid.New())
	assertAppErr(t, err, apperr.TypeNotFound)

	require.NoError(t, svc.Delete(ctx, admin, c.ID))
	_, err = svc.Get(ctx, alice, c.ID)
	assertAppErr(t, err, apperr.TypeNotFound)
}

func TestUpdateStatus(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, alice, CreateInput{Text: "water leakage at corner"})
	require.NoError(t, err)

	status := "in_progress"
	got, err := svc.Update(ctx, alice, c.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.NotNil(t, got.Analysis)

	bad := "closed"
	_, err = svc.Update(ctx, alice, c.ID, UpdateInput{Status: &bad})
	assertAppErr(t, err, apperr.TypeValidation)

	loc := Location{Lat: 100}
	_, err = svc.Update(ctx, alice, c.ID, UpdateInput{Location: &loc})
	assertAppErr(t, err, apperr.TypeValidation)
}

func TestUpdateTextReanalyses(t *testing.T) {
	svc, _, p := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, alice, CreateInput{Text: "short one"})
	require.NoError(t, err)
	require.Equal(t, urgency.Low, c.Urgency)

	same := "  short one "
	_, err = svc.Update(ctx, alice, c.ID, UpdateInput{Text: &same})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "unchanged text is not analysed again")

	longer := "a much longer description of the hazard"
	got, err := svc.Update(ctx, alice, c.ID, UpdateInput{Text: &longer})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, urgency.High, got.Urgency)

	p.fail = true
	other := "yet another description"
	got, err = svc.Update(ctx, alice, c.ID, UpdateInput{Text: &other})
	require.NoError(t, err)
	assert.Nil(t, got.Analysis, "failed re-analysis leaves the complaint pending")
	assert.Empty(t, got.Urgency)
}

func TestUpdateTextKeepsConcurrentStatusChange(t *testing.T) {
	svc, store, p := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, alice, CreateInput{Text: "tree fallen on road"})
	require.NoError(t, err)

	// An officer resolves the complaint while the edited text is analysed.
	p.during = func() {
		p.during = nil
		resolved := "resolved"
		_, err := svc.Update(ctx, admin, c.ID, UpdateInput{Status: &resolved})
		require.NoError(t, err)
	}
	text := "tree fallen on road, blocking both lanes"
	got, err := svc.Update(ctx, alice, c.ID, UpdateInput{Text: &text})
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, text, got.Text)
	assert.Equal(t, urgency.High, got.Urgency)

	row, err := store.GetComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "resolved", row.Status)
}

func TestUpdateStatusKeepsConcurrentBackfill(t *testing.T) {
	svc, store, p := newService()
	ctx := context.Background()
	p.fail = true
	c, err := svc.Create(ctx, alice, CreateInput{Text: "sewage overflow in lane 4"})
	require.NoError(t, err)
	require.Nil(t, c.Analysis)

	// The backfill job analyses the complaint after the status change read it.
	p.fail = false
	store.beforeUpdate = func() {
		n, err := svc.Backfill(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	status := "in_progress"
	got, err := svc.Update(ctx, alice, c.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.NotNil(t, got.Analysis, "a status change does not write the analysis")

	row, err := store.GetComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, row.Analysis)
}

func TestListScopesAndOrders(t *testing.T) {
	svc, _, p := newService()
	ctx := context.Background()

	low, _ := svc.Create(ctx, alice, CreateInput{Text: "low urgency"})
	high, _ := svc.Create(ctx, alice, CreateInput{Text: "this one is very urgent indeed"})
	p.fail = true
	pending, _ := svc.Create(ctx, alice, CreateInput{Text: "pending analysis"})
	p.fail = false
	bobs, _ := svc.Create(ctx, bob, CreateInput{Text: "bob complaint"})

	mine, err := svc.List(ctx, alice, 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []uuid.UUID{high.ID, low.ID, pending.ID}, []uuid.UUID{mine[0].ID, mine[1].ID, mine[2].ID})

	all, err := svc.List(ctx, admin, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Both low complaints: newest first.
	assert.Equal(t, bobs.ID, all[1].ID)
	assert.Equal(t, low.ID, all[2].ID)

	_, err = svc.List(ctx, alice, 10, -1)
	assertAppErr(t, err, apperr.TypeValidation)
}

func TestBackfill(t *testing.T) {
	svc, store, p := newService()
	ctx := context.Background()

	p.fail = true
	first, _ := svc.Create(ctx, alice, CreateInput{Text: "first pending"})
	second, _ := svc.Create(ctx, alice, CreateInput{Text: "second pending"})
	third, _ := svc.Create(ctx, alice, CreateInput{Text: "third pending"})

	n, err := svc.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "failures stay pending")

	p.fail = false
	n, err = svc.Backfill(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		row, _ := store.GetComplaint(ctx, id)
		assert.NotNil(t, row.Analysis)
	}
	row, _ := store.GetComplaint(ctx, third.ID)
	assert.Nil(t, row.Analysis)

	n, err = svc.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"open", "in_progress", "resolved"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}
	_, err := ParseStatus("Open")
	assertAppErr(t, err, apperr.TypeValidation)
}
