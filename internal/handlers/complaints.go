package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/complaints"
	"github.com/civiclens/civiclens-go/internal/db"
)

// ComplaintService is the complaint API surface; *complaints.Service satisfies it.
type ComplaintService interface {
	Create(ctx context.Context, user *db.User, in complaints.CreateInput) (*complaints.Complaint, error)
	Get(ctx context.Context, user *db.User, id uuid.UUID) (*complaints.Complaint, error)
	List(ctx context.Context, user *db.User, limit, offset int) ([]complaints.Complaint, error)
	Update(ctx context.Context, user *db.User, id uuid.UUID, in complaints.UpdateInput) (*complaints.Complaint, error)
	Delete(ctx context.Context, user *db.User, id uuid.UUID) error
}

type ComplaintHandler struct {
	svc    ComplaintService
	logger *slog.Logger
}

func NewComplaintHandler(svc ComplaintService, logger *slog.Logger) *ComplaintHandler {
	return &ComplaintHandler{svc: svc, logger: logger}
}

// Create handles POST /api/complaints
func (ch *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())

	var in complaints.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	c, err := ch.svc.Create(r.Context(), user, in)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /api/complaints?limit=N&offset=M
func (ch *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	list, err := ch.svc.List(r.Context(), user, limit, offset)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaints": list, "count": len(list)})
}

// Get handles GET /api/complaints/{id}
func (ch *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	c, err := ch.svc.Get(r.Context(), auth.GetUserFromCtx(r.Context()), id)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PATCH /api/complaints/{id}
func (ch *ComplaintHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	var in complaints.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	c, err := ch.svc.Update(r.Context(), auth.GetUserFromCtx(r.Context()), id, in)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/complaints/{id}
func (ch *ComplaintHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}

	if err := ch.svc.Delete(r.Context(), auth.GetUserFromCtx(r.Context()), id); err != nil {
		apperr.Write(w, r, ch.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func complaintID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid complaint id")
	}
	return id, nil
}

// queryInt returns 0 for a missing parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid " + name).WithContext(name, raw)
	}
	return n, nil
}
