package apperr

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Write logs err with request context and sends its JSON response.
func Write(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e := As(err)
	if e == nil {
		return
	}

	attrs := []any{
		"error_type", e.Type,
		"message", e.Message,
		"path", r.URL.Path,
		"method", r.Method,
		"status", e.HTTPStatus(),
	}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}

	ctx := r.Context()
	switch e.Type {
	case TypeValidation, TypeNotFound, TypeUnauthorized, TypeForbidden, TypeRateLimited:
		logger.InfoContext(ctx, "request rejected", attrs...)
	case TypeConflict:
		logger.WarnContext(ctx, "conflict", attrs...)
	default:
		if e.Cause != nil {
			attrs = append(attrs, "err", e.Cause)
		}
		logger.ErrorContext(ctx, "request failed", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	json.NewEncoder(w).Encode(e.ToResponse())
}
