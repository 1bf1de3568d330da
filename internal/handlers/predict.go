package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/predict"
	"github.com/civiclens/civiclens-go/internal/ratelimit"
)

// Predictor produces the prediction envelope for a text.
type Predictor interface {
	Predict(ctx context.Context, text string) (*predict.Response, error)
}

// PredictHandler serves the prediction endpoint.
type PredictHandler struct {
	predictor Predictor
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// NewPredictHandler creates a PredictHandler. limiter may be nil.
func NewPredictHandler(predictor Predictor, limiter *ratelimit.Limiter, logger *slog.Logger) *PredictHandler {
	return &PredictHandler{predictor: predictor, limiter: limiter, logger: logger}
}

type predictRequest struct {
	Text string `json:"text"`
}

// Predict handles POST /predict and POST /v1/predict.
func (ph *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if ph.limiter != nil && ph.limiter.Check(w, r, "predict") {
		return
	}

	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, ph.logger, err)
		return
	}

	resp, err := ph.predictor.Predict(r.Context(), req.Text)
	if err != nil {
		apperr.Write(w, r, ph.logger, predict.AppError(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
