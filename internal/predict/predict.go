// Package predict runs the three classifier collaborators for one text and
// combines their results into a single response.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/metrics"
	"github.com/civiclens/civiclens-go/internal/urgency"
)

// ErrEmptyText is returned before any collaborator runs when the input text
// is empty or only whitespace.
var ErrEmptyText = errors.New("text is required")

// Collaborator names used in errors, logs and metrics.
const (
	Sentiment = "sentiment"
	Issue     = "issue"
	NER       = "ner"
)

// CollaboratorError reports which collaborator failed a prediction.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Response is the prediction envelope returned to callers. Urgency carries
// only the level; the numeric score stays internal.
type Response struct {
	Sentiment classify.Result   `json:"sentiment"`
	Issue     classify.Result   `json:"issue"`
	NER       []classify.Entity `json:"ner"`
	Urgency   urgency.Level     `json:"urgency"`
}

// Analysis is a Response together with the full urgency assessment.
type Analysis struct {
	Response
	Assessment urgency.Assessment
}

// Predictor fans a text out to the collaborators and joins the results.
// It is safe for concurrent use when the collaborators are.
type Predictor struct {
	sentiment classify.SentimentClassifier
	issue     classify.IssueClassifier
	entities  classify.EntityExtractor
	metrics   *metrics.PredictMetrics
	logger    *slog.Logger
}

// New creates a Predictor. m may be nil.
func New(sentiment classify.SentimentClassifier, issue classify.IssueClassifier, entities classify.EntityExtractor, m *metrics.PredictMetrics, logger *slog.Logger) *Predictor {
	return &Predictor{
		sentiment: sentiment,
		issue:     issue,
		entities:  entities,
		metrics:   m,
		logger:    logger,
	}
}

// NewFromSet creates a Predictor over a classifier set.
func NewFromSet(set *classify.Set, m *metrics.PredictMetrics, logger *slog.Logger) *Predictor {
	return New(set.Sentiment, set.Issue, set.Entities, m, logger)
}

// Predict returns the prediction envelope for text.
func (p *Predictor) Predict(ctx context.Context, text string) (*Response, error) {
	a, err := p.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	return &a.Response, nil
}

// Analyze runs all three collaborators concurrently and waits for every one
// of them. Any failure fails the whole request; no partial result is
// returned. Collaborators are not cancelled when the caller goes away or
// when a sibling fails.
func (p *Predictor) Analyze(ctx context.Context, text string) (*Analysis, error) {
	if strings.TrimSpace(text) == "" {
		p.metrics.ObservePrediction("invalid")
		return nil, ErrEmptyText
	}

	callCtx := context.WithoutCancel(ctx)
	start := time.Now()

	var (
		g        errgroup.Group
		sent     classify.Result
		issue    classify.Result
		entities []classify.Entity
	)

	g.Go(func() error {
		r, err := p.timed(Sentiment, p.sentiment, func() (classify.Result, error) {
			return p.sentiment.ClassifySentiment(callCtx, text)
		})
		sent = r
		return err
	})
	g.Go(func() error {
		r, err := p.timed(Issue, p.issue, func() (classify.Result, error) {
			return p.issue.ClassifyIssue(callCtx, text)
		})
		issue = r
		return err
	})
	g.Go(func() error {
		began := time.Now()
		ents, err := p.entities.ExtractEntities(callCtx, text)
		if err == nil {
			err = classify.ValidateEntities(ents)
		}
		p.metrics.ObserveCollaborator(NER, string(classify.BackendOf(p.entities)), time.Since(began), err)
		if err != nil {
			return &CollaboratorError{Collaborator: NER, Err: err}
		}
		entities = ents
		return nil
	})

	if err := g.Wait(); err != nil {
		p.metrics.ObservePrediction("error")
		p.logger.WarnContext(ctx, "prediction failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if entities == nil {
		entities = []classify.Entity{}
	}

	assessment := urgency.Assess(sent, issue)
	p.metrics.ObservePrediction("success")
	p.metrics.ObserveUrgency(string(assessment.Level), assessment.Score)

	p.logger.InfoContext(ctx, "prediction complete",
		"sentiment", sent.Label,
		"issue", issue.Label,
		"entities", len(entities),
		"urgency", assessment.Level,
		"urgency_score", assessment.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Analysis{
		Response: Response{
			Sentiment: sent,
			Issue:     issue,
			NER:       entities,
			Urgency:   assessment.Level,
		},
		Assessment: assessment,
	}, nil
}

// timed runs one single-result collaborator call, validates its output and
// records its duration.
func (p *Predictor) timed(name string, collaborator any, call func() (classify.Result, error)) (classify.Result, error) {
	began := time.Now()
	r, err := call()
	if err == nil {
		err = r.Validate()
	}
	p.metrics.ObserveCollaborator(name, string(classify.BackendOf(collaborator)), time.Since(began), err)
	if err != nil {
		return classify.Result{}, &CollaboratorError{Collaborator: name, Err: err}
	}
	return r, nil
}
