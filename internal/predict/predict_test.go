package predict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/metrics"
	"github.com/civiclens/civiclens-go/internal/urgency"
)

// fakeCollaborator serves all three collaborator interfaces from canned values.
type fakeCollaborator struct {
	result   classify.Result
	entities []classify.Entity
	err      error
	delay    time.Duration

	calls    atomic.Int32
	finished atomic.Int32
	ctxErr   atomic.Value
}

func (f *fakeCollaborator) run(ctx context.Context) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		f.ctxErr.Store(err)
	}
	f.finished.Add(1)
}

func (f *fakeCollaborator) ClassifySentiment(ctx context.Context, _ string) (classify.Result, error) {
	f.run(ctx)
	return f.result, f.err
}

func (f *fakeCollaborator) ClassifyIssue(ctx context.Context, _ string) (classify.Result, error) {
	f.run(ctx)
	return f.result, f.err
}

func (f *fakeCollaborator) ExtractEntities(ctx context.Context, _ string) ([]classify.Entity, error) {
	f.run(ctx)
	return f.entities, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPredictor(sent, issue, ner *fakeCollaborator) (*Predictor, *metrics.PredictMetrics) {
	m := metrics.NewPredictMetrics(prometheus.NewRegistry())
	return New(sent, issue, ner, m, testLogger()), m
}

func TestPredictScenarios(t *testing.T) {
	tests := []struct {
		name      string
		sentiment classify.Result
		issue     classify.Result
		want      urgency.Level
		wantScore float64
	}{
		{"negative pothole", classify.Result{Label: "negative", Confidence: 0.9}, classify.Result{Label: "pothole", Confidence: 0.8}, urgency.High, 0.96},
		{"positive garbage", classify.Result{Label: "positive", Confidence: 0.6}, classify.Result{Label: "garbage", Confidence: 0.5}, urgency.Low, 0.23},
		{"neutral unrelated", classify.Result{Label: "neutral", Confidence: 1.0}, classify.Result{Label: "unrelated complaint", Confidence: 1.0}, urgency.Medium, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ents := []classify.Entity{{Token: "MG Road", Tag: "LOC"}}
			p, _ := newTestPredictor(
				&fakeCollaborator{result: tt.sentiment},
				&fakeCollaborator{result: tt.issue},
				&fakeCollaborator{entities: ents},
			)

			a, err := p.Analyze(context.Background(), "some complaint text")
			require.NoError(t, err)
			assert.Equal(t, tt.sentiment, a.Sentiment)
			assert.Equal(t, tt.issue, a.Issue)
			assert.Equal(t, ents, a.NER)
			assert.Equal(t, tt.want, a.Urgency)
			assert.InDelta(t, tt.wantScore, a.Assessment.Score, 1e-9)
		})
	}
}

func TestPredictEmptyTextSkipsCollaborators(t *testing.T) {
	sent := &fakeCollaborator{result: classify.Result{Label: "neutral", Confidence: 1}}
	issue := &fakeCollaborator{result: classify.Result{Label: "other", Confidence: 1}}
	ner := &fakeCollaborator{}
	p, m := newTestPredictor(sent, issue, ner)

	for _, text := range []string{"", "   ", "\n\t"} {
		resp, err := p.Predict(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyText)
		assert.Nil(t, resp)
	}
	assert.Zero(t, sent.calls.Load())
	assert.Zero(t, issue.calls.Load())
	assert.Zero(t, ner.calls.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Predictions.WithLabelValues("invalid")))
}

func TestPredictIssueFailureFailsWholeRequest(t *testing.T) {
	boom := errors.New("model unavailable")
	sent := &fakeCollaborator{result: classify.Result{Label: "negative", Confidence: 0.9}, delay: 50 * time.Millisecond}
	issue := &fakeCollaborator{err: boom}
	ner := &fakeCollaborator{entities: []classify.Entity{}, delay: 50 * time.Millisecond}
	p, m := newTestPredictor(sent, issue, ner)

	resp, err := p.Predict(context.Background(), "pothole on main road")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, boom)

	var collabErr *CollaboratorError
	require.True(t, errors.As(err, &collabErr))
	assert.Equal(t, Issue, collabErr.Collaborator)

	// The join waits for the slower siblings before returning.
	assert.Equal(t, int32(1), sent.finished.Load())
	assert.Equal(t, int32(1), ner.finished.Load())
	assert.Nil(t, sent.ctxErr.Load())
	assert.Nil(t, ner.ctxErr.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues("error")))
}

func TestPredictMalformedResults(t *testing.T) {
	ok := classify.Result{Label: "neutral", Confidence: 0.5}
	tests := []struct {
		name       string
		sent       *fakeCollaborator
		issue      *fakeCollaborator
		ner        *fakeCollaborator
		wantCollab string
	}{
		{"sentiment NaN", &fakeCollaborator{result: classify.Result{Label: "neutral", Confidence: math.NaN()}}, &fakeCollaborator{result: ok}, &fakeCollaborator{}, Sentiment},
		{"issue out of range", &fakeCollaborator{result: ok}, &fakeCollaborator{result: classify.Result{Label: "pothole", Confidence: 1.5}}, &fakeCollaborator{}, Issue},
		{"issue empty label", &fakeCollaborator{result: ok}, &fakeCollaborator{result: classify.Result{Confidence: 0.5}}, &fakeCollaborator{}, Issue},
		{"entity without tag", &fakeCollaborator{result: ok}, &fakeCollaborator{result: ok}, &fakeCollaborator{entities: []classify.Entity{{Token: "x"}}}, NER},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPredictor(tt.sent, tt.issue, tt.ner)
			_, err := p.Predict(context.Background(), "text")
			assert.ErrorIs(t, err, classify.ErrMalformedResult)

			var collabErr *CollaboratorError
			require.True(t, errors.As(err, &collabErr))
			assert.Equal(t, tt.wantCollab, collabErr.Collaborator)
		})
	}
}

func TestPredictIgnoresCallerCancellation(t *testing.T) {
	sent := &fakeCollaborator{result: classify.Result{Label: "negative", Confidence: 0.9}, delay: 20 * time.Millisecond}
	issue := &fakeCollaborator{result: classify.Result{Label: "pothole", Confidence: 0.8}, delay: 20 * time.Millisecond}
	ner := &fakeCollaborator{delay: 20 * time.Millisecond}
	p, _ := newTestPredictor(sent, issue, ner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := p.Predict(ctx, "pothole")
	require.NoError(t, err)
	assert.Equal(t, urgency.High, resp.Urgency)
	assert.Nil(t, sent.ctxErr.Load())
	assert.Nil(t, issue.ctxErr.Load())
	assert.Nil(t, ner.ctxErr.Load())
}

func TestPredictRunsCollaboratorsConcurrently(t *testing.T) {
	delay := 100 * time.Millisecond
	p, _ := newTestPredictor(
		&fakeCollaborator{result: classify.Result{Label: "neutral", Confidence: 1}, delay: delay},
		&fakeCollaborator{result: classify.Result{Label: "other", Confidence: 1}, delay: delay},
		&fakeCollaborator{delay: delay},
	)

	start := time.Now()
	_, err := p.Predict(context.Background(), "text")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*delay)
}

func TestPredictNilEntitiesBecomeEmptyList(t *testing.T) {
	p, m := newTestPredictor(
		&fakeCollaborator{result: classify.Result{Label: "negative", Confidence: 0.9}},
		&fakeCollaborator{result: classify.Result{Label: "pothole", Confidence: 0.8}},
		&fakeCollaborator{entities: nil},
	)

	resp, err := p.Predict(context.Background(), "text")
	require.NoError(t, err)
	assert.NotNil(t, resp.NER)
	assert.Empty(t, resp.NER)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UrgencyLevels.WithLabelValues("high")))
}

func TestPredictWithoutMetrics(t *testing.T) {
	p := New(
		&fakeCollaborator{result: classify.Result{Label: "neutral", Confidence: 1}},
		&fakeCollaborator{result: classify.Result{Label: "other", Confidence: 1}},
		&fakeCollaborator{},
		nil, testLogger(),
	)
	resp, err := p.Predict(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, urgency.Medium, resp.Urgency)
}
