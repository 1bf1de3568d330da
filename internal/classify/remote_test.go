package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inferenceServer replies to POST {"text"} with the given status and body.
func inferenceServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Text)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteSentiment(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `{"label":"negative","confidence":0.93}`)
	r := NewRemote(RemoteConfig{SentimentURL: srv.URL})

	got, err := r.ClassifySentiment(context.Background(), "terrible roads")
	require.NoError(t, err)
	assert.Equal(t, Result{Label: "negative", Confidence: 0.93}, got)
}

func TestRemoteIssue(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `{"label":"pothole","confidence":0.81,"extra":"ignored"}`)
	r := NewRemote(RemoteConfig{IssueURL: srv.URL})

	got, err := r.ClassifyIssue(context.Background(), "big pothole")
	require.NoError(t, err)
	assert.Equal(t, Result{Label: "pothole", Confidence: 0.81}, got)
}

func TestRemoteIssueCanonicalLabel(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `{"label":" Water Leakage ","confidence":0.7}`)
	r := NewRemote(RemoteConfig{IssueURL: srv.URL})

	got, err := r.ClassifyIssue(context.Background(), "pipe burst")
	require.NoError(t, err)
	assert.Equal(t, "water leakage", got.Label)
}

func TestRemoteIssueRejectsUnknownLabel(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `{"label":"alien landing","confidence":0.99}`)
	r := NewRemote(RemoteConfig{IssueURL: srv.URL})

	_, err := r.ClassifyIssue(context.Background(), "lights in the sky")
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteIssueUsesConfiguredTaxonomy(t *testing.T) {
	tax, err := ParseTaxonomy([]byte("groups:\n  - name: transit\n    labels: [bus stop damage]\n"))
	require.NoError(t, err)

	srv := inferenceServer(t, http.StatusOK, `{"label":"bus stop damage","confidence":0.6}`)
	got, err := NewRemote(RemoteConfig{IssueURL: srv.URL, Taxonomy: tax}).ClassifyIssue(context.Background(), "shelter glass broken")
	require.NoError(t, err)
	assert.Equal(t, "bus stop damage", got.Label)

	srv = inferenceServer(t, http.StatusOK, `{"label":"pothole","confidence":0.6}`)
	_, err = NewRemote(RemoteConfig{IssueURL: srv.URL, Taxonomy: tax}).ClassifyIssue(context.Background(), "road hole")
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteEntityShapes(t *testing.T) {
	want := []Entity{{Token: "MG Road", Tag: "LOC"}}
	tests := []struct {
		name string
		body string
		want []Entity
	}{
		{"bare list", `[{"token":"MG Road","tag":"LOC"}]`, want},
		{"entities key", `{"entities":[{"token":"MG Road","tag":"LOC"}]}`, want},
		{"ner key", `{"ner":[{"token":"MG Road","tag":"LOC"}]}`, want},
		{"empty list", `[]`, []Entity{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := inferenceServer(t, http.StatusOK, tt.body)
			r := NewRemote(RemoteConfig{NERURL: srv.URL})

			got, err := r.ExtractEntities(context.Background(), "pothole on MG Road")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteEntityMalformed(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `{"spans":[]}`)
	r := NewRemote(RemoteConfig{NERURL: srv.URL})

	_, err := r.ExtractEntities(context.Background(), "text")
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteNon2xx(t *testing.T) {
	srv := inferenceServer(t, http.StatusServiceUnavailable, `model loading`)
	r := NewRemote(RemoteConfig{SentimentURL: srv.URL})

	_, err := r.ClassifySentiment(context.Background(), "text")
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, http.StatusServiceUnavailable, remoteErr.StatusCode)
	assert.Equal(t, "model loading", remoteErr.Body)
}

func TestRemoteMalformedBody(t *testing.T) {
	srv := inferenceServer(t, http.StatusOK, `not json`)
	r := NewRemote(RemoteConfig{IssueURL: srv.URL})

	_, err := r.ClassifyIssue(context.Background(), "text")
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteNotConfigured(t *testing.T) {
	r := NewRemote(RemoteConfig{})
	_, err := r.ClassifySentiment(context.Background(), "text")
	assert.ErrorContains(t, err, "not configured")
}

func TestRemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"label":"neutral","confidence":0.5}`))
	}))
	defer srv.Close()

	r := NewRemote(RemoteConfig{SentimentURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := r.ClassifySentiment(context.Background(), "text")
	assert.Error(t, err)
}
