package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxRemoteResponse = 1 << 20

// RemoteConfig points each collaborator at its inference service.
type RemoteConfig struct {
	SentimentURL string
	IssueURL     string
	NERURL       string
	// Timeout bounds one HTTP exchange. Zero means no client-side timeout.
	Timeout time.Duration
	// Taxonomy holds the issue labels the issue service may answer with.
	// Nil means DefaultTaxonomy.
	Taxonomy *Taxonomy
}

// Remote calls per-model inference services over HTTP. Each service accepts
// POST {"text": "..."}.
type Remote struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemote creates a Remote backend.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = DefaultTaxonomy()
	}
	return &Remote{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Backend implements Named.
func (r *Remote) Backend() Backend { return BackendRemote }

// RemoteError is a non-2xx reply from an inference service.
type RemoteError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("inference service %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// ClassifySentiment implements SentimentClassifier.
func (r *Remote) ClassifySentiment(ctx context.Context, text string) (Result, error) {
	var res Result
	if err := r.post(ctx, r.cfg.SentimentURL, text, &res); err != nil {
		return Result{}, fmt.Errorf("sentiment: %w", err)
	}
	return res, nil
}

// ClassifyIssue implements IssueClassifier. Labels outside the taxonomy are
// rejected as malformed; accepted labels take their declared spelling.
func (r *Remote) ClassifyIssue(ctx context.Context, text string) (Result, error) {
	var res Result
	if err := r.post(ctx, r.cfg.IssueURL, text, &res); err != nil {
		return Result{}, fmt.Errorf("issue: %w", err)
	}
	label := r.cfg.Taxonomy.Canonical(res.Label)
	if label == "" {
		return Result{}, fmt.Errorf("issue: %w: label %q is not a candidate", ErrMalformedResult, res.Label)
	}
	res.Label = label
	return res, nil
}

// ExtractEntities implements EntityExtractor. The service may reply with a
// bare array or with an object holding the array under "entities" or "ner".
func (r *Remote) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	var raw json.RawMessage
	if err := r.post(ctx, r.cfg.NERURL, text, &raw); err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	entities, err := decodeEntities(raw)
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	return entities, nil
}

func decodeEntities(raw json.RawMessage) ([]Entity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Entity{}, nil
	}
	if trimmed[0] == '[' {
		var list []Entity
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		return list, nil
	}

	var wrapped struct {
		Entities []Entity `json:"entities"`
		NER      []Entity `json:"ner"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	switch {
	case wrapped.Entities != nil:
		return wrapped.Entities, nil
	case wrapped.NER != nil:
		return wrapped.NER, nil
	default:
		return nil, fmt.Errorf("%w: no entity list in response", ErrMalformedResult)
	}
}

func (r *Remote) post(ctx context.Context, url, text string, dest any) error {
	if url == "" {
		return errors.New("inference service URL not configured")
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference service %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &RemoteError{URL: url, StatusCode: resp.StatusCode, Body: msg}
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return nil
}
