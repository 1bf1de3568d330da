package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/civiclens/civiclens-go/internal/inference"
)

// ONNXSentiment serves sentiment from a local sequence-classification model.
type ONNXSentiment struct {
	model *inference.SequenceClassifier
}

// NewONNXSentiment loads the model directory (model.onnx, vocab.txt, labels.txt).
func NewONNXSentiment(dir string) (*ONNXSentiment, error) {
	m, err := inference.LoadSequenceClassifier(dir)
	if err != nil {
		return nil, fmt.Errorf("onnx sentiment: %w", err)
	}
	return &ONNXSentiment{model: m}, nil
}

func (s *ONNXSentiment) Backend() Backend { return BackendONNX }

// ClassifySentiment implements SentimentClassifier.
func (s *ONNXSentiment) ClassifySentiment(_ context.Context, text string) (Result, error) {
	p, err := s.model.Classify(text)
	if err != nil {
		return Result{}, fmt.Errorf("sentiment: %w", err)
	}
	return Result{Label: strings.ToLower(p.Label), Confidence: p.Score}, nil
}

func (s *ONNXSentiment) Close() error { return s.model.Close() }

// ONNXIssue serves zero-shot issue classification by embedding similarity.
type ONNXIssue struct {
	model *inference.ZeroShotClassifier
}

// NewONNXIssue loads a sentence-embedding model and embeds the taxonomy labels.
func NewONNXIssue(dir string, taxonomy *Taxonomy) (*ONNXIssue, error) {
	m, err := inference.LoadZeroShot(dir, taxonomy.Labels())
	if err != nil {
		return nil, fmt.Errorf("onnx issue: %w", err)
	}
	return &ONNXIssue{model: m}, nil
}

func (c *ONNXIssue) Backend() Backend { return BackendONNX }

// ClassifyIssue implements IssueClassifier.
func (c *ONNXIssue) ClassifyIssue(_ context.Context, text string) (Result, error) {
	p, err := c.model.Classify(text)
	if err != nil {
		return Result{}, fmt.Errorf("issue: %w", err)
	}
	return Result{Label: p.Label, Confidence: p.Score}, nil
}

func (c *ONNXIssue) Close() error { return c.model.Close() }

// ONNXEntities serves NER from a local token-classification model.
type ONNXEntities struct {
	model *inference.TokenClassifier
}

// NewONNXEntities loads the model directory (model.onnx, vocab.txt, labels.txt).
func NewONNXEntities(dir string) (*ONNXEntities, error) {
	m, err := inference.LoadTokenClassifier(dir)
	if err != nil {
		return nil, fmt.Errorf("onnx ner: %w", err)
	}
	return &ONNXEntities{model: m}, nil
}

func (e *ONNXEntities) Backend() Backend { return BackendONNX }

// ExtractEntities implements EntityExtractor.
func (e *ONNXEntities) ExtractEntities(_ context.Context, text string) ([]Entity, error) {
	spans, err := e.model.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	entities := make([]Entity, 0, len(spans))
	for _, s := range spans {
		entities = append(entities, Entity{Token: s.Text, Tag: s.Tag})
	}
	return entities, nil
}

func (e *ONNXEntities) Close() error { return e.model.Close() }
