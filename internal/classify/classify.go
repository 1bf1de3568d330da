// Package classify defines the three classification collaborators consumed by
// the prediction orchestrator and the backends that implement them.
package classify

import (
	"context"
	"fmt"
)

// SentimentClassifier returns the polarity of a text.
type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (Result, error)
}

// IssueClassifier returns the best-scoring civic issue category of a text.
type IssueClassifier interface {
	ClassifyIssue(ctx context.Context, text string) (Result, error)
}

// EntityExtractor returns the named entities of a text in source order.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
}

// Backend names a collaborator implementation.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendRules  Backend = "rules"
	BackendONNX   Backend = "onnx"
	BackendClaude Backend = "claude"
	BackendOpenAI Backend = "openai"
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case BackendRemote, BackendRules, BackendONNX, BackendClaude, BackendOpenAI:
		return b, nil
	default:
		return "", fmt.Errorf("unknown classifier backend %q", name)
	}
}

// Named is implemented by collaborators that report which backend serves them.
type Named interface {
	Backend() Backend
}

// BackendOf returns the backend of a collaborator, or "unknown".
func BackendOf(c any) Backend {
	if n, ok := c.(Named); ok {
		return n.Backend()
	}
	return "unknown"
}

// Set bundles the three collaborators with the resources that must be released
// on shutdown.
type Set struct {
	Sentiment SentimentClassifier
	Issue     IssueClassifier
	Entities  EntityExtractor

	closers []func() error
}

// Close releases backend resources such as ONNX sessions.
func (s *Set) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
