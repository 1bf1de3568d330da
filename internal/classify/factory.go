package classify

import (
	"context"
	"fmt"

	"github.com/civiclens/civiclens-go/internal/inference"
)

// ONNXConfig locates the ONNX Runtime library and the per-task model directories.
type ONNXConfig struct {
	RuntimeLib   string
	SentimentDir string
	IssueDir     string
	NERDir       string
}

// Options selects a backend per collaborator.
type Options struct {
	Sentiment Backend
	Issue     Backend
	Entities  Backend

	Taxonomy *Taxonomy
	Remote   RemoteConfig
	ONNX     ONNXConfig
	Claude   ClaudeConfig
	OpenAI   OpenAIConfig
}

// NewSet builds the three collaborators. Models are loaded here, once, and
// released by Set.Close.
func NewSet(ctx context.Context, opts Options) (*Set, error) {
	if opts.Taxonomy == nil {
		opts.Taxonomy = DefaultTaxonomy()
	}
	b := &builder{opts: opts, set: &Set{}}

	var err error
	if b.set.Sentiment, err = b.sentiment(ctx); err != nil {
		b.set.Close()
		return nil, err
	}
	if b.set.Issue, err = b.issue(ctx); err != nil {
		b.set.Close()
		return nil, err
	}
	if b.set.Entities, err = b.entities(ctx); err != nil {
		b.set.Close()
		return nil, err
	}
	return b.set, nil
}

// builder shares one client per backend across collaborators.
type builder struct {
	opts Options
	set  *Set

	remote *Remote
	rules  *Rules
	claude *LLM
	openai *LLM
}

func (b *builder) sentiment(ctx context.Context) (SentimentClassifier, error) {
	switch b.opts.Sentiment {
	case BackendONNX:
		if err := inference.InitRuntime(b.opts.ONNX.RuntimeLib); err != nil {
			return nil, fmt.Errorf("onnx runtime: %w", err)
		}
		m, err := NewONNXSentiment(b.opts.ONNX.SentimentDir)
		if err != nil {
			return nil, err
		}
		b.set.closers = append(b.set.closers, m.Close)
		return m, nil
	default:
		return b.shared(ctx, b.opts.Sentiment)
	}
}

func (b *builder) issue(ctx context.Context) (IssueClassifier, error) {
	switch b.opts.Issue {
	case BackendONNX:
		if err := inference.InitRuntime(b.opts.ONNX.RuntimeLib); err != nil {
			return nil, fmt.Errorf("onnx runtime: %w", err)
		}
		m, err := NewONNXIssue(b.opts.ONNX.IssueDir, b.opts.Taxonomy)
		if err != nil {
			return nil, err
		}
		b.set.closers = append(b.set.closers, m.Close)
		return m, nil
	default:
		return b.shared(ctx, b.opts.Issue)
	}
}

func (b *builder) entities(ctx context.Context) (EntityExtractor, error) {
	switch b.opts.Entities {
	case BackendONNX:
		if err := inference.InitRuntime(b.opts.ONNX.RuntimeLib); err != nil {
			return nil, fmt.Errorf("onnx runtime: %w", err)
		}
		m, err := NewONNXEntities(b.opts.ONNX.NERDir)
		if err != nil {
			return nil, err
		}
		b.set.closers = append(b.set.closers, m.Close)
		return m, nil
	default:
		return b.shared(ctx, b.opts.Entities)
	}
}

// allTasks is implemented by backends that serve every collaborator.
type allTasks interface {
	SentimentClassifier
	IssueClassifier
	EntityExtractor
}

func (b *builder) shared(ctx context.Context, backend Backend) (allTasks, error) {
	switch backend {
	case BackendRemote:
		if b.remote == nil {
			cfg := b.opts.Remote
			cfg.Taxonomy = b.opts.Taxonomy
			b.remote = NewRemote(cfg)
		}
		return b.remote, nil
	case BackendRules:
		if b.rules == nil {
			b.rules = NewRules(b.opts.Taxonomy)
		}
		return b.rules, nil
	case BackendClaude:
		if b.claude == nil {
			c, err := NewClaude(ctx, b.opts.Claude, b.opts.Taxonomy)
			if err != nil {
				return nil, err
			}
			b.claude = c
		}
		return b.claude, nil
	case BackendOpenAI:
		if b.openai == nil {
			c, err := NewOpenAI(b.opts.OpenAI, b.opts.Taxonomy)
			if err != nil {
				return nil, err
			}
			b.openai = c
		}
		return b.openai, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", backend)
	}
}
