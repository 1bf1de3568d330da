package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultClaudeModel        = "claude-sonnet-4-5"
	defaultBedrockClaudeModel = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

// ClaudeConfig selects how the Anthropic API is reached.
type ClaudeConfig struct {
	APIKey string
	Model  string
	// UseBedrock routes requests through AWS Bedrock with the default AWS
	// credential chain instead of an API key.
	UseBedrock bool
}

type claudeCompleter struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude backend for all three collaborators.
func NewClaude(ctx context.Context, cfg ClaudeConfig, taxonomy *Taxonomy) (*LLM, error) {
	model := cfg.Model
	var opts []option.RequestOption
	if cfg.UseBedrock {
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx))
		if model == "" {
			model = defaultBedrockClaudeModel
		}
	} else {
		if cfg.APIKey == "" {
			return nil, errors.New("claude: API key not configured")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if model == "" {
		model = defaultClaudeModel
	}

	c := &claudeCompleter{client: anthropic.NewClient(opts...), model: model}
	return newLLMClassifier(BackendClaude, c, taxonomy), nil
}

func (c *claudeCompleter) complete(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("%w: empty claude response", ErrMalformedResult)
}
