package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const sentimentPrompt = `You classify the sentiment of citizen complaints.
Reply with JSON only: {"label": "negative" | "neutral" | "positive", "confidence": <number between 0 and 1>}.`

const issuePromptHeader = `You classify citizen complaints into exactly one civic issue category.
Choose the label from this list and copy it verbatim:
`

const issuePromptFooter = `
Reply with JSON only: {"label": "<one label from the list>", "confidence": <number between 0 and 1>}.`

const entityPrompt = `You extract named entities from citizen complaints.
Tags: PER (person), ORG (organisation), LOC (place, street or area), DATE, TIME, MISC.
Reply with JSON only: {"entities": [{"token": "<exact text span>", "tag": "<tag>"}]} in the order the spans appear. Use an empty list when there are none.`

// completer sends one system+user exchange to a chat model and returns the
// text of its answer.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// LLM implements the three collaborators on top of a chat model.
type LLM struct {
	backend  Backend
	model    completer
	taxonomy *Taxonomy
	issueSys string
}

func newLLMClassifier(backend Backend, model completer, taxonomy *Taxonomy) *LLM {
	return &LLM{
		backend:  backend,
		model:    model,
		taxonomy: taxonomy,
		issueSys: issuePrompt(taxonomy),
	}
}

func issuePrompt(t *Taxonomy) string {
	var b strings.Builder
	b.WriteString(issuePromptHeader)
	for _, l := range t.Labels() {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(issuePromptFooter)
	return b.String()
}

func (c *LLM) Backend() Backend { return c.backend }

func (c *LLM) ClassifySentiment(ctx context.Context, text string) (Result, error) {
	content, err := c.model.complete(ctx, sentimentPrompt, text)
	if err != nil {
		return Result{}, fmt.Errorf("sentiment: %w", err)
	}
	var r Result
	if err := parseJSONAnswer(content, &r); err != nil {
		return Result{}, fmt.Errorf("sentiment: %w", err)
	}
	r.Label = strings.ToLower(strings.TrimSpace(r.Label))
	return r, nil
}

func (c *LLM) ClassifyIssue(ctx context.Context, text string) (Result, error) {
	content, err := c.model.complete(ctx, c.issueSys, text)
	if err != nil {
		return Result{}, fmt.Errorf("issue: %w", err)
	}
	var r Result
	if err := parseJSONAnswer(content, &r); err != nil {
		return Result{}, fmt.Errorf("issue: %w", err)
	}
	label := c.taxonomy.Canonical(r.Label)
	if label == "" {
		return Result{}, fmt.Errorf("issue: %w: label %q is not a candidate", ErrMalformedResult, r.Label)
	}
	r.Label = label
	return r, nil
}

func (c *LLM) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	content, err := c.model.complete(ctx, entityPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	var answer struct {
		Entities []Entity `json:"entities"`
	}
	if err := parseJSONAnswer(content, &answer); err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	if answer.Entities == nil {
		return []Entity{}, nil
	}
	return answer.Entities, nil
}

// parseJSONAnswer decodes a JSON object from model output that may wrap it in
// prose or a code fence.
func parseJSONAnswer(content string, dest any) error {
	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), dest); err == nil {
		return nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), dest); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: no JSON object in model answer", ErrMalformedResult)
}
