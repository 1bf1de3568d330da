package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesSentiment(t *testing.T) {
	r := NewRules(DefaultTaxonomy())
	tests := []struct {
		text      string
		wantLabel string
		wantConf  float64
	}{
		{"The road is terrible and dangerous", "negative", 0.99},
		{"Thanks, the streetlight was fixed quickly", "positive", 0.99},
		{"There is a streetlight on my lane", "neutral", 0.6},
		{"The repair work is not good", "negative", 0.99},
		{"Good response but the drain is still blocked", "neutral", 0.5},
		{"Dirty, filthy and unsafe but the staff were helpful", "negative", 0.77},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.ClassifySentiment(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestRulesIssue(t *testing.T) {
	r := NewRules(DefaultTaxonomy())
	tests := []struct {
		text      string
		wantLabel string
		wantConf  float64
	}{
		{"There is a huge pothole near my house", "pothole", 0.86},
		{"The pothole has become a crater in the middle of the road", "pothole", 0.89},
		{"I smell gas leaking in the kitchen", "gas leakage", 0.9},
		{"Open manhole outside the school", "open manhole", 0.9},
		{"hello world", "other", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.ClassifyIssue(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestRulesIssueRestrictedTaxonomy(t *testing.T) {
	tax, err := ParseTaxonomy([]byte("groups: [{name: roads, labels: [Pothole, damaged road]}]"))
	require.NoError(t, err)
	r := NewRules(tax)

	got, err := r.ClassifyIssue(context.Background(), "pothole again")
	require.NoError(t, err)
	assert.Equal(t, "Pothole", got.Label)

	// Without "other" the first candidate is returned with zero confidence.
	got, err = r.ClassifyIssue(context.Background(), "my gas is leaking")
	require.NoError(t, err)
	assert.Equal(t, Result{Label: "Pothole", Confidence: 0}, got)
}

func TestRulesEntities(t *testing.T) {
	r := NewRules(DefaultTaxonomy())
	got, err := r.ExtractEntities(context.Background(), "Garbage near Gandhi Road since yesterday, call 9876543210")
	require.NoError(t, err)
	assert.Equal(t, []Entity{
		{Token: "Gandhi Road", Tag: "LOC"},
		{Token: "yesterday", Tag: "DATE"},
		{Token: "9876543210", Tag: "PHONE"},
	}, got)
	assert.NoError(t, ValidateEntities(got))
}

func TestRulesEntitiesNone(t *testing.T) {
	r := NewRules(DefaultTaxonomy())
	got, err := r.ExtractEntities(context.Background(), "nothing to see here")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
