// Package urgency derives a bounded urgency assessment from a sentiment and an
// issue classification. The weights are a fixed scoring policy, not a model.
package urgency

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/civiclens/civiclens-go/internal/classify"
)

// Level is the coarse urgency bucket.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Thresholds for LevelFor. A score equal to a threshold falls in the upper bucket.
const (
	HighThreshold   = 0.75
	MediumThreshold = 0.4
)

// Assessment is the aggregator output for one request.
type Assessment struct {
	Score float64 `json:"score"`
	Level Level   `json:"label"`
}

// Sentiment polarity weights applied to the sentiment confidence.
const (
	negativeWeight = 0.8
	neutralWeight  = 0.5
	otherWeight    = 0.3
)

// tier is one severity group of the issue bonus. Tiers are checked in
// declaration order and the first tier with a matching keyword wins.
type tier struct {
	Keywords []string
	Weight   float64
}

var tiers = []tier{
	{Keywords: []string{"pothole", "accident"}, Weight: 0.3},
	{Keywords: []string{"water leakage", "electricity"}, Weight: 0.2},
	{Keywords: []string{"garbage", "streetlight"}, Weight: 0.1},
}

// Assess combines a sentiment and an issue result into an Assessment.
// Both confidences must already be validated to lie in [0,1]; Assess does
// not repair out-of-range input.
func Assess(sentiment, issue classify.Result) Assessment {
	score := BaseScore(sentiment) + IssueBonus(issue)
	score = round2(math.Min(1.0, score))

	return Assessment{Score: score, Level: LevelFor(score)}
}

// round2 rounds to two decimals from the exact binary value of x, ties to
// even. Scaling by 100 first would round 0.745 (stored as 0.74499...) up.
func round2(x float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 2, 64), 64)
	return r
}

// BaseScore weights the sentiment confidence by polarity. Unknown labels are
// weighted like "positive".
func BaseScore(sentiment classify.Result) float64 {
	switch strings.ToLower(sentiment.Label) {
	case "negative":
		return negativeWeight * sentiment.Confidence
	case "neutral":
		return neutralWeight * sentiment.Confidence
	default:
		return otherWeight * sentiment.Confidence
	}
}

// IssueBonus returns the severity bonus of the first tier whose keyword is a
// substring of the lowercased issue label, or 0 when none matches.
func IssueBonus(issue classify.Result) float64 {
	label := strings.ToLower(issue.Label)
	for _, t := range tiers {
		for _, kw := range t.Keywords {
			if strings.Contains(label, kw) {
				return t.Weight * issue.Confidence
			}
		}
	}
	return 0
}

// LevelFor maps a score to its level.
func LevelFor(score float64) Level {
	switch {
	case score >= HighThreshold:
		return High
	case score >= MediumThreshold:
		return Medium
	default:
		return Low
	}
}

// listOrder is the listing order of levels. Anything else sorts after them.
var listOrder = []Level{High, Medium, Low}

// Rank orders levels for listing: high first, unknown or empty last.
func Rank(level string) int {
	for i, l := range listOrder {
		if Level(level) == l {
			return i + 1
		}
	}
	return len(listOrder) + 1
}

// RankSQL renders Rank as a SQL CASE expression over column.
func RankSQL(column string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for i, l := range listOrder {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", l, i+1)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(listOrder)+1)
	return b.String()
}
