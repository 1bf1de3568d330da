package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/urgency"
)

func newScoreCmd() *cobra.Command {
	var sentiment, issue string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score urgency from classifier results",
		Long: `Computes the urgency score and level for a sentiment and an issue result
given as LABEL:CONFIDENCE, without calling any classifier.`,
		Example: `  civiclens score --sentiment negative:0.9 --issue pothole:0.8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseResult(sentiment)
			if err != nil {
				return fmt.Errorf("--sentiment: %w", err)
			}
			i, err := parseResult(issue)
			if err != nil {
				return fmt.Errorf("--issue: %w", err)
			}

			a := urgency.Assess(s, i)
			fmt.Fprintf(cmd.OutOrStdout(), "score:   %.2f\nurgency: %s\n", a.Score, colorLevel(a.Level))
			return nil
		},
	}
	cmd.Flags().StringVar(&sentiment, "sentiment", "", "Sentiment result as LABEL:CONFIDENCE")
	cmd.Flags().StringVar(&issue, "issue", "", "Issue result as LABEL:CONFIDENCE")
	cmd.MarkFlagRequired("sentiment")
	cmd.MarkFlagRequired("issue")
	return cmd
}

// parseResult parses LABEL:CONFIDENCE. The label may itself contain colons.
func parseResult(s string) (classify.Result, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return classify.Result{}, fmt.Errorf("expected LABEL:CONFIDENCE, got %q", s)
	}
	conf, err := strconv.ParseFloat(s[i+1:], 64)
	if err != nil {
		return classify.Result{}, fmt.Errorf("invalid confidence %q", s[i+1:])
	}
	r := classify.Result{Label: strings.TrimSpace(s[:i]), Confidence: conf}
	if err := r.Validate(); err != nil {
		return classify.Result{}, err
	}
	return r, nil
}

func colorLevel(l urgency.Level) string {
	switch l {
	case urgency.High:
		return color.RedString(string(l))
	case urgency.Medium:
		return color.YellowString(string(l))
	default:
		return color.GreenString(string(l))
	}
}
