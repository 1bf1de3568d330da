package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/config"
	"github.com/civiclens/civiclens-go/internal/predict"
)

func newPredictCmd() *cobra.Command {
	var (
		serverURL string
		backend   string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "predict TEXT...",
		Short: "Predict sentiment, issue, entities and urgency for a text",
		Long: `Runs a prediction for the text formed by joining the arguments.

With --server the text is sent to a running server. Otherwise the classifiers
are built locally from the environment, or all three use --backend when set.`,
		Example: `  civiclens predict --backend rules "Huge pothole on MG Road since Monday"
  civiclens predict --server http://localhost:8080 "No water in Ward 12"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			var (
				resp *predict.Response
				err  error
			)
			if serverURL != "" {
				resp, err = predictRemote(cmd.Context(), serverURL, text)
			} else {
				resp, err = predictLocal(cmd.Context(), backend, text)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			renderPrediction(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Base URL of a running server")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend for all three classifiers (remote, onnx, claude, openai, rules)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	return cmd
}

func predictLocal(ctx context.Context, backend, text string) (*predict.Response, error) {
	var opts classify.Options
	if backend != "" {
		b, err := classify.ParseBackend(backend)
		if err != nil {
			return nil, err
		}
		opts = classify.Options{Sentiment: b, Issue: b, Entities: b}
	} else {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		taxonomy, err := cfg.Taxonomy()
		if err != nil {
			return nil, err
		}
		opts = cfg.ClassifyOptions(taxonomy)
	}

	set, err := classify.NewSet(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer set.Close()

	resp, err := predict.NewFromSet(set, nil, slog.Default()).Predict(ctx, text)
	if err != nil {
		return nil, predict.AppError(err)
	}
	return resp, nil
}

func predictRemote(ctx context.Context, baseURL, text string) (*predict.Response, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request prediction: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var e apperr.Response
		if json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", res.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d", res.StatusCode)
	}

	var resp predict.Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &resp, nil
}

func renderPrediction(w io.Writer, resp *predict.Response) {
	fmt.Fprintf(w, "sentiment: %s (%.2f)\n", resp.Sentiment.Label, resp.Sentiment.Confidence)
	fmt.Fprintf(w, "issue:     %s (%.2f)\n", resp.Issue.Label, resp.Issue.Confidence)
	fmt.Fprintf(w, "urgency:   %s\n", colorLevel(resp.Urgency))

	if len(resp.NER) == 0 {
		fmt.Fprintln(w, "entities:  none")
		return
	}
	fmt.Fprintln(w, "entities:")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Token", "Tag"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, e := range resp.NER {
		table.Append([]string{e.Token, e.Tag})
	}
	table.Render()
}
