package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/db"
)

func newTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokensIssueCmd())
	return cmd
}

func newTokensIssueCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API token for a user",
		Long:  `Issues a bearer token for the user. The token is printed once and cannot be recovered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: invalid id %q", userID)
			}

			database, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			if _, err := database.GetUserByID(cmd.Context(), id); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("user %s not found", id)
				}
				return err
			}

			tm := auth.NewTokenManager(database, clockwork.NewRealClock(), slog.Default())
			secret, tok, err := tm.Issue(cmd.Context(), id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires %s\n", secret, tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
