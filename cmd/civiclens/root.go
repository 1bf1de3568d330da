package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/server"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "civiclens",
		Short:         "CivicLens complaint triage CLI",
		Long:          `civiclens scores complaint texts for urgency, queries a running prediction server and manages users and API tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine; the environment is used as is.
			_ = godotenv.Load()
			slog.SetDefault(server.SetupLogger(logLevel, "text", os.Stderr))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newScoreCmd(),
		newPredictCmd(),
		newLabelsCmd(),
		newUsersCmd(),
		newTokensCmd(),
	)
	return root
}
