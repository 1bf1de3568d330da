package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civiclens/civiclens-go/internal/db"
)

// connect opens the database named by DATABASE_URL.
func connect(ctx context.Context) (*db.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return db.Connect(ctx, dsn, slog.Default())
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users of the complaint API",
	}
	cmd.AddCommand(newUsersCreateCmd(), newUsersListCmd())
	return cmd
}

func newUsersCreateCmd() *cobra.Command {
	var name, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != db.RoleUser && role != db.RoleAdmin {
				return fmt.Errorf("--role must be %s or %s", db.RoleUser, db.RoleAdmin)
			}

			database, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			u := &db.User{Name: name, Role: role}
			if err := database.CreateUser(cmd.Context(), u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Name, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", db.RoleUser, "Role (user or admin)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			users, err := database.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Name", "Email", "Role", "Created At"})
			table.SetBorder(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, u := range users {
				table.Append([]string{u.ID.String(), u.Name, u.Email, u.Role, u.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			table.Render()
			return nil
		},
	}
}
