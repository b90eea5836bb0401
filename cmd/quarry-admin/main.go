// quarry-admin is the operator CLI: user promotion, verification
// backfill, and wiping non-production databases.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quarry/internal/config"
	"quarry/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "quarry-admin",
		Short:         "Administrative tooling for a quarry deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")

	openStore := func() (*store.Store, func(), error) {
		cfg := config.Load(configPath)
		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return store.New(db), func() { _ = db.Close() }, nil
	}

	var email string
	grantAdmin := &cobra.Command{
		Use:   "grant-admin",
		Short: "Promote a user to admin by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			st, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			if err := st.GrantAdmin(context.Background(), email); err != nil {
				return fmt.Errorf("grant admin: %w", err)
			}
			fmt.Printf("%s is now an admin\n", email)
			return nil
		},
	}
	grantAdmin.Flags().StringVar(&email, "email", "", "email of the user to promote")

	verifyUsers := &cobra.Command{
		Use:   "verify-users",
		Short: "Mark every user's email as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			n, err := st.MarkAllUsersVerified(context.Background())
			if err != nil {
				return fmt.Errorf("verify users: %w", err)
			}
			fmt.Printf("verified %d users\n", n)
			return nil
		},
	}

	var confirmed bool
	truncate := &cobra.Command{
		Use:   "truncate",
		Short: "Wipe all data. Test and staging environments only",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to truncate without --yes")
			}
			st, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			if err := st.TruncateAll(context.Background()); err != nil {
				return fmt.Errorf("truncate: %w", err)
			}
			fmt.Println("all tables truncated")
			return nil
		},
	}
	truncate.Flags().BoolVar(&confirmed, "yes", false, "confirm the wipe")

	root.AddCommand(grantAdmin, verifyUsers, truncate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
