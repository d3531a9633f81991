package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"apseq/cmd/internal/app"
	"apseq/cmd/internal/database/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "apseq",
		Short:        "Multi-tenant project collaboration server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "",
		"Postgres URL (defaults to APSEQ_DATABASE_URL)")

	open := func() (*sql.DB, error) {
		url := databaseURL
		if url == "" {
			url = os.Getenv("APSEQ_DATABASE_URL")
		}
		if url == "" {
			return nil, errors.New("database URL required: set --database-url or APSEQ_DATABASE_URL")
		}
		return sql.Open("pgx", url)
	}

	run := func(fn func(*sql.DB) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return fn(db)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(migrations.Up),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  run(migrations.Down),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE:  run(migrations.Status),
		},
	)
	return cmd
}
