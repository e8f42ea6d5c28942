package main

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/coverline/agency-sdk/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Migrate the database to the latest version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGoose(goose.Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGoose(goose.Down)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGoose(goose.Status)
			},
		},
	)
	return cmd
}

func withGoose(fn func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error) error {
	conf := configuration.Use()

	db, err := sql.Open("pgx", conf.Database.Opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(db, filepath.Join(conf.MigrationsDir, "agency"))
}
