package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jobtrack/api/db"
	"jobtrack/api/internal/store"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

func (c *cli) migrations() fs.FS {
	if strings.TrimSpace(c.cfg.MigrationsDir) != "" {
		return os.DirFS(c.cfg.MigrationsDir)
	}
	return db.Migrations()
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			conn, err := store.Open(cmd.Context(), c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := store.ApplyMigrations(cmd.Context(), conn, c.migrations())
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", version)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			}
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			conn, err := store.Open(cmd.Context(), c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			rolled, err := store.RollbackMigrations(cmd.Context(), conn, c.migrations(), steps)
			for _, version := range rolled {
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back", version)
			}
			return err
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
