package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobtrack/api/internal/app"
	"jobtrack/api/internal/store"
)

func newUsersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-role EMAIL viewer|staff|admin",
		Short: "Set a user's role, creating the profile when missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			conn, err := store.Open(cmd.Context(), c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			pg := store.NewPostgresStore(conn)
			accounts := app.NewAccounts(app.SessionConfig{JWTSecret: []byte(c.cfg.JWTSecret)}, pg, pg, nil, c.logger)
			profile, err := accounts.SetRoleByEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", profile.Email, profile.Role)
			return nil
		},
	})
	return cmd
}
