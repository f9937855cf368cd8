// Command jobtrackctl operates a jobtrack deployment: migrations and roles
// against the database, jobs and the board through the REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobtrack/api/internal/apiclient"
	"jobtrack/api/internal/config"
	"jobtrack/api/internal/logging"
)

type cli struct {
	cfg     config.Config
	logger  *zap.Logger
	apiURL  string
	apiKey  string
	verbose bool
}

func (c *cli) client() *apiclient.Client {
	return apiclient.New(c.apiURL, c.apiKey, apiclient.WithLogger(c.logger))
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "jobtrackctl",
		Short:         "Operate the jobtrack job board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			if c.apiURL == "" {
				c.apiURL = cfg.APIURL
			}
			if c.apiKey == "" {
				c.apiKey = cfg.APIKey
			}
			level := "warn"
			if c.verbose {
				level = "debug"
			}
			c.logger, err = logging.New(level, "console")
			return err
		},
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "REST API base URL (default $JOBTRACK_API_URL)")
	root.PersistentFlags().StringVar(&c.apiKey, "api-key", "", "API key (default $API_KEY)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log API calls")

	root.AddCommand(
		newMigrateCmd(c),
		newUsersCmd(c),
		newJobsCmd(c),
		newIngestCmd(c),
		newBoardCmd(c),
		newCalendarCmd(c),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
