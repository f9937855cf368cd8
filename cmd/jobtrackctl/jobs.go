package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"jobtrack/api/internal/apiclient"
	"jobtrack/api/internal/jobs"
)

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func parseStatusArg(raw string) (jobs.Status, error) {
	status, ok := jobs.ParseStatus(raw)
	if !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and edit jobs",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the newest jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter *jobs.Status
			if status != "" {
				parsed, err := parseStatusArg(status)
				if err != nil {
					return err
				}
				filter = &parsed
			}
			list, err := c.client().ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderJobTable(list))
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "only jobs in this status")

	var create jobs.CreateInput
	var inHands, owner, priority, estSONo string
	createCmd := &cobra.Command{
		Use:   "create JOB_NO TITLE",
		Short: "Create a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			create.JobNo, create.Title = args[0], args[1]
			create.InHandsDate = optional(inHands)
			create.Owner = optional(owner)
			create.Priority = optional(priority)
			create.EstSONo = optional(estSONo)
			job, err := c.client().CreateJob(cmd.Context(), create)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job %d (%s)\n", job.ID, job.JobNo)
			return nil
		},
	}
	createCmd.Flags().StringVar(&create.Status, "status", "", "initial status (default intake)")
	createCmd.Flags().StringVar(&inHands, "in-hands", "", "in-hands date, YYYY-MM-DD")
	createCmd.Flags().StringVar(&owner, "owner", "", "owner e-mail")
	createCmd.Flags().StringVar(&priority, "priority", "", "priority label")
	createCmd.Flags().StringVar(&estSONo, "est-so", "", "estimate or sales order number")

	move := &cobra.Command{
		Use:   "move ID STATUS",
		Short: "Move a job to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			status, err := parseStatusArg(args[1])
			if err != nil {
				return err
			}
			job, err := c.client().SetStatus(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", job.JobNo, job.Status.Label())
			return nil
		},
	}

	setDate := &cobra.Command{
		Use:   "set-date ID YYYY-MM-DD|none",
		Short: "Set or clear a job's in-hands date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			patch := apiclient.PatchRequest{ClearDate: args[1] == "none"}
			if !patch.ClearDate {
				date, err := jobs.ParseDate(args[1])
				if err != nil {
					return err
				}
				patch.InHandsDate = &date
			}
			job, err := c.client().PatchJob(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s in-hands: %s\n", job.JobNo, formatDate(job.InHandsDate))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a job and its activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			detail, err := c.client().JobDetail(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(detail.Job, detail.Activities))
			return nil
		},
	}

	cmd.AddCommand(list, createCmd, move, setDate, show)
	return cmd
}

func newIngestCmd(c *cli) *cobra.Command {
	var input jobs.IngestInput
	var subject, snippet, link, source string
	cmd := &cobra.Command{
		Use:   "ingest JOB_NO",
		Short: "Record an activity, creating the job when needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.JobNo = args[0]
			input.Subject = optional(subject)
			input.Snippet = optional(snippet)
			input.GmailLink = optional(link)
			input.Source = optional(source)
			result, err := c.client().Ingest(cmd.Context(), input)
			if err != nil {
				return err
			}
			verb := "appended to"
			if result.JobCreated {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activity %d %s job %d\n", result.Activity.ID, verb, result.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "e-mail subject, used as the title of a new job")
	cmd.Flags().StringVar(&snippet, "snippet", "", "message excerpt")
	cmd.Flags().StringVar(&link, "link", "", "link to the source message")
	cmd.Flags().StringVar(&source, "source", "", "activity source (default email)")
	return cmd
}
