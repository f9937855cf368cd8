package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobtrack/api/internal/dashboard"
)

type viewFlags struct {
	mine bool
	me   string
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.mine, "mine", false, "only jobs owned by --me")
	cmd.Flags().StringVar(&f.me, "me", "", "owner identity for --mine")
}

// load refreshes a view. A failed load is not fatal; the view then holds
// sample data and a warning.
func (f *viewFlags) load(cmd *cobra.Command, c *cli) (*dashboard.View, error) {
	if f.mine && f.me == "" {
		return nil, fmt.Errorf("--mine needs --me")
	}
	view := dashboard.NewView(c.client(), f.me)
	if f.mine {
		view.SetScope(dashboard.ScopeMine)
	}
	if err := view.Refresh(cmd.Context()); err != nil {
		c.logger.Debug("board refresh failed", zap.Error(err))
	}
	return view, nil
}

func newBoardCmd(c *cli) *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the kanban board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := flags.load(cmd, c)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderBoard(view.Board(), view.Warning()))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newCalendarCmd(c *cli) *cobra.Command {
	var flags viewFlags
	var month string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print jobs by in-hands date for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := dashboard.MonthOf(time.Now())
			if month != "" {
				parsed, err := dashboard.ParseMonth(month)
				if err != nil {
					return err
				}
				target = parsed
			}
			view, err := flags.load(cmd, c)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCalendar(view.Calendar(target), view.Warning()))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&month, "month", "", "month to show, YYYY-MM (default current)")
	return cmd
}
