package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/schedule"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and cancel scheduled emails",
	}
	cmd.AddCommand(newScheduleListCmd(opts))
	cmd.AddCommand(newScheduleCancelCmd(opts))
	return cmd
}

func newScheduleListCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending scheduled emails",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			sched, st, err := a.openScheduler(nil, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			emails, err := sched.List(cmd.Context(), all)
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}

			printHeading(a.out, "Scheduled emails")
			if len(emails) == 0 {
				printMuted(a.out, "No scheduled emails")
				return nil
			}
			for _, e := range emails {
				line := fmt.Sprintf("%s  %s  %-9s %s: %s",
					mutedStyle.Render(e.ID[:8]),
					e.SendAt.In(loc).Format("2006-01-02 15:04"),
					e.Status,
					e.Recipient,
					e.Subject)
				if e.Status == schedule.StatusFailed && e.LastError != "" {
					line += " " + errorStyle.Render("("+e.LastError+")")
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include sent, failed and cancelled emails")
	return cmd
}

func newScheduleCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending scheduled email",
		Long:  `Cancel a pending scheduled email. ID may be the full id or the prefix shown by 'schedule list'.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			sched, st, err := a.openScheduler(nil, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := resolveJobID(cmd, sched, args[0])
			if err != nil {
				return err
			}
			if err := sched.Cancel(cmd.Context(), id); err != nil {
				if errors.Is(err, schedule.ErrNotPending) {
					return fmt.Errorf("email %s is no longer pending", id)
				}
				return err
			}
			printSuccess(a.out, "Cancelled scheduled email "+id)
			return nil
		},
	}
}

// resolveJobID expands a unique id prefix among pending emails.
func resolveJobID(cmd *cobra.Command, sched *schedule.Scheduler, prefix string) (string, error) {
	emails, err := sched.List(cmd.Context(), false)
	if err != nil {
		return "", err
	}
	var match string
	for _, e := range emails {
		if e.ID == prefix {
			return e.ID, nil
		}
		if len(prefix) >= 4 && strings.HasPrefix(e.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = e.ID
		}
	}
	if match == "" {
		// Let Cancel report not-found or not-pending for the full id.
		return prefix, nil
	}
	return match, nil
}
