package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/autoreply"
)

func newEnableCmd(opts *rootOptions) *cobra.Command {
	return newToggleCmd(opts, "enable", "Turn auto-replies on", autoreply.ActionEnable)
}

func newDisableCmd(opts *rootOptions) *cobra.Command {
	return newToggleCmd(opts, "disable", "Turn auto-replies off", autoreply.ActionDisable)
}

func newToggleCmd(opts *rootOptions, use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. A running daemon picks up the change from the state
file within a poll interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := e.Apply(cmd.Context(), autoreply.Intent{Action: action})
			return report(a.out, reply, err)
		},
	}
}

func newSmartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "smart on|off",
		Short:     "Allow or forbid LLM-generated replies",
		Long:      `Allow or forbid LLM-generated replies. When off, smart rules answer with their static message.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := e.Apply(cmd.Context(), autoreply.Intent{
				Action: autoreply.ActionToggleSmart,
				Status: strings.ToLower(args[0]),
			})
			return report(a.out, reply, err)
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask TEXT...",
		Short: "Manage auto-reply rules in plain language",
		Long: `Manage auto-reply rules in plain language. The text is interpreted by the
configured LLM and applied like the equivalent explicit command.`,
		Example: `  inboxreply ask "reply to my boss after 6pm that I'll answer tomorrow"
  inboxreply ask "remove rule 2"
  inboxreply ask "turn off smart replies"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			assistant, err := a.assistant(nil)
			if err != nil {
				return err
			}
			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := e.HandleCommand(cmd.Context(), assistant, strings.Join(args, " "))
			return report(a.out, reply, err)
		},
	}
}
