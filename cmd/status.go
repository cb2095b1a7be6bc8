package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved auto-reply state and assistant data",
		Long: `Show the saved auto-reply state, the stored contacts and history and the
number of pending scheduled emails. The live state of a running daemon is
served on its /status endpoint when metrics are enabled.`,
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
			settings := e.Settings()
			stats := a.store.Stats()

			sched, st, err := a.openScheduler(nil, nil)
			if err != nil {
				return err
			}
			defer st.Close()
			pending, err := sched.List(cmd.Context(), false)
			if err != nil {
				return err
			}

			printHeading(a.out, "inboxreply "+version)
			printField(a.out, "Account", a.cfg.Account)
			printField(a.out, "Auto-reply", onOffLabel(settings.Active))
			printField(a.out, "Smart replies", onOffLabel(settings.SmartReplies))
			printField(a.out, "Rules", len(settings.Rules))
			printField(a.out, "LLM", llmLabel(a))
			printField(a.out, "Contacts", stats.Contacts)
			printField(a.out, "Sent (history)", stats.History)
			printField(a.out, "Scheduled", len(pending))
			printField(a.out, "State file", a.store.Path())

			if h := a.store.History(1); len(h) > 0 {
				last := h[0]
				printMuted(a.out, fmt.Sprintf("Last sent %s: %s to %s", last.Timestamp.Format("2006-01-02 15:04"), last.Kind, last.Recipient))
			}
			return nil
		},
	}
}

func llmLabel(a *app) string {
	if !a.cfg.LLMEnabled() {
		return mutedStyle.Render("not configured")
	}
	model := a.cfg.LLM.Model
	if model == "" {
		model = "default model"
	}
	return a.cfg.LLM.Provider + " (" + model + ")"
}
