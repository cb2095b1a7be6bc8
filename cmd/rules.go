package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxreply/internal/autoreply"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage auto-reply rules",
		Long: `Manage the auto-reply rules. Rules are checked in order; the first rule
whose time window contains the current time and whose senders match the
incoming message answers it. A rule without senders matches everyone.`,
	}

	cmd.AddCommand(newRulesListCmd(opts))
	cmd.AddCommand(newRulesAddCmd(opts))
	cmd.AddCommand(newRulesRemoveCmd(opts))
	cmd.AddCommand(newRulesExportCmd(opts))
	cmd.AddCommand(newRulesImportCmd(opts))

	return cmd
}

func newRulesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List auto-reply rules",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			renderRules(a.out, e.Settings())
			return nil
		},
	}
}

func newRulesAddCmd(opts *rootOptions) *cobra.Command {
	var (
		senders []string
		message string
		start   string
		end     string
		smart   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an auto-reply rule",
		Long: `Add an auto-reply rule. Times accept "HH:MM", "3:30pm" or "3pm".
A window whose end is before its start spans midnight.`,
		Example: `  inboxreply rules add --message "I'm in a meeting" --start 14:00 --end 15:00
  inboxreply rules add --sender boss@example.com --start 18:00 --end 9am --smart`,
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
			reply, err := e.Apply(cmd.Context(), autoreply.Intent{
				Action:    autoreply.ActionAddRule,
				Senders:   parseSenders(senders),
				Message:   message,
				StartTime: start,
				EndTime:   end,
				UseLLM:    &smart,
			})
			return report(a.out, reply, err)
		},
	}

	cmd.Flags().StringArrayVar(&senders, "sender", nil, "Sender address, domain or name fragment (repeatable, comma-separated)")
	cmd.Flags().StringVar(&message, "message", "", "Reply message, or the hint for a smart reply")
	cmd.Flags().StringVar(&start, "start", autoreply.DefaultRuleStart, "Window start time")
	cmd.Flags().StringVar(&end, "end", autoreply.DefaultRuleEnd, "Window end time")
	cmd.Flags().BoolVar(&smart, "smart", false, "Generate a contextual reply with the LLM")

	return cmd
}

func newRulesRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NUMBER",
		Aliases: []string{"rm"},
		Short:   "Remove an auto-reply rule by its number in 'rules list'",
		Args:    cobra.ExactArgs(1),
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
				Action:     autoreply.ActionRemoveRule,
				Identifier: args[0],
			})
			return report(a.out, reply, err)
		},
	}
}

func newRulesExportCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the auto-reply settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(e.Settings())
			if err != nil {
				return fmt.Errorf("failed to encode rules: %w", err)
			}
			if file == "" || file == "-" {
				_, err = a.out.Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", file, err)
			}
			printSuccess(a.out, fmt.Sprintf("Exported %d rules to %s", len(e.Settings().Rules), file))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Output file (default stdout)")
	return cmd
}

// rulesImport is the import document. Omitted flags keep their current value.
type rulesImport struct {
	Active       *bool            `yaml:"active"`
	SmartReplies *bool            `yaml:"smart_replies"`
	Rules        []autoreply.Rule `yaml:"rules"`
}

func decodeRulesImport(r io.Reader) (rulesImport, error) {
	var doc rulesImport
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return rulesImport{}, fmt.Errorf("failed to decode rules: %w", err)
	}
	return doc, nil
}

func (doc rulesImport) apply(current autoreply.Settings) autoreply.Settings {
	next := autoreply.Settings{
		Active:       current.Active,
		SmartReplies: current.SmartReplies,
		Rules:        doc.Rules,
	}
	if doc.Active != nil {
		next.Active = *doc.Active
	}
	if doc.SmartReplies != nil {
		next.SmartReplies = *doc.SmartReplies
	}
	return next
}

func newRulesImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the auto-reply rules with a YAML file ('-' for stdin)",
		Long: `Replace the auto-reply rules with the rules in a YAML file as written by
'rules export'. The active and smart_replies flags are only changed when the
file sets them. Invalid rules are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			doc, err := decodeRulesImport(in)
			if err != nil {
				return err
			}

			e, err := a.ruleEngine(cmd.Context())
			if err != nil {
				return err
			}
			dropped := e.ApplySettings(doc.apply(e.Settings()))
			if err := a.store.SaveSettings(cmd.Context(), e.Settings()); err != nil {
				return err
			}

			printSuccess(a.out, fmt.Sprintf("Imported %d rules", len(e.Settings().Rules)))
			if dropped > 0 {
				printWarning(a.out, fmt.Sprintf("Skipped %d invalid rules", dropped))
			}
			return nil
		},
	}
}

func renderRules(w io.Writer, s autoreply.Settings) {
	printHeading(w, "Auto-reply rules")
	printField(w, "Auto-reply", onOffLabel(s.Active))
	printField(w, "Smart replies", onOffLabel(s.SmartReplies))
	fmt.Fprintln(w)

	if len(s.Rules) == 0 {
		printMuted(w, "No auto-reply rules configured")
		return
	}
	for i, r := range s.Rules {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render(fmt.Sprintf("%2d.", i+1)), autoreply.DescribeRule(r))
	}
}

// report prints an engine reply, styled by outcome, and passes err through.
func report(w io.Writer, reply string, err error) error {
	if err != nil {
		printError(w, reply)
		return err
	}
	printSuccess(w, reply)
	return nil
}
