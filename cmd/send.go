package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/gmail"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/llm"
)

// outbox sends or schedules one email, connecting to Gmail only when needed.
type outbox struct {
	app    *app
	client *gmail.Client
}

func (o *outbox) mailClient(ctx context.Context) (*gmail.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	audit := instrumentation.NewAuditLoggerWithConfig(o.app.logger, o.app.cfg.Instrumentation(version).Audit)
	client, err := o.app.gmailClient(ctx, nil, audit)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

// recipient resolves a name or address. Google contacts are only searched
// when the saved contacts have no match.
func (o *outbox) recipient(ctx context.Context, nameOrEmail string) (string, error) {
	if addr, ok := o.app.store.ResolveRecipient(nameOrEmail); ok {
		return addr, nil
	}
	client, err := o.mailClient(ctx)
	if err != nil {
		return "", err
	}
	return o.app.resolveRecipient(ctx, client, nameOrEmail)
}

// deliver sends now, or queues for the next at ("HH:MM") when set.
func (o *outbox) deliver(ctx context.Context, to, subject, body, at string) error {
	out := o.app.out
	if at != "" {
		sched, st, err := o.app.openScheduler(nil, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		e, err := sched.ScheduleAt(ctx, to, subject, body, at)
		if err != nil {
			return err
		}
		loc, err := o.app.cfg.Location()
		if err != nil {
			return err
		}
		printSuccess(out, fmt.Sprintf("Scheduled email to %s for %s", to, e.SendAt.In(loc).Format("Mon Jan 2 15:04")))
		printMuted(out, "id "+e.ID+" (sent while 'inboxreply run' is running)")
		return nil
	}

	client, err := o.mailClient(ctx)
	if err != nil {
		return err
	}
	id, err := client.SendEmail(ctx, &gmail.EmailMessage{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		Kind:    instrumentation.SentKindManual,
	})
	if err != nil {
		return err
	}
	o.app.recordSent(instrumentation.SentKindManual, to, subject, id)
	printSuccess(out, "Email sent to "+to)
	return nil
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var to, subject, body, at string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email now or at a later time",
		Long: `Send an email from the configured account. --to accepts an address or the
name of a saved or Google contact. With --at the email is queued and sent by
the running daemon the next time the clock reads that time.`,
		Example: `  inboxreply send --to alice --subject "Report" --body "Attached tomorrow."
  inboxreply send --to bob@example.com --subject Hi --body "Call me" --at 9:30am`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			ob := &outbox{app: a}
			recipient, err := ob.recipient(cmd.Context(), to)
			if err != nil {
				return err
			}
			return ob.deliver(cmd.Context(), recipient, subject, body, at)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient address or contact name")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject")
	cmd.Flags().StringVar(&body, "body", "", "Plain-text body")
	cmd.Flags().StringVar(&at, "at", "", "Send at this time of day instead of now (e.g. 17:30, 9am)")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("body")

	return cmd
}

func newComposeCmd(opts *rootOptions) *cobra.Command {
	var (
		yes bool
		at  string
	)

	cmd := &cobra.Command{
		Use:   "compose INSTRUCTION...",
		Short: "Draft an email with the LLM, then send or schedule it",
		Long: `Draft an email from a plain-language instruction. The draft is shown for
confirmation before it is sent; an instruction that names a time
("...at 5pm") schedules the email instead.`,
		Example: `  inboxreply compose "ask alice whether the quarterly report is ready"
  inboxreply compose "remind bob about lunch at 11:30" --yes`,
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

			ctx := cmd.Context()
			draft, err := assistant.DraftEmail(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if at != "" {
				draft.SendAt = at
			}
			if strings.TrimSpace(draft.Recipient) == "" {
				return errors.New("the draft names no recipient")
			}

			ob := &outbox{app: a}
			recipient, err := ob.recipient(ctx, draft.Recipient)
			if err != nil {
				return err
			}
			draft.Recipient = recipient

			renderDraft(a.out, draft)
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), a.out, "Send this email?")
				if err != nil {
					return err
				}
				if !ok {
					printMuted(a.out, "Discarded")
					return nil
				}
			}
			return ob.deliver(ctx, draft.Recipient, draft.Subject, draft.Body, draft.SendAt)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Send without asking for confirmation")
	cmd.Flags().StringVar(&at, "at", "", "Send at this time of day (overrides a time in the instruction)")
	return cmd
}

func renderDraft(w io.Writer, d llm.Draft) {
	printHeading(w, "Draft")
	printField(w, "To", d.Recipient)
	printField(w, "Subject", d.Subject)
	if d.SendAt != "" {
		printField(w, "Send at", d.SendAt)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, indent(d.Body, "  "))
	fmt.Fprintln(w)
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question+" [y/N] ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
